package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/finance-rag/internal/retrieval"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "finance-rag", time.Hour)

	token, err := svc.GenerateToken("alice", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.ID)
	assert.Equal(t, "user", principal.Role)
	assert.False(t, principal.IsAdmin())
}

func TestJWTService_AdminRole(t *testing.T) {
	svc := NewJWTService("test-secret", "finance-rag", time.Hour)

	token, err := svc.GenerateToken("root", retrieval.RoleAdmin)
	require.NoError(t, err)

	principal, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	svc := NewJWTService("test-secret", "finance-rag", time.Hour)
	other := NewJWTService("other-secret", "finance-rag", time.Hour)

	token, err := svc.GenerateToken("alice", "user")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", "finance-rag", time.Hour)
	svc.expiresIn = -time.Minute

	token, err := svc.GenerateToken("alice", "user")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", "finance-rag", time.Hour)

	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = ExtractTokenFromHeader("")
	assert.Error(t, err)
	_, err = ExtractTokenFromHeader("Basic abc")
	assert.Error(t, err)
	_, err = ExtractTokenFromHeader("Bearer ")
	assert.Error(t, err)
}

func TestStaticDirectory(t *testing.T) {
	dir := NewStaticDirectory([]retrieval.Principal{
		{ID: "alice", Role: "user"},
		{ID: "bob", Role: "user"},
	})

	p, err := dir.Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)

	_, err = dir.Lookup("mallory")
	assert.Error(t, err)

	// admin主体始终存在
	assert.True(t, dir.Exists(retrieval.AdminPrincipal))

	unknown := dir.ValidateACL([]string{"alice", "mallory", "bob"})
	assert.Equal(t, []string{"mallory"}, unknown)
}

func TestStaticDirectory_List(t *testing.T) {
	dir := NewStaticDirectory([]retrieval.Principal{
		{ID: "bob", Role: "user"},
		{ID: "alice", Role: "user"},
	})

	ids := make([]string, 0, 3)
	for _, p := range dir.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{retrieval.AdminPrincipal, "alice", "bob"}, ids)
}
