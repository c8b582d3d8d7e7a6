package retrieval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

func TestBuildPredicate_RegularUser(t *testing.T) {
	filter, err := BuildPredicate(Principal{ID: "alice", Role: "user"})
	require.NoError(t, err)
	require.Len(t, filter.Must, 1)
	assert.Equal(t, FieldACL, filter.Must[0].Key)
	assert.Equal(t, "alice", filter.Must[0].Value)
}

func TestBuildPredicate_AdminBypassesFilter(t *testing.T) {
	filter, err := BuildPredicate(Principal{ID: AdminPrincipal, Role: RoleAdmin})
	require.NoError(t, err)
	assert.True(t, filter.IsEmpty())

	// 管理员角色同样绕过，不依赖特殊用户名
	filter, err = BuildPredicate(Principal{ID: "root", Role: RoleAdmin})
	require.NoError(t, err)
	assert.True(t, filter.IsEmpty())
}

func TestBuildPredicate_EmptyPrincipalFailsClosed(t *testing.T) {
	for _, id := range []string{"", "   ", "\t"} {
		_, err := BuildPredicate(Principal{ID: id})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrAccessDenied))
	}
}

func TestFilter_And(t *testing.T) {
	filter, err := BuildPredicate(Principal{ID: "bob"})
	require.NoError(t, err)

	combined := filter.And(FieldSourceFile, "report.pdf")
	require.Len(t, combined.Must, 2)
	assert.Equal(t, FieldACL, combined.Must[0].Key)
	assert.Equal(t, FieldSourceFile, combined.Must[1].Key)

	// 原过滤器不被修改
	assert.Len(t, filter.Must, 1)
}
