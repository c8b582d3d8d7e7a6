package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aihub/finance-rag/internal/retrieval"
)

func sourceWith(content string) []retrieval.Match {
	return []retrieval.Match{
		{Payload: retrieval.ChunkPayload{Content: content}},
	}
}

func TestIsGrounded(t *testing.T) {
	v := NewValidator()
	sources := sourceWith("quarterly revenue grew fifteen percent compared to last year")

	assert.True(t, v.IsGrounded("revenue grew fifteen percent", sources))
	assert.False(t, v.IsGrounded("bitcoin mining difficulty reached an all time high", sources))
	assert.False(t, v.IsGrounded("anything", nil))
	assert.False(t, v.IsGrounded("", sources))
}

func TestContainsPII(t *testing.T) {
	v := NewValidator()

	assert.True(t, v.ContainsPII("the customer SSN is 123-45-6789"))
	assert.True(t, v.ContainsPII("contact john.doe@example.com for details"))
	assert.False(t, v.ContainsPII("revenue grew 15 percent in 2024"))
}

func TestRedactPII(t *testing.T) {
	v := NewValidator()

	redacted := v.RedactPII("SSN 123-45-6789, email john.doe@example.com")
	assert.Contains(t, redacted, "[REDACTED-SSN]")
	assert.Contains(t, redacted, "[REDACTED-EMAIL]")
	assert.NotContains(t, redacted, "123-45-6789")
	assert.NotContains(t, redacted, "john.doe@example.com")
}

func TestValidateResponse(t *testing.T) {
	v := NewValidator()
	sources := sourceWith("quarterly revenue grew fifteen percent compared to last year")

	// 落地的回答原样通过
	grounded := "revenue grew fifteen percent"
	assert.Equal(t, grounded, v.ValidateResponse(grounded, sources))

	// 不落地的回答附加不确定性声明
	ungrounded := v.ValidateResponse("unrelated speculation entirely", sources)
	assert.Contains(t, ungrounded, "may not be fully supported")

	// 带PII的回答被脱敏
	withPII := v.ValidateResponse("revenue grew fifteen percent, contact a@b.io", sources)
	assert.NotContains(t, withPII, "a@b.io")
}

func TestWithComplianceDisclaimer(t *testing.T) {
	v := NewValidator()

	once := v.WithComplianceDisclaimer("some answer")
	assert.Contains(t, once, "not be considered financial advice")
	// 重复调用不叠加
	assert.Equal(t, once, v.WithComplianceDisclaimer(once))
}
