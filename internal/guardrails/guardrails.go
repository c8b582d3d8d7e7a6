package guardrails

import (
	"regexp"
	"strings"

	"github.com/aihub/finance-rag/internal/retrieval"
)

const (
	// groundingThreshold 答案与上下文的最低词重叠比例
	groundingThreshold = 0.3

	uncertaintyDisclaimer = "\n\n[Note: This answer may not be fully supported by the available documents.]"
	complianceDisclaimer  = "\n\n[Disclaimer: This information is for educational purposes only and should not be considered financial advice.]"
)

var (
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// Validator 回答校验器，防止幻觉与敏感信息泄露
type Validator struct{}

// NewValidator 创建回答校验器
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateResponse 校验生成回答：落地性检查、PII脱敏
func (v *Validator) ValidateResponse(answer string, sources []retrieval.Match) string {
	if !v.IsGrounded(answer, sources) {
		answer = answer + uncertaintyDisclaimer
	}
	if v.ContainsPII(answer) {
		answer = v.RedactPII(answer)
	}
	return answer
}

// IsGrounded 词重叠落地性检查：答案词汇至少30%出现在上下文中
func (v *Validator) IsGrounded(answer string, sources []retrieval.Match) bool {
	if len(sources) == 0 {
		return false
	}

	answerWords := wordSet(answer)
	if len(answerWords) == 0 {
		return false
	}

	var contextParts []string
	for _, src := range sources {
		contextParts = append(contextParts, src.Payload.Content)
	}
	contextWords := wordSet(strings.Join(contextParts, " "))

	overlap := 0
	for word := range answerWords {
		if _, ok := contextWords[word]; ok {
			overlap++
		}
	}

	return float64(overlap)/float64(len(answerWords)) > groundingThreshold
}

// ContainsPII 检测回答中的个人敏感信息
func (v *Validator) ContainsPII(text string) bool {
	return ssnPattern.MatchString(text) || emailPattern.MatchString(text)
}

// RedactPII 脱敏回答中的个人敏感信息
func (v *Validator) RedactPII(text string) string {
	text = ssnPattern.ReplaceAllString(text, "[REDACTED-SSN]")
	text = emailPattern.ReplaceAllString(text, "[REDACTED-EMAIL]")
	return text
}

// WithComplianceDisclaimer 追加金融合规免责声明
func (v *Validator) WithComplianceDisclaimer(answer string) string {
	if strings.Contains(answer, complianceDisclaimer) {
		return answer
	}
	return answer + complianceDisclaimer
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
