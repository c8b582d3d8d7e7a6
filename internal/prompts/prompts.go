package prompts

import (
	"fmt"
	"strings"

	"github.com/aihub/finance-rag/internal/retrieval"
)

// SystemPrompt 生成模型的系统提示。强调区分摘录数与文档数，
// 避免模型把多个来自同一文件的片段当成多份文档
const SystemPrompt = "You are a helpful financial assistant. Provide comprehensive, detailed answers " +
	"by synthesizing information from the provided document excerpts. Remember that you may receive " +
	"multiple text excerpts (chunks) from the same source document file. When referring to sources, " +
	"be accurate about the number of unique documents vs the number of excerpts."

// NoResultsAnswer 检索不到可见文档时的固定回答，不调用生成模型
const NoResultsAnswer = "I could not find any relevant documents that you have access to for this question. " +
	"Please try rephrasing your question, or contact an administrator if you believe a document is missing."

// BuildQAPrompt 构建问答提示词，上下文为检索到的片段
func BuildQAPrompt(question string, chunks []retrieval.Match, uniqueFiles int) string {
	var b strings.Builder

	b.WriteString("Answer the user's question based ONLY on the provided context excerpts. ")
	b.WriteString("If the answer cannot be found in the context, say so clearly.\n\n")
	b.WriteString(fmt.Sprintf(
		"You have been given %d excerpt(s) drawn from %d distinct source document(s).\n\n",
		len(chunks), uniqueFiles,
	))

	b.WriteString("Context Excerpts:\n")
	b.WriteString(FormatContext(chunks))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("User Question: %s\n\n", question))

	b.WriteString("Instructions:\n")
	b.WriteString("- Only use information from the context excerpts above\n")
	b.WriteString("- If you're not certain, express your uncertainty\n")
	b.WriteString("- Do not make up information or use external knowledge\n")
	b.WriteString("- Cite the source document when possible\n")
	b.WriteString("- Keep responses clear and concise\n\n")
	b.WriteString("Answer:")

	return b.String()
}

// FormatContext 将检索片段格式化为提示词上下文
func FormatContext(chunks []retrieval.Match) string {
	if len(chunks) == 0 {
		return "No context documents available.\n"
	}

	var b strings.Builder
	for i, chunk := range chunks {
		b.WriteString(fmt.Sprintf(
			"[Excerpt %d: %s, page %d]\n%s\n\n",
			i+1, chunk.Payload.SourceFile, chunk.Payload.PageNumber, chunk.Payload.Content,
		))
	}
	return b.String()
}

// BuildSummarizationPrompt 构建文档摘要提示词
func BuildSummarizationPrompt(document string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = 200
	}
	return fmt.Sprintf(
		"Summarize the following financial document in approximately %d words or less. "+
			"Focus on key facts, figures, and conclusions.\n\nDocument:\n%s\n\nSummary:",
		maxWords, document,
	)
}
