package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aihub/finance-rag/internal/retrieval"
)

func excerpt(docID, content string, page int) retrieval.Match {
	return retrieval.Match{
		Payload: retrieval.ChunkPayload{
			Content:    content,
			SourceFile: docID + ".pdf",
			PageNumber: page,
			DocumentID: docID,
		},
	}
}

func TestBuildQAPrompt_StatesCounts(t *testing.T) {
	chunks := []retrieval.Match{
		excerpt("docA", "revenue grew fifteen percent", 1),
		excerpt("docA", "margins improved as well", 2),
		excerpt("docB", "dividend was increased", 3),
	}

	prompt := BuildQAPrompt("how did the quarter go", chunks, 2)

	assert.Contains(t, prompt, "3 excerpt(s)")
	assert.Contains(t, prompt, "2 distinct source document(s)")
	assert.Contains(t, prompt, "User Question: how did the quarter go")
	assert.Contains(t, prompt, "revenue grew fifteen percent")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestFormatContext(t *testing.T) {
	chunks := []retrieval.Match{
		excerpt("docA", "first excerpt", 3),
		excerpt("docB", "second excerpt", 7),
	}

	ctx := FormatContext(chunks)
	assert.Contains(t, ctx, "[Excerpt 1: docA.pdf, page 3]")
	assert.Contains(t, ctx, "[Excerpt 2: docB.pdf, page 7]")
	assert.Contains(t, ctx, "first excerpt")

	assert.Contains(t, FormatContext(nil), "No context documents available")
}

func TestBuildSummarizationPrompt(t *testing.T) {
	prompt := BuildSummarizationPrompt("annual report text", 150)
	assert.Contains(t, prompt, "approximately 150 words")
	assert.Contains(t, prompt, "annual report text")

	// 非法词数回退默认值
	prompt = BuildSummarizationPrompt("text", 0)
	assert.Contains(t, prompt, "approximately 200 words")
}
