package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeWords(prefix string, n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return words
}

func TestNewChunker_CorrectsInvalidParams(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, 100, c.ChunkWords())
	assert.Equal(t, 0, c.OverlapWords())

	// 重叠不小于窗口时回退为窗口的五分之一
	c = NewChunker(100, 100)
	assert.Equal(t, 100, c.ChunkWords())
	assert.Equal(t, 20, c.OverlapWords())
}

func TestSplitPages_WindowAndOverlap(t *testing.T) {
	c := NewChunker(10, 2)
	page := strings.Join(makeWords("finance", 20), " ")

	chunks := c.SplitPages([]string{page})
	require.Len(t, chunks, 3)

	// 窗口步长为8：起点0、8、16，末段并入最后一块
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	third := strings.Fields(chunks[2].Text)
	assert.Len(t, first, 10)
	assert.Len(t, second, 10)
	assert.Len(t, third, 4)

	// 相邻块重叠两个词
	assert.Equal(t, first[8:], second[:2])
	assert.Equal(t, second[8:], third[:2])
}

func TestSplitPages_Deterministic(t *testing.T) {
	c := NewChunker(10, 2)
	pages := []string{
		strings.Join(makeWords("alpha", 25), " "),
		strings.Join(makeWords("beta", 17), " "),
	}

	one := c.SplitPages(pages)
	two := c.SplitPages(pages)
	require.Equal(t, one, two)
}

func TestSplitPages_SkipsShortPages(t *testing.T) {
	c := NewChunker(10, 2)
	pages := []string{
		"too short",
		strings.Join(makeWords("real", 12), " "),
		"   ",
	}

	chunks := c.SplitPages(pages)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, 2, chunk.PageNumber)
	}
}

func TestSplitPages_DropsShortChunks(t *testing.T) {
	c := NewChunker(5, 2)
	// 12个短词：最后一个窗口只剩3个词、不足30字符，应当被丢弃
	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("word%02d", i)
	}
	page := strings.Join(words, " ")
	require.GreaterOrEqual(t, len(page), 50)

	chunks := c.SplitPages([]string{page})
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk.Text), 30)
	}
}

func TestSplitPages_SequenceMonotonicAcrossPages(t *testing.T) {
	c := NewChunker(10, 2)
	pages := []string{
		strings.Join(makeWords("page1", 20), " "),
		strings.Join(makeWords("page2", 20), " "),
	}

	chunks := c.SplitPages(pages)
	require.Len(t, chunks, 6)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Sequence)
	}
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[5].PageNumber)
}

func TestSplitPages_EmptyInput(t *testing.T) {
	c := NewChunker(100, 20)
	assert.Empty(t, c.SplitPages(nil))
	assert.Empty(t, c.SplitPages([]string{"", "  ", "\n"}))
}
