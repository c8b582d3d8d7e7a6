package retrieval

import (
	"strings"
)

const (
	// 过短的页面和分块直接丢弃，避免索引噪音
	minPageChars  = 50
	minChunkChars = 30
)

// Chunker 文本分块器：按页滑动固定词数窗口，相邻窗口重叠
type Chunker struct {
	chunkWords   int
	overlapWords int
}

// NewChunker 创建分块器（chunkWords默认100，overlap默认20，0 <= overlap < chunkWords）
func NewChunker(chunkWords, overlapWords int) *Chunker {
	if chunkWords <= 0 {
		chunkWords = 100
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 5
	}
	return &Chunker{
		chunkWords:   chunkWords,
		overlapWords: overlapWords,
	}
}

// ChunkWords 每块词数
func (c *Chunker) ChunkWords() int { return c.chunkWords }

// OverlapWords 重叠词数
func (c *Chunker) OverlapWords() int { return c.overlapWords }

// SplitPages 将按页分段的文本切分为有序的分块序列。
// 序号在整个文档内从0单调递增；页码从1开始；空页不产生分块。
// 同样的文本和参数必定产生完全相同的分块边界与序号（重建索引幂等的前提）。
func (c *Chunker) SplitPages(pages []string) []Chunk {
	var chunks []Chunk
	seq := 0

	step := c.chunkWords - c.overlapWords
	if step <= 0 {
		step = c.chunkWords
	}

	for pageIdx, page := range pages {
		text := strings.TrimSpace(page)
		if len(text) < minPageChars {
			continue
		}

		words := strings.Fields(text)
		for start := 0; start < len(words); start += step {
			end := start + c.chunkWords
			if end > len(words) {
				end = len(words)
			}
			chunkText := strings.Join(words[start:end], " ")
			if len(chunkText) >= minChunkChars {
				chunks = append(chunks, Chunk{
					Text:       chunkText,
					PageNumber: pageIdx + 1,
					Sequence:   seq,
				})
				seq++
			}
			// 末尾不足一个窗口的部分已经并入最后一块，避免丢失结尾内容
			if end == len(words) {
				break
			}
		}
	}

	return chunks
}
