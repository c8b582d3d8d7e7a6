package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id uint64, docID string, score float64) Match {
	return Match{
		ID:    id,
		Score: score,
		Payload: ChunkPayload{
			DocumentID: docID,
			SourceFile: docID + ".pdf",
			Content:    "chunk " + docID,
		},
	}
}

func docIDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Payload.DocumentID
	}
	return ids
}

func TestDiversityRanker_PrefersDistinctDocuments(t *testing.T) {
	r := NewDiversityRanker()
	// 相似度降序：A文档占据前两名，B和C排在后面
	candidates := []Match{
		candidate(1, "docA", 0.95),
		candidate(2, "docA", 0.93),
		candidate(3, "docB", 0.90),
		candidate(4, "docA", 0.88),
		candidate(5, "docC", 0.85),
	}

	result := r.Select(candidates, 3)
	require.Len(t, result, 3)
	assert.Equal(t, []string{"docA", "docB", "docC"}, docIDs(result))
}

func TestDiversityRanker_FillsRemainingByRank(t *testing.T) {
	r := NewDiversityRanker()
	candidates := []Match{
		candidate(1, "docA", 0.95),
		candidate(2, "docA", 0.93),
		candidate(3, "docB", 0.90),
		candidate(4, "docA", 0.88),
	}

	// 只有两个文档但要四条：补满时允许同文档重复
	result := r.Select(candidates, 4)
	require.Len(t, result, 4)
	assert.Equal(t, []string{"docA", "docA", "docB", "docA"}, docIDs(result))
}

func TestDiversityRanker_PreservesRankOrder(t *testing.T) {
	r := NewDiversityRanker()
	candidates := []Match{
		candidate(1, "docA", 0.9),
		candidate(2, "docB", 0.8),
		candidate(3, "docC", 0.7),
	}

	result := r.Select(candidates, 3)
	require.Len(t, result, 3)
	for i := 1; i < len(result); i++ {
		assert.GreaterOrEqual(t, result[i-1].Score, result[i].Score)
	}
}

func TestDiversityRanker_LimitClamping(t *testing.T) {
	r := NewDiversityRanker()
	candidates := []Match{
		candidate(1, "docA", 0.9),
		candidate(2, "docB", 0.8),
	}

	assert.Len(t, r.Select(candidates, 10), 2)
	assert.Len(t, r.Select(candidates, 1), 1)
	assert.Nil(t, r.Select(candidates, 0))
	assert.Nil(t, r.Select(nil, 5))
}

func TestDiversityRanker_SingleDocument(t *testing.T) {
	r := NewDiversityRanker()
	candidates := []Match{
		candidate(1, "docA", 0.9),
		candidate(2, "docA", 0.8),
		candidate(3, "docA", 0.7),
	}

	result := r.Select(candidates, 2)
	require.Len(t, result, 2)
	assert.Equal(t, uint64(1), result[0].ID)
	assert.Equal(t, uint64(2), result[1].ID)
}
