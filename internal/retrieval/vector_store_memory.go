package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryVectorIndex 进程内向量索引，用于开发与测试环境
type memoryVectorIndex struct {
	mu     sync.RWMutex
	points map[uint64]Point
}

// NewMemoryVectorIndex 创建进程内向量索引
func NewMemoryVectorIndex() VectorIndex {
	return &memoryVectorIndex{
		points: make(map[uint64]Point),
	}
}

func (s *memoryVectorIndex) Upsert(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *memoryVectorIndex) Delete(_ context.Context, filter Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, p := range s.points {
		if payloadMatches(p.Payload, filter) {
			delete(s.points, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryVectorIndex) Search(_ context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.points))
	for _, p := range s.points {
		if !payloadMatches(p.Payload, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:      p.ID,
			Score:   cosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
		})
	}

	sortMatchesByScore(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *memoryVectorIndex) SetPayload(_ context.Context, filter Filter, patch map[string]interface{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for id, p := range s.points {
		if !payloadMatches(p.Payload, filter) {
			continue
		}
		if acl, ok := patch[FieldACL]; ok {
			if aclList, ok := acl.([]string); ok {
				p.Payload.ACL = append([]string{}, aclList...)
			}
		}
		s.points[id] = p
		updated++
	}
	return updated, nil
}

func (s *memoryVectorIndex) ScrollPayloads(_ context.Context, filter Filter) ([]ChunkPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.points))
	for id, p := range s.points {
		if payloadMatches(p.Payload, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payloads := make([]ChunkPayload, 0, len(ids))
	for _, id := range ids {
		payloads = append(payloads, s.points[id].Payload)
	}
	return payloads, nil
}

func (s *memoryVectorIndex) Count(_ context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.points {
		if payloadMatches(p.Payload, filter) {
			count++
		}
	}
	return count, nil
}

func (s *memoryVectorIndex) Ready() bool {
	return true
}

// payloadMatches 全部must条件命中才算匹配；acl条件按包含语义判断
func payloadMatches(payload ChunkPayload, filter Filter) bool {
	for _, cond := range filter.Must {
		switch cond.Key {
		case FieldACL:
			found := false
			for _, member := range payload.ACL {
				if member == cond.Value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case FieldDocumentID:
			if payload.DocumentID != cond.Value {
				return false
			}
		case FieldSourceFile:
			if payload.SourceFile != cond.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortMatchesByScore 按相似度降序排序，分数相同按点ID保证结果稳定
func sortMatchesByScore(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
