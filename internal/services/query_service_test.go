package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/finance-rag/internal/audit"
	"github.com/aihub/finance-rag/internal/cache"
	apperrors "github.com/aihub/finance-rag/internal/errors"
	"github.com/aihub/finance-rag/internal/guardrails"
	"github.com/aihub/finance-rag/internal/prompts"
	"github.com/aihub/finance-rag/internal/retrieval"
)

// mockGenerator 记录调用，回答直接拼接上下文词汇以通过落地性检查
type mockGenerator struct {
	calls       int
	lastPrompt  string
	fixedAnswer string
	fail        bool
}

func (m *mockGenerator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	m.calls++
	m.lastPrompt = userPrompt
	if m.fail {
		return "", apperrors.GenerationFailed(errors.New("model overloaded"))
	}
	if m.fixedAnswer != "" {
		return m.fixedAnswer, nil
	}
	return userPrompt, nil
}

func (m *mockGenerator) Ready() bool { return !m.fail }

func queryPoint(id uint64, docID, content string, acl []string, vector []float32) retrieval.Point {
	return retrieval.Point{
		ID:     id,
		Vector: vector,
		Payload: retrieval.ChunkPayload{
			Content:    content,
			SourceFile: docID + ".pdf",
			PageNumber: 1,
			DocumentID: docID,
			ACL:        acl,
		},
	}
}

func newTestQueryService(t *testing.T) (*QueryService, *mockGenerator, retrieval.VectorIndex) {
	t.Helper()
	index := retrieval.NewMemoryVectorIndex()
	require.NoError(t, index.Upsert(context.Background(), []retrieval.Point{
		queryPoint(1, "docA", "quarterly revenue grew fifteen percent year over year", []string{"alice"}, []float32{1, 0, 0}),
		queryPoint(2, "docA", "quarterly operating margin improved to twenty percent", []string{"alice"}, []float32{0.9, 0.1, 0}),
		queryPoint(3, "docB", "the board approved a dividend increase for shareholders", []string{"bob"}, []float32{0.8, 0.2, 0}),
		queryPoint(4, "docC", "cash reserves remain strong across all business units", []string{"alice", "bob"}, []float32{0.7, 0.3, 0}),
	}))

	gen := &mockGenerator{}
	svc := NewQueryService(
		&mockEmbedder{},
		index,
		gen,
		retrieval.NewDiversityRanker(),
		guardrails.NewValidator(),
		cache.NoopAnswerCache{},
		nil,
		audit.NewAuditor(),
		10, 3,
	)
	return svc, gen, index
}

func TestAnswerQuery_ACLVisibility(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)

	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, gen.calls)

	// alice看不到仅限bob的docB
	for _, src := range resp.Sources {
		assert.NotEqual(t, "docB", src.DocumentID)
	}
	assert.NotContains(t, gen.lastPrompt, "dividend increase")
	assert.Equal(t, 0.85, resp.Confidence)
}

func TestAnswerQuery_AdminSeesEverything(t *testing.T) {
	svc, _, _ := newTestQueryService(t)

	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "summarize the financial position",
		Principal: retrieval.Principal{ID: "admin", Role: retrieval.RoleAdmin},
	})
	require.NoError(t, err)

	docs := make(map[string]bool)
	for _, src := range resp.Sources {
		docs[src.DocumentID] = true
	}
	assert.True(t, docs["docA"])
	assert.True(t, docs["docB"])
	assert.True(t, docs["docC"])
}

func TestAnswerQuery_EmptyPrincipalFailsClosed(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)

	_, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "what is the revenue",
		Principal: retrieval.Principal{ID: "  "},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAccessDenied))
	assert.Zero(t, gen.calls)
}

func TestAnswerQuery_NoVisibleChunks(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)

	// mallory不在任何ACL里
	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "what is the revenue",
		Principal: retrieval.Principal{ID: "mallory", Role: "user"},
	})
	require.NoError(t, err)

	// 固定回答，不调用生成模型
	assert.Equal(t, prompts.NoResultsAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Confidence)
	assert.Zero(t, gen.calls)
}

func TestAnswerQuery_SourceFileFilter(t *testing.T) {
	svc, _, _ := newTestQueryService(t)

	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:   "what about cash reserves",
		Principal:  retrieval.Principal{ID: "alice", Role: "user"},
		SourceFile: "docC.pdf",
	})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "docC", resp.Sources[0].DocumentID)
}

func TestAnswerQuery_SourcesDedupedInFirstOccurrenceOrder(t *testing.T) {
	svc, _, _ := newTestQueryService(t)

	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
	})
	require.NoError(t, err)

	// docA有两个可见分块，但来源列表只出现一次
	seen := make(map[string]int)
	for _, src := range resp.Sources {
		seen[src.DocumentID]++
	}
	for docID, n := range seen {
		assert.Equal(t, 1, n, "source %s listed more than once", docID)
	}
}

func TestAnswerQuery_PromptStatesExcerptAndDocumentCounts(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)

	_, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
	})
	require.NoError(t, err)

	// alice可见：docA两块 + docC一块 = 3个摘录、2个文档
	assert.Contains(t, gen.lastPrompt, "3 excerpt(s)")
	assert.Contains(t, gen.lastPrompt, "2 distinct source document(s)")
}

func TestAnswerQuery_EmptyQuestion(t *testing.T) {
	svc, _, _ := newTestQueryService(t)

	_, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "   ",
		Principal: retrieval.Principal{ID: "alice"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "")))
}

func TestAnswerQuery_GenerationFailureSurfaced(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)
	gen.fail = true

	_, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrGenerationFailed))
}

func TestAnswerQuery_UngroundedAnswerGetsDisclaimer(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)
	gen.fixedAnswer = "completely unrelated hallucinated statement about cryptocurrencies"

	resp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "may not be fully supported")
}

// mapAnswerCache 进程内缓存，模拟Redis的JSON值语义
type mapAnswerCache struct {
	entries map[string][]byte
}

func newMapAnswerCache() *mapAnswerCache {
	return &mapAnswerCache{entries: make(map[string][]byte)}
}

func (c *mapAnswerCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *mapAnswerCache) Set(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *mapAnswerCache) InvalidateAll(context.Context) error {
	c.entries = make(map[string][]byte)
	return nil
}

func (c *mapAnswerCache) Ready() bool { return true }

func TestAnswerQuery_CacheDoesNotLeakAcrossRoles(t *testing.T) {
	index := retrieval.NewMemoryVectorIndex()
	require.NoError(t, index.Upsert(context.Background(), []retrieval.Point{
		queryPoint(1, "docB", "the board approved a dividend increase for shareholders", []string{"bob"}, []float32{1, 0, 0}),
	}))

	svc := NewQueryService(
		&mockEmbedder{},
		index,
		&mockGenerator{},
		retrieval.NewDiversityRanker(),
		guardrails.NewValidator(),
		newMapAnswerCache(),
		nil,
		audit.NewAuditor(),
		10, 3,
	)

	// 先以管理员角色查询并写入缓存
	adminResp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "what did the board approve",
		Principal: retrieval.Principal{ID: "root", Role: retrieval.RoleAdmin},
	})
	require.NoError(t, err)
	require.Len(t, adminResp.Sources, 1)

	// 同一ID去掉管理员角色后不得命中管理员的缓存条目
	userResp, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "what did the board approve",
		Principal: retrieval.Principal{ID: "root", Role: "user"},
	})
	require.NoError(t, err)
	assert.Empty(t, userResp.Sources)
	assert.Equal(t, prompts.NoResultsAnswer, userResp.Answer)
}

func TestAnswerQuery_LimitRespected(t *testing.T) {
	svc, gen, _ := newTestQueryService(t)

	_, err := svc.AnswerQuery(context.Background(), QueryRequest{
		Question:  "how did revenue develop this quarter",
		Principal: retrieval.Principal{ID: "alice", Role: "user"},
		Limit:     1,
	})
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt, "1 excerpt(s)")
}
