package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/finance-rag/internal/audit"
	"github.com/aihub/finance-rag/internal/cache"
	apperrors "github.com/aihub/finance-rag/internal/errors"
	"github.com/aihub/finance-rag/internal/guardrails"
	"github.com/aihub/finance-rag/internal/logger"
	"github.com/aihub/finance-rag/internal/metrics"
	"github.com/aihub/finance-rag/internal/prompts"
	"github.com/aihub/finance-rag/internal/retrieval"
)

// answerConfidence 有检索结果时返回的固定置信度
const answerConfidence = 0.85

// QueryRequest 问答请求
type QueryRequest struct {
	Question   string
	Principal  retrieval.Principal
	SourceFile string // 可选，限定单个源文件
	Limit      int
}

// Source 引用的源文档，按检索结果中的首次出现去重
type Source struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

// QueryResponse 问答结果
type QueryResponse struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// QueryService 查询编排服务
type QueryService struct {
	embedder  retrieval.Embedder
	index     retrieval.VectorIndex
	generator retrieval.Generator
	ranker    *retrieval.DiversityRanker
	validator *guardrails.Validator
	answers   cache.AnswerCache
	metrics   *metrics.Collector
	auditor   *audit.Auditor
	log       *zap.Logger

	limit      int
	oversample int
}

// NewQueryService 创建查询服务
func NewQueryService(
	embedder retrieval.Embedder,
	index retrieval.VectorIndex,
	generator retrieval.Generator,
	ranker *retrieval.DiversityRanker,
	validator *guardrails.Validator,
	answers cache.AnswerCache,
	collector *metrics.Collector,
	auditor *audit.Auditor,
	defaultLimit, oversampleFactor int,
) *QueryService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if oversampleFactor <= 0 {
		oversampleFactor = 3
	}
	return &QueryService{
		embedder:   embedder,
		index:      index,
		generator:  generator,
		ranker:     ranker,
		validator:  validator,
		answers:    answers,
		metrics:    collector,
		auditor:    auditor,
		log:        logger.Named("query"),
		limit:      defaultLimit,
		oversample: oversampleFactor,
	}
}

// AnswerQuery 回答问题：嵌入、带ACL谓词的向量检索、多样性排序、
// 提示词组装与生成。检索不到可见文档时直接返回固定回答
func (s *QueryService) AnswerQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	resp, resultCount, err := s.answerQuery(ctx, req)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			if apperrors.ErrAccessDenied.Is(err) {
				status = "denied"
			} else {
				status = "failed"
			}
		}
		s.metrics.RecordQuery(status, resultCount, time.Since(start))
	}
	return resp, err
}

func (s *QueryService) answerQuery(ctx context.Context, req QueryRequest) (*QueryResponse, int, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, 0, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "question is empty")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.limit
	}

	// 谓词构建失败必须让整个查询失败，绝不放宽可见性
	predicate, err := retrieval.BuildPredicate(req.Principal)
	if err != nil {
		if s.auditor != nil {
			s.auditor.LogAccess(req.Principal.ID, "", "query", false, "predicate rejected")
		}
		return nil, 0, err
	}
	if req.SourceFile != "" {
		predicate = predicate.And(retrieval.FieldSourceFile, req.SourceFile)
	}

	cacheKey := cache.CacheKey(req.Principal.ID, req.Principal.Role, question, req.SourceFile, limit)
	var cached QueryResponse
	if hit, cacheErr := s.answers.Get(ctx, cacheKey, &cached); cacheErr == nil && hit {
		return &cached, len(cached.Sources), nil
	}

	embedStart := time.Now()
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordEmbedding(time.Since(embedStart))
	}

	retrieveStart := time.Now()
	candidates, err := s.index.Search(ctx, vector, predicate, limit*s.oversample)
	if err != nil {
		return nil, 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordStage("retrieve", time.Since(retrieveStart))
	}

	selected := s.ranker.Select(candidates, limit)
	if len(selected) == 0 {
		resp := &QueryResponse{
			Answer:     prompts.NoResultsAnswer,
			Sources:    []Source{},
			Confidence: 0,
		}
		s.finish(ctx, cacheKey, req, resp, 0)
		return resp, 0, nil
	}

	sources := dedupSources(selected)

	generateStart := time.Now()
	userPrompt := prompts.BuildQAPrompt(question, selected, len(sources))
	answer, err := s.generator.Generate(ctx, prompts.SystemPrompt, userPrompt)
	if err != nil {
		return nil, len(selected), err
	}
	if s.metrics != nil {
		s.metrics.RecordStage("generate", time.Since(generateStart))
	}

	answer = s.validator.ValidateResponse(answer, selected)

	resp := &QueryResponse{
		Answer:     answer,
		Sources:    sources,
		Confidence: answerConfidence,
	}
	s.finish(ctx, cacheKey, req, resp, len(selected))
	return resp, len(selected), nil
}

func (s *QueryService) finish(ctx context.Context, cacheKey string, req QueryRequest, resp *QueryResponse, resultCount int) {
	if err := s.answers.Set(ctx, cacheKey, resp); err != nil {
		s.log.Warn("answer cache write failed", zap.Error(err))
	}
	if s.auditor != nil {
		s.auditor.LogQuery(req.Principal.ID, req.Question, len(resp.Answer), resultCount)
	}
	s.log.Info("query answered",
		zap.String("principal", req.Principal.ID),
		zap.Int("results", resultCount),
		zap.Int("sources", len(resp.Sources)),
	)
}

// dedupSources 按首次出现顺序去重源文件
func dedupSources(matches []retrieval.Match) []Source {
	seen := make(map[string]struct{}, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Payload.DocumentID]; ok {
			continue
		}
		seen[m.Payload.DocumentID] = struct{}{}
		sources = append(sources, Source{
			DocumentID: m.Payload.DocumentID,
			Filename:   m.Payload.SourceFile,
		})
	}
	return sources
}
