package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/finance-rag/internal/audit"
	"github.com/aihub/finance-rag/internal/auth"
	"github.com/aihub/finance-rag/internal/cache"
	apperrors "github.com/aihub/finance-rag/internal/errors"
	"github.com/aihub/finance-rag/internal/logger"
	"github.com/aihub/finance-rag/internal/metrics"
	"github.com/aihub/finance-rag/internal/parser"
	"github.com/aihub/finance-rag/internal/retrieval"
	"github.com/aihub/finance-rag/internal/storage"
)

// embedBatchSize 每批嵌入的块数上限
const embedBatchSize = 64

// DocumentInput 索引输入。DocumentID由文件名派生，重复上传同名文件
// 得到同一文档ID，从而走覆盖而不是重复写入
type DocumentInput struct {
	Filename string
	ACL      []string
	Pages    []string
}

// DocumentSummary 文档管理视图。磁盘上存在但块数为零的文档
// 意味着索引失败或尚未完成
type DocumentSummary struct {
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	ACL        []string `json:"acl"`
	ChunkCount int      `json:"chunk_count"`
}

// IndexerService 索引生命周期服务
type IndexerService struct {
	chunker   *retrieval.Chunker
	embedder  retrieval.Embedder
	index     retrieval.VectorIndex
	store     storage.DocumentStorage
	parsers   *parser.Manager
	worker    *IndexWorker
	answers   cache.AnswerCache
	directory auth.PrincipalDirectory
	metrics   *metrics.Collector
	auditor   *audit.Auditor
	log       *zap.Logger
}

// NewIndexerService 创建索引服务。directory为nil时不校验ACL成员
func NewIndexerService(
	chunker *retrieval.Chunker,
	embedder retrieval.Embedder,
	index retrieval.VectorIndex,
	store storage.DocumentStorage,
	parsers *parser.Manager,
	worker *IndexWorker,
	answers cache.AnswerCache,
	directory auth.PrincipalDirectory,
	collector *metrics.Collector,
	auditor *audit.Auditor,
) *IndexerService {
	return &IndexerService{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		store:     store,
		parsers:   parsers,
		worker:    worker,
		answers:   answers,
		directory: directory,
		metrics:   collector,
		auditor:   auditor,
		log:       logger.Named("indexer"),
	}
}

// validateACL 拒绝包含目录外成员的ACL，目录未配置时放行
func (s *IndexerService) validateACL(acl []string) error {
	if s.directory == nil {
		return nil
	}
	if unknown := s.directory.ValidateACL(acl); len(unknown) > 0 {
		return apperrors.NewValidationError(
			apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("acl contains unknown principals: %s", strings.Join(unknown, ", ")),
		)
	}
	return nil
}

// IndexDocument 分块、嵌入并写入索引，返回写入的块数。
// 点ID由(document_id, sequence)确定，内容相同的重复调用是覆盖而非追加
func (s *IndexerService) IndexDocument(ctx context.Context, input DocumentInput) (int, error) {
	start := time.Now()
	count, err := s.indexDocument(ctx, input)
	if s.metrics != nil {
		s.metrics.RecordIndexRun("index", count, time.Since(start), err)
	}
	return count, err
}

func (s *IndexerService) indexDocument(ctx context.Context, input DocumentInput) (int, error) {
	documentID := retrieval.DocumentID(input.Filename)

	chunks := s.chunker.SplitPages(input.Pages)
	if len(chunks) == 0 {
		// 没有任何有效块的文档不留下部分提交
		return 0, apperrors.NewValidationError(
			apperrors.ErrCodeInvalidDocument,
			fmt.Sprintf("document produced no indexable chunks: %s", input.Filename),
		)
	}

	points := make([]retrieval.Point, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, apperrors.EmbeddingUnavailable(
				fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch)),
			)
		}

		for i, chunk := range batch {
			points = append(points, retrieval.Point{
				ID:     retrieval.PointID(documentID, chunk.Sequence),
				Vector: vectors[i],
				Payload: retrieval.ChunkPayload{
					Content:    chunk.Text,
					SourceFile: input.Filename,
					PageNumber: chunk.PageNumber,
					ChunkIndex: chunk.Sequence,
					DocumentID: documentID,
					ACL:        input.ACL,
				},
			})
		}
	}

	if err := s.index.Upsert(ctx, points); err != nil {
		return 0, err
	}

	if err := s.answers.InvalidateAll(ctx); err != nil {
		s.log.Warn("answer cache invalidation failed", zap.Error(err))
	}

	s.log.Info("document indexed",
		zap.String("document_id", documentID),
		zap.String("filename", input.Filename),
		zap.Int("pages", len(input.Pages)),
		zap.Int("chunks", len(points)),
	)
	return len(points), nil
}

// ReindexOnReupload 重传重建：先删除该文档的全部旧块，再写入新块。
// 替换文档变短时不会留下旧版本的尾部孤块
func (s *IndexerService) ReindexOnReupload(ctx context.Context, input DocumentInput) (int, error) {
	start := time.Now()
	documentID := retrieval.DocumentID(input.Filename)

	deleted, err := s.index.Delete(ctx, retrieval.DocumentFilter(documentID))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordIndexRun("reindex", 0, time.Since(start), err)
		}
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("previous chunks removed before reindex",
			zap.String("document_id", documentID),
			zap.Int("deleted", deleted),
		)
		if s.metrics != nil {
			s.metrics.RecordChunksDeleted(deleted)
		}
	}

	count, err := s.indexDocument(ctx, input)
	if s.metrics != nil {
		s.metrics.RecordIndexRun("reindex", count, time.Since(start), err)
	}
	return count, err
}

// UpdateACL 批量改写文档所有块上的访问控制列表，返回更新的块数
func (s *IndexerService) UpdateACL(ctx context.Context, documentID string, newACL []string) (int, error) {
	if err := s.validateACL(newACL); err != nil {
		return 0, err
	}

	updated, err := s.index.SetPayload(
		ctx,
		retrieval.DocumentFilter(documentID),
		map[string]interface{}{retrieval.FieldACL: newACL},
	)
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		return 0, apperrors.DocumentNotFound(documentID)
	}

	if err := s.answers.InvalidateAll(ctx); err != nil {
		s.log.Warn("answer cache invalidation failed", zap.Error(err))
	}
	if s.auditor != nil {
		s.auditor.LogAccess("", documentID, "update_acl", true, "")
	}

	s.log.Info("acl updated",
		zap.String("document_id", documentID),
		zap.Strings("acl", newACL),
		zap.Int("chunks", updated),
	)
	return updated, nil
}

// DeleteDocument 删除索引中的全部块并移除存储中的原文件，返回删除的块数。
// 两个存储之间不做事务回滚，但任何一侧的失败都要上抛
func (s *IndexerService) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	start := time.Now()

	// 删除文件需要知道文件名，先从块payload里找
	payloads, err := s.index.ScrollPayloads(ctx, retrieval.DocumentFilter(documentID))
	if err != nil {
		return 0, err
	}
	filename := ""
	if len(payloads) > 0 {
		filename = payloads[0].SourceFile
	} else if files, listErr := s.store.List(ctx); listErr == nil {
		// 零块文档（索引失败或尚未完成）只能从存储清单反查文件名
		for _, name := range files {
			if retrieval.DocumentID(name) == documentID {
				filename = name
				break
			}
		}
	}

	deleted, err := s.index.Delete(ctx, retrieval.DocumentFilter(documentID))
	if err != nil {
		return 0, err
	}
	if deleted == 0 && filename == "" {
		return 0, apperrors.DocumentNotFound(documentID)
	}
	if s.metrics != nil {
		s.metrics.RecordChunksDeleted(deleted)
		s.metrics.RecordIndexRun("delete", 0, time.Since(start), nil)
	}

	if filename != "" {
		if err := s.store.Delete(ctx, filename); err != nil {
			// 索引已清理，文件删除失败作为部分结果上抛
			return deleted, fmt.Errorf("index chunks deleted (%d) but file removal failed: %w", deleted, err)
		}
	}

	if err := s.answers.InvalidateAll(ctx); err != nil {
		s.log.Warn("answer cache invalidation failed", zap.Error(err))
	}

	s.log.Info("document deleted",
		zap.String("document_id", documentID),
		zap.String("filename", filename),
		zap.Int("chunks", deleted),
	)
	return deleted, nil
}

// ListDocuments 按document_id聚合索引块，输出管理视图。
// 存储里存在但索引中没有块的文件也会列出，块数为零
func (s *IndexerService) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	payloads, err := s.index.ScrollPayloads(ctx, retrieval.Filter{})
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string]*DocumentSummary)
	for _, payload := range payloads {
		summary, ok := byDoc[payload.DocumentID]
		if !ok {
			summary = &DocumentSummary{
				DocumentID: payload.DocumentID,
				Filename:   payload.SourceFile,
				ACL:        payload.ACL,
			}
			byDoc[payload.DocumentID] = summary
		}
		summary.ChunkCount++
	}

	// 磁盘上有文件但索引里没有块：索引失败或尚未完成
	files, err := s.store.List(ctx)
	if err != nil {
		s.log.Warn("storage listing failed", zap.Error(err))
	} else {
		for _, filename := range files {
			documentID := retrieval.DocumentID(filename)
			if _, ok := byDoc[documentID]; !ok {
				byDoc[documentID] = &DocumentSummary{
					DocumentID: documentID,
					Filename:   filename,
				}
			}
		}
	}

	summaries := make([]DocumentSummary, 0, len(byDoc))
	for _, summary := range byDoc {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Filename < summaries[j].Filename
	})
	return summaries, nil
}

// IngestFile 保存原始文件并调度后台索引，立即返回任务ID。
// 调用方收到的是"已调度"确认，查询在索引完成前看不到新文档属于正常窗口
func (s *IndexerService) IngestFile(ctx context.Context, filename string, acl []string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return "", apperrors.NewValidationError(
			apperrors.ErrCodeInvalidDocument,
			fmt.Sprintf("empty upload: %s", filename),
		)
	}
	if !s.parsers.Supports(filename) {
		return "", apperrors.NewValidationError(
			apperrors.ErrCodeInvalidDocument,
			fmt.Sprintf("unsupported file format: %s", filename),
		)
	}
	if err := s.validateACL(acl); err != nil {
		return "", err
	}

	if err := s.store.Save(ctx, filename, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}

	documentID := retrieval.DocumentID(filename)
	taskID := s.worker.Submit(documentID, filename, func(taskCtx context.Context) (int, error) {
		pages, parseErr := s.parsers.ParsePages(bytes.NewReader(data), filename)
		if parseErr != nil {
			return 0, parseErr
		}
		return s.ReindexOnReupload(taskCtx, DocumentInput{
			Filename: filename,
			ACL:      acl,
			Pages:    pages,
		})
	})

	if s.auditor != nil {
		s.auditor.LogAccess("", documentID, "ingest", true, "")
	}
	return taskID, nil
}

// IndexingStatus 查询文档最近一次后台索引任务的状态
func (s *IndexerService) IndexingStatus(documentID string) (*IndexTask, bool) {
	return s.worker.LatestTaskForDocument(documentID)
}
