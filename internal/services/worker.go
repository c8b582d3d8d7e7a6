package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aihub/finance-rag/internal/logger"
)

// 任务状态
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// IndexTask 后台索引任务状态
type IndexTask struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// IndexWorker 后台索引工作池。上传确认后异步执行索引，
// 并发度受限，任务状态可查询
type IndexWorker struct {
	mu       sync.RWMutex
	tasks    map[string]*IndexTask
	byDoc    map[string]string // document_id -> 最近一次任务ID
	slots    chan struct{}
	wg       sync.WaitGroup
	log      *zap.Logger
}

// NewIndexWorker 创建索引工作池
func NewIndexWorker(maxParallel int) *IndexWorker {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &IndexWorker{
		tasks: make(map[string]*IndexTask),
		byDoc: make(map[string]string),
		slots: make(chan struct{}, maxParallel),
		log:   logger.Named("index-worker"),
	}
}

// Submit 提交索引任务，立即返回任务ID。fn在后台执行，
// 失败只记录在任务状态里，不回传给已确认的上传请求
func (w *IndexWorker) Submit(documentID, filename string, fn func(ctx context.Context) (int, error)) string {
	task := &IndexTask{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Filename:   filename,
		Status:     TaskStatusPending,
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
	}

	w.mu.Lock()
	w.tasks[task.ID] = task
	w.byDoc[documentID] = task.ID
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.slots <- struct{}{}
		defer func() { <-w.slots }()

		w.setStatus(task.ID, TaskStatusRunning, "", 0)

		chunks, err := fn(context.Background())
		if err != nil {
			w.log.Error("background indexing failed",
				zap.String("task_id", task.ID),
				zap.String("document_id", documentID),
				zap.String("filename", filename),
				zap.Error(err),
			)
			w.setStatus(task.ID, TaskStatusFailed, err.Error(), 0)
			return
		}

		w.log.Info("background indexing completed",
			zap.String("task_id", task.ID),
			zap.String("document_id", documentID),
			zap.Int("chunks", chunks),
		)
		w.setStatus(task.ID, TaskStatusCompleted, "", chunks)
	}()

	return task.ID
}

func (w *IndexWorker) setStatus(taskID, status, errMsg string, chunks int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if task, ok := w.tasks[taskID]; ok {
		task.Status = status
		task.Error = errMsg
		if chunks > 0 {
			task.ChunkCount = chunks
		}
		task.UpdateTime = time.Now()
	}
}

// GetTask 查询任务状态
func (w *IndexWorker) GetTask(taskID string) (*IndexTask, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	task, ok := w.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// LatestTaskForDocument 查询文档最近一次索引任务
func (w *IndexWorker) LatestTaskForDocument(documentID string) (*IndexTask, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	taskID, ok := w.byDoc[documentID]
	if !ok {
		return nil, false
	}
	task, ok := w.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// Wait 等待所有已提交任务结束，供批量入库与测试使用
func (w *IndexWorker) Wait() {
	w.wg.Wait()
}
