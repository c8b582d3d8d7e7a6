package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.EmbeddingUnavailable(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.EmbeddingUnavailable(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) Dimensions() int { return 0 }

func (n *NoopEmbedder) Ready() bool { return false }

// OpenAIEmbedderOptions OpenAI兼容嵌入服务配置
type OpenAIEmbedderOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder 调用OpenAI兼容端点生成嵌入向量。
// 网关本身无状态、不缓存；超时必须有界，不能无限阻塞请求路径。
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewOpenAIEmbedder 创建嵌入向量网关
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) Embedder {
	if opts.Model == "" {
		return &NoopEmbedder{}
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		timeout:    opts.Timeout,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperrors.EmbeddingUnavailable(errors.New("text is empty"))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, apperrors.EmbeddingUnavailable(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.EmbeddingUnavailable(errors.New("embedding response incomplete"))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if len(item.Embedding) == 0 {
			return nil, apperrors.EmbeddingUnavailable(errors.New("embedding response empty"))
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Ready() bool { return e.client != nil }
