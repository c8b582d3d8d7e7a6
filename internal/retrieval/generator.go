package retrieval

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

// Generator 定义答案生成接口
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", apperrors.GenerationFailed(errors.New("generation provider not configured"))
}

func (n *NoopGenerator) Ready() bool { return false }

// OpenAIGeneratorOptions OpenAI兼容生成服务配置
type OpenAIGeneratorOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator 调用OpenAI兼容chat端点生成答案
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAIGenerator 创建生成服务网关
func NewOpenAIGenerator(opts OpenAIGeneratorOptions) Generator {
	if opts.Model == "" {
		return &NoopGenerator{}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		timeout:     opts.Timeout,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", apperrors.GenerationFailed(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.GenerationFailed(errors.New("chat response empty"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool { return g.client != nil }
