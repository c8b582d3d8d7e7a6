package di

import (
	"fmt"
	"time"

	"go.uber.org/dig"

	"github.com/aihub/finance-rag/internal/audit"
	"github.com/aihub/finance-rag/internal/auth"
	"github.com/aihub/finance-rag/internal/cache"
	"github.com/aihub/finance-rag/internal/config"
	"github.com/aihub/finance-rag/internal/guardrails"
	"github.com/aihub/finance-rag/internal/metrics"
	"github.com/aihub/finance-rag/internal/parser"
	"github.com/aihub/finance-rag/internal/retrieval"
	"github.com/aihub/finance-rag/internal/services"
	"github.com/aihub/finance-rag/internal/storage"
)

// BuildContainer 创建并装配依赖容器
func BuildContainer() (*dig.Container, error) {
	container := dig.New()
	if err := RegisterProviders(container); err != nil {
		return nil, err
	}
	return container, nil
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 分块器
	if err := container.Provide(func(cfg *config.Config) *retrieval.Chunker {
		return retrieval.NewChunker(cfg.Retrieval.ChunkWords, cfg.Retrieval.OverlapWords)
	}); err != nil {
		return err
	}

	// 嵌入网关
	if err := container.Provide(func(cfg *config.Config) retrieval.Embedder {
		return retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderOptions{
			BaseURL:    cfg.Model.BaseURL,
			APIKey:     cfg.Model.APIKey,
			Model:      cfg.Model.EmbeddingModel,
			Dimensions: cfg.Index.VectorSize,
			Timeout:    time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		})
	}); err != nil {
		return err
	}

	// 生成网关
	if err := container.Provide(func(cfg *config.Config) retrieval.Generator {
		return retrieval.NewOpenAIGenerator(retrieval.OpenAIGeneratorOptions{
			BaseURL:     cfg.Model.BaseURL,
			APIKey:      cfg.Model.APIKey,
			Model:       cfg.Model.ChatModel,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			Timeout:     time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		})
	}); err != nil {
		return err
	}

	// 向量索引
	if err := container.Provide(func(cfg *config.Config) (retrieval.VectorIndex, error) {
		switch cfg.Index.Provider {
		case "milvus":
			return retrieval.NewMilvusVectorIndex(retrieval.MilvusOptions{
				Address:    cfg.Index.Milvus.Address,
				Username:   cfg.Index.Milvus.Username,
				Password:   cfg.Index.Milvus.Password,
				Database:   cfg.Index.Milvus.Database,
				Collection: cfg.Index.Collection,
				VectorSize: cfg.Index.VectorSize,
				Distance:   cfg.Index.Distance,
				UseTLS:     cfg.Index.Milvus.UseTLS,
			})
		case "memory":
			return retrieval.NewMemoryVectorIndex(), nil
		default:
			return retrieval.NewQdrantVectorIndex(retrieval.QdrantOptions{
				Endpoint:   cfg.Index.Qdrant.Endpoint,
				APIKey:     cfg.Index.Qdrant.APIKey,
				Collection: cfg.Index.Collection,
				VectorSize: cfg.Index.VectorSize,
				Distance:   cfg.Index.Distance,
				Timeout:    time.Duration(cfg.Index.Qdrant.TimeoutSeconds) * time.Second,
			})
		}
	}); err != nil {
		return err
	}

	// 文档存储
	if err := container.Provide(func(cfg *config.Config) (storage.DocumentStorage, error) {
		switch cfg.Storage.Provider {
		case "minio", "s3":
			return storage.NewMinIOStorage(storage.MinIOOptions{
				Endpoint:  cfg.Storage.Endpoint,
				AccessKey: cfg.Storage.AccessKey,
				SecretKey: cfg.Storage.SecretKey,
				Bucket:    cfg.Storage.Bucket,
				UseSSL:    cfg.Storage.UseSSL,
			})
		default:
			return storage.NewLocalStorage(cfg.Storage.BasePath)
		}
	}); err != nil {
		return err
	}

	// 问答缓存
	if err := container.Provide(func(cfg *config.Config) (cache.AnswerCache, error) {
		if !cfg.Redis.Enabled {
			return cache.NoopAnswerCache{}, nil
		}
		return cache.NewRedisAnswerCache(cache.RedisOptions{
			Host: cfg.Redis.Host,
			Port: cfg.Redis.Port,
			DB:   cfg.Redis.DB,
			TTL:  time.Duration(cfg.Redis.TTL) * time.Second,
		})
	}); err != nil {
		return err
	}

	// JWT服务
	if err := container.Provide(func(cfg *config.Config) *auth.JWTService {
		return auth.NewJWTService(cfg.JWT.Secret, "finance-rag", 24*time.Hour)
	}); err != nil {
		return err
	}

	// 主体目录：未配置主体清单时返回nil，ACL成员校验关闭
	if err := container.Provide(func(cfg *config.Config) auth.PrincipalDirectory {
		if len(cfg.Auth.Principals) == 0 {
			return nil
		}
		principals := make([]retrieval.Principal, 0, len(cfg.Auth.Principals))
		for _, p := range cfg.Auth.Principals {
			principals = append(principals, retrieval.Principal{ID: p.ID, Role: p.Role})
		}
		return auth.NewStaticDirectory(principals)
	}); err != nil {
		return err
	}

	// 指标收集器
	if err := container.Provide(func(cfg *config.Config) *metrics.Collector {
		if !cfg.Metrics.Enabled {
			return nil
		}
		return metrics.NewCollector()
	}); err != nil {
		return err
	}

	// 基础组件
	if err := container.Provide(parser.NewManager); err != nil {
		return err
	}
	if err := container.Provide(retrieval.NewDiversityRanker); err != nil {
		return err
	}
	if err := container.Provide(guardrails.NewValidator); err != nil {
		return err
	}
	if err := container.Provide(audit.NewAuditor); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config) *services.IndexWorker {
		return services.NewIndexWorker(cfg.Retrieval.MaxParallel)
	}); err != nil {
		return err
	}

	// 服务层
	if err := container.Provide(services.NewIndexerService); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		embedder retrieval.Embedder,
		index retrieval.VectorIndex,
		generator retrieval.Generator,
		ranker *retrieval.DiversityRanker,
		validator *guardrails.Validator,
		answers cache.AnswerCache,
		collector *metrics.Collector,
		auditor *audit.Auditor,
	) *services.QueryService {
		return services.NewQueryService(
			embedder, index, generator, ranker, validator, answers, collector, auditor,
			cfg.Retrieval.Limit, cfg.Retrieval.OversampleFactor,
		)
	}); err != nil {
		return err
	}

	return nil
}
