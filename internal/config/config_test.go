package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	// 隔离裸环境变量兼容入口
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("MINIO_ENDPOINT", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// 带下划线的键必须完整落到结构体字段上
	assert.Equal(t, 100, cfg.Retrieval.ChunkWords)
	assert.Equal(t, 20, cfg.Retrieval.OverlapWords)
	assert.Equal(t, 10, cfg.Retrieval.Limit)
	assert.Equal(t, 3, cfg.Retrieval.OversampleFactor)
	assert.Equal(t, 4, cfg.Retrieval.MaxParallel)

	assert.Equal(t, "http://localhost:11434/v1", cfg.Model.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Model.EmbeddingModel)
	assert.Equal(t, 30, cfg.Model.TimeoutSeconds)

	assert.Equal(t, "qdrant", cfg.Index.Provider)
	assert.Equal(t, 384, cfg.Index.VectorSize)
	assert.Equal(t, 10, cfg.Index.Qdrant.TimeoutSeconds)

	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "./uploads/documents", cfg.Storage.BasePath)

	assert.Same(t, cfg, GetAppConfig())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("FINRAG_RETRIEVAL_CHUNK_WORDS", "50")
	t.Setenv("FINRAG_INDEX_PROVIDER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Retrieval.ChunkWords)
	assert.Equal(t, "memory", cfg.Index.Provider)
}

func TestLoadConfig_RejectsInvalidRetrieval(t *testing.T) {
	resetViper(t)
	t.Setenv("FINRAG_RETRIEVAL_OVERLAP_WORDS", "200")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestValidate_UnknownIndexProvider(t *testing.T) {
	cfg := &Config{
		Index:     IndexConfig{Provider: "sqlite"},
		Retrieval: RetrievalConfig{ChunkWords: 100, OverlapWords: 20, OversampleFactor: 3},
	}
	assert.Error(t, cfg.Validate())
}
