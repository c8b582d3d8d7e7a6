package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Index     IndexConfig     `mapstructure:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Env string    `mapstructure:"env"`
	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ModelConfig 模型服务配置（嵌入与生成走同一个OpenAI兼容端点）
type ModelConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	ChatModel      string  `mapstructure:"chat_model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// IndexConfig 向量索引配置
type IndexConfig struct {
	Provider   string       `mapstructure:"provider"` // qdrant | milvus | memory
	Collection string       `mapstructure:"collection"`
	VectorSize int          `mapstructure:"vector_size"`
	Distance   string       `mapstructure:"distance"`
	Qdrant     QdrantConfig `mapstructure:"qdrant"`
	Milvus     MilvusConfig `mapstructure:"milvus"`
}

type QdrantConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	UseTLS         bool   `mapstructure:"use_tls"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MilvusConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// RetrievalConfig 检索与分块配置
type RetrievalConfig struct {
	ChunkWords       int `mapstructure:"chunk_words"`       // 每块词数，默认100
	OverlapWords     int `mapstructure:"overlap_words"`     // 相邻块重叠词数，默认20
	Limit            int `mapstructure:"limit"`             // 默认返回条数
	OversampleFactor int `mapstructure:"oversample_factor"` // 超采样倍数
	MaxParallel      int `mapstructure:"max_parallel"`      // 后台索引并发度
}

type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // local | minio
	BasePath  string `mapstructure:"base_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	DB      int    `mapstructure:"db"`
	TTL     int    `mapstructure:"ttl"` // 秒
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// AuthConfig 主体目录配置。清单为空时不校验ACL成员
type AuthConfig struct {
	Principals []PrincipalConfig `mapstructure:"principals"`
}

type PrincipalConfig struct {
	ID   string `mapstructure:"id"`
	Role string `mapstructure:"role"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AppConfig 全局配置实例
var AppConfig *Config

// LoadConfig 加载配置（config.yaml + FINRAG_前缀环境变量覆盖）
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	setDefaults()

	// 读取环境变量
	viper.SetEnvPrefix("FINRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 常用的裸环境变量兼容
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		viper.Set("model.api_key", key)
	}
	if base := os.Getenv("LLM_BASE_URL"); base != "" {
		viper.Set("model.base_url", base)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("jwt.secret", secret)
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		viper.Set("storage.endpoint", endpoint)
		viper.Set("storage.provider", "minio")
	}

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件缺失时使用默认值，其它错误需要暴露
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.env", "production")
	viper.SetDefault("server.log.level", "info")

	viper.SetDefault("model.base_url", "http://localhost:11434/v1")
	viper.SetDefault("model.embedding_model", "nomic-embed-text")
	viper.SetDefault("model.chat_model", "llama2")
	viper.SetDefault("model.max_tokens", 2000)
	viper.SetDefault("model.temperature", 0.0)
	viper.SetDefault("model.timeout_seconds", 30)

	viper.SetDefault("index.provider", "qdrant")
	viper.SetDefault("index.collection", "finance_documents")
	viper.SetDefault("index.vector_size", 384)
	viper.SetDefault("index.distance", "cosine")
	viper.SetDefault("index.qdrant.endpoint", "http://localhost:6333")
	viper.SetDefault("index.qdrant.timeout_seconds", 10)
	viper.SetDefault("index.milvus.address", "localhost:19530")
	viper.SetDefault("index.milvus.database", "default")

	viper.SetDefault("retrieval.chunk_words", 100)
	viper.SetDefault("retrieval.overlap_words", 20)
	viper.SetDefault("retrieval.limit", 10)
	viper.SetDefault("retrieval.oversample_factor", 3)
	viper.SetDefault("retrieval.max_parallel", 4)

	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.base_path", "./uploads/documents")
	viper.SetDefault("storage.bucket", "finance-documents")
	viper.SetDefault("storage.use_ssl", false)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 300)

	viper.SetDefault("jwt.secret", "change-this-secret-in-production")

	viper.SetDefault("metrics.enabled", true)
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	switch c.Index.Provider {
	case "qdrant", "milvus", "memory":
	default:
		return fmt.Errorf("unknown index provider: %s", c.Index.Provider)
	}
	if c.Retrieval.ChunkWords <= 0 {
		return fmt.Errorf("retrieval.chunk_words must be positive")
	}
	if c.Retrieval.OverlapWords < 0 || c.Retrieval.OverlapWords >= c.Retrieval.ChunkWords {
		return fmt.Errorf("retrieval.overlap_words must satisfy 0 <= overlap < chunk_words")
	}
	if c.Retrieval.OversampleFactor <= 0 {
		return fmt.Errorf("retrieval.oversample_factor must be positive")
	}
	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
