package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnswerCache 问答结果缓存接口
type AnswerCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateAll(ctx context.Context) error
	Ready() bool
}

// CacheKey 问答缓存键。可见性由主体ID和角色共同决定（管理员角色绕过ACL），两者都必须参与键
func CacheKey(principalID, role, question, sourceFile string, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", principalID, role, question, sourceFile, limit)))
	return "finrag:answer:" + hex.EncodeToString(sum[:])
}

// RedisOptions Redis缓存配置
type RedisOptions struct {
	Host string
	Port string
	DB   int
	TTL  time.Duration
}

// RedisAnswerCache 基于Redis的问答缓存
type RedisAnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAnswerCache 创建Redis问答缓存
func NewRedisAnswerCache(opts RedisOptions) (*RedisAnswerCache, error) {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == "" {
		opts.Port = "6379"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		DB:   opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisAnswerCache{client: rdb, ttl: opts.TTL}, nil
}

func (c *RedisAnswerCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache entry decode failed: %w", err)
	}
	return true, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache entry encode failed: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateAll 文档或ACL变更后整体失效，避免过期答案泄露旧可见性
func (c *RedisAnswerCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "finrag:answer:*", 256).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

func (c *RedisAnswerCache) Ready() bool {
	if c == nil || c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// NoopAnswerCache 缓存未启用时的占位实现
type NoopAnswerCache struct{}

func (NoopAnswerCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (NoopAnswerCache) Set(context.Context, string, interface{}) error         { return nil }
func (NoopAnswerCache) InvalidateAll(context.Context) error                    { return nil }
func (NoopAnswerCache) Ready() bool                                            { return true }
