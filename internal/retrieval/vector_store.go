package retrieval

import "context"

// VectorIndex 向量索引抽象。索引生命周期管理器是唯一写入方；
// 查询编排器只读。过滤器在索引层求值，绝不在取回后再过滤。
type VectorIndex interface {
	// Upsert 批量写入或覆盖点（点ID相同则覆盖）
	Upsert(ctx context.Context, points []Point) error
	// Delete 删除匹配过滤器的所有点，返回删除数量
	Delete(ctx context.Context, filter Filter) (int, error)
	// Search 带过滤器的相似度检索，按得分降序返回最多limit条
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error)
	// SetPayload 对匹配过滤器的所有点打payload补丁，返回受影响数量
	SetPayload(ctx context.Context, filter Filter, patch map[string]interface{}) (int, error)
	// ScrollPayloads 遍历匹配过滤器的所有点的payload（管理用途）
	ScrollPayloads(ctx context.Context, filter Filter) ([]ChunkPayload, error)
	// Count 精确统计匹配过滤器的点数
	Count(ctx context.Context, filter Filter) (int, error)
	Ready() bool
}
