package retrieval

// 索引payload字段名（与向量索引中的存储键一致）
const (
	FieldContent    = "content"
	FieldSourceFile = "source_file"
	FieldPageNumber = "page_number"
	FieldChunkIndex = "chunk_index"
	FieldDocumentID = "document_id"
	FieldACL        = "acl"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Text       string
	PageNumber int // 页码，从1开始
	Sequence   int // 文档内分块序号，从0开始单调递增
}

// ChunkPayload 分块在索引中的payload
type ChunkPayload struct {
	Content    string   `json:"content"`
	SourceFile string   `json:"source_file"`
	PageNumber int      `json:"page_number"`
	ChunkIndex int      `json:"chunk_index"`
	DocumentID string   `json:"document_id"`
	ACL        []string `json:"acl"`
}

// Point 待写入向量索引的点
type Point struct {
	ID      uint64
	Vector  []float32
	Payload ChunkPayload
}

// Match 相似度检索命中结果
type Match struct {
	ID      uint64
	Score   float64
	Payload ChunkPayload
}

// Condition 单个过滤条件：字段等于值；数组字段表示包含该值
type Condition struct {
	Key   string
	Value string
}

// Filter 索引端过滤器，条件之间为AND关系；空过滤器匹配全部点
type Filter struct {
	Must []Condition
}

// IsEmpty 过滤器是否为空
func (f Filter) IsEmpty() bool {
	return len(f.Must) == 0
}

// And 追加一个条件，返回新过滤器
func (f Filter) And(key, value string) Filter {
	must := make([]Condition, len(f.Must), len(f.Must)+1)
	copy(must, f.Must)
	return Filter{Must: append(must, Condition{Key: key, Value: value})}
}

// DocumentFilter 按文档ID过滤
func DocumentFilter(documentID string) Filter {
	return Filter{Must: []Condition{{Key: FieldDocumentID, Value: documentID}}}
}

// SourceFileFilter 按源文件名过滤
func SourceFileFilter(filename string) Filter {
	return Filter{Must: []Condition{{Key: FieldSourceFile, Value: filename}}}
}
