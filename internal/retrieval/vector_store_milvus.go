package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorIndex struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

var milvusOutputFields = []string{"id", FieldContent, FieldSourceFile, FieldPageNumber, FieldChunkIndex, FieldDocumentID, FieldACL}

// NewMilvusVectorIndex 创建Milvus向量索引客户端
func NewMilvusVectorIndex(opts MilvusOptions) (VectorIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "finance_documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 384
	}
	if opts.Distance == "" {
		opts.Distance = "COSINE"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorIndex{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

// filterExpr 将过滤器转换为Milvus布尔表达式。
// acl是JSON数组字段，包含语义用json_contains表达。
func filterExpr(f Filter) string {
	if f.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(f.Must))
	for _, cond := range f.Must {
		value := strings.ReplaceAll(cond.Value, `"`, `\"`)
		if cond.Key == FieldACL {
			parts = append(parts, fmt.Sprintf(`json_contains(%s, "%s")`, FieldACL, value))
		} else {
			parts = append(parts, fmt.Sprintf(`%s == "%s"`, cond.Key, value))
		}
	}
	return strings.Join(parts, " and ")
}

// queryExpr Query与Delete要求非空表达式，空过滤器退化为全量匹配。
func queryExpr(f Filter) string {
	if expr := filterExpr(f); expr != "" {
		return expr
	}
	return "id >= 0"
}

func (s *milvusVectorIndex) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "access controlled document chunks",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
					AutoID:     false,
				},
				{
					Name:     FieldDocumentID,
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "64",
					},
				},
				{
					Name:     FieldSourceFile,
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "512",
					},
				},
				{
					Name:     FieldPageNumber,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     FieldChunkIndex,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     FieldContent,
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     FieldACL,
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		// 创建索引 - HNSW失败时回退IVF_FLAT
		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(entity.MetricType(s.distance), 8, 64)
		if indexErr != nil {
			index, indexErr = entity.NewIndexIvfFlat(entity.MetricType(s.distance), 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

func (s *milvusVectorIndex) columns(points []Point) ([]entity.Column, error) {
	ids := make([]int64, len(points))
	documentIDs := make([]string, len(points))
	sourceFiles := make([]string, len(points))
	pageNumbers := make([]int64, len(points))
	chunkIndexes := make([]int64, len(points))
	contents := make([]string, len(points))
	acls := make([][]byte, len(points))
	vectors := make([][]float32, len(points))

	for i, p := range points {
		if len(p.Vector) != s.vectorSize {
			return nil, fmt.Errorf("point %d: vector size %d != %d", p.ID, len(p.Vector), s.vectorSize)
		}
		aclJSON, err := json.Marshal(p.Payload.ACL)
		if err != nil {
			return nil, err
		}
		ids[i] = int64(p.ID)
		documentIDs[i] = p.Payload.DocumentID
		sourceFiles[i] = p.Payload.SourceFile
		pageNumbers[i] = int64(p.Payload.PageNumber)
		chunkIndexes[i] = int64(p.Payload.ChunkIndex)
		contents[i] = p.Payload.Content
		acls[i] = aclJSON
		vectors[i] = p.Vector
	}

	return []entity.Column{
		entity.NewColumnInt64("id", ids),
		entity.NewColumnVarChar(FieldDocumentID, documentIDs),
		entity.NewColumnVarChar(FieldSourceFile, sourceFiles),
		entity.NewColumnInt64(FieldPageNumber, pageNumbers),
		entity.NewColumnInt64(FieldChunkIndex, chunkIndexes),
		entity.NewColumnVarChar(FieldContent, contents),
		entity.NewColumnJSONBytes(FieldACL, acls),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	}, nil
}

func (s *milvusVectorIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	cols, err := s.columns(points)
	if err != nil {
		return err
	}

	if _, err := s.milvusClient.Upsert(ctx, s.collection, "", cols...); err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}

	return nil
}

func (s *milvusVectorIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	rs, err := s.milvusClient.Query(ctx, s.collection, nil, queryExpr(filter), []string{"id"})
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}
	for _, col := range rs {
		if col.Name() == "id" {
			return col.Len(), nil
		}
	}
	return 0, nil
}

func (s *milvusVectorIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	count, err := s.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.milvusClient.Delete(ctx, s.collection, "", queryExpr(filter)); err != nil {
		return 0, fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return count, fmt.Errorf("milvus flush failed: %w", err)
	}

	return count, nil
}

func (s *milvusVectorIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		filterExpr(filter),
		milvusOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.MetricType(s.distance),
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []Match{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []Match{}, nil
	}

	payloads, ids, err := parseMilvusColumns(result.Fields, result.ResultCount)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, Match{
			ID:      ids[i],
			Score:   score,
			Payload: payloads[i],
		})
	}

	return matches, nil
}

// SetPayload Milvus不支持部分更新payload，按过滤器读回向量后整点重写
func (s *milvusVectorIndex) SetPayload(ctx context.Context, filter Filter, patch map[string]interface{}) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	outputs := append([]string{}, milvusOutputFields...)
	outputs = append(outputs, "vector")
	rs, err := s.milvusClient.Query(ctx, s.collection, nil, queryExpr(filter), outputs)
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}

	rowCount := 0
	var vectors [][]float32
	for _, col := range rs {
		switch c := col.(type) {
		case *entity.ColumnFloatVector:
			vectors = c.Data()
			rowCount = c.Len()
		}
	}
	if rowCount == 0 {
		return 0, nil
	}

	payloads, ids, err := parseMilvusColumns(rs, rowCount)
	if err != nil {
		return 0, err
	}

	points := make([]Point, rowCount)
	for i := 0; i < rowCount; i++ {
		payload := payloads[i]
		if acl, ok := patch[FieldACL]; ok {
			if aclList, ok := acl.([]string); ok {
				payload.ACL = aclList
			}
		}
		points[i] = Point{ID: ids[i], Vector: vectors[i], Payload: payload}
	}

	if err := s.Upsert(ctx, points); err != nil {
		return 0, err
	}

	return rowCount, nil
}

func (s *milvusVectorIndex) ScrollPayloads(ctx context.Context, filter Filter) ([]ChunkPayload, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	rs, err := s.milvusClient.Query(ctx, s.collection, nil, queryExpr(filter), milvusOutputFields)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	rowCount := 0
	for _, col := range rs {
		if col.Name() == "id" {
			rowCount = col.Len()
		}
	}
	if rowCount == 0 {
		return nil, nil
	}

	payloads, _, err := parseMilvusColumns(rs, rowCount)
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// parseMilvusColumns 从结果列集中还原payload与点ID
func parseMilvusColumns(fields []entity.Column, rowCount int) ([]ChunkPayload, []uint64, error) {
	var (
		ids          []int64
		documentIDs  []string
		sourceFiles  []string
		pageNumbers  []int64
		chunkIndexes []int64
		contents     []string
		acls         [][]byte
	)

	for _, field := range fields {
		switch field.Name() {
		case "id":
			if val, ok := field.(*entity.ColumnInt64); ok {
				ids = val.Data()
			}
		case FieldDocumentID:
			if val, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = val.Data()
			}
		case FieldSourceFile:
			if val, ok := field.(*entity.ColumnVarChar); ok {
				sourceFiles = val.Data()
			}
		case FieldPageNumber:
			if val, ok := field.(*entity.ColumnInt64); ok {
				pageNumbers = val.Data()
			}
		case FieldChunkIndex:
			if val, ok := field.(*entity.ColumnInt64); ok {
				chunkIndexes = val.Data()
			}
		case FieldContent:
			if val, ok := field.(*entity.ColumnVarChar); ok {
				contents = val.Data()
			}
		case FieldACL:
			if val, ok := field.(*entity.ColumnJSONBytes); ok {
				acls = val.Data()
			}
		}
	}

	payloads := make([]ChunkPayload, rowCount)
	pointIDs := make([]uint64, rowCount)
	for i := 0; i < rowCount; i++ {
		var payload ChunkPayload
		if i < len(documentIDs) {
			payload.DocumentID = documentIDs[i]
		}
		if i < len(sourceFiles) {
			payload.SourceFile = sourceFiles[i]
		}
		if i < len(pageNumbers) {
			payload.PageNumber = int(pageNumbers[i])
		}
		if i < len(chunkIndexes) {
			payload.ChunkIndex = int(chunkIndexes[i])
		}
		if i < len(contents) {
			payload.Content = contents[i]
		}
		if i < len(acls) {
			var acl []string
			if err := json.Unmarshal(acls[i], &acl); err == nil {
				payload.ACL = acl
			}
		}
		if i < len(ids) {
			pointIDs[i] = uint64(ids[i])
		}
		payloads[i] = payload
	}

	return payloads, pointIDs, nil
}

func (s *milvusVectorIndex) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
