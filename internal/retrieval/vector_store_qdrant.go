package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

type qdrantVectorIndex struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
	vectorSize int
	distance   string
}

// NewQdrantVectorIndex 创建Qdrant向量索引客户端（REST接口）
func NewQdrantVectorIndex(opts QdrantOptions) (VectorIndex, error) {
	if opts.Endpoint == "" {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://localhost:6333", scheme)
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://%s", scheme, opts.Endpoint)
	}

	if opts.Collection == "" {
		opts.Collection = "finance_documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 384
	}
	if opts.Distance == "" {
		opts.Distance = "Cosine"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &qdrantVectorIndex{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		vectorSize: opts.VectorSize,
		distance:   formatDistance(opts.Distance),
	}, nil
}

func formatDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "dotproduct":
		return "Dot"
	case "euclid", "l2":
		return "Euclid"
	default:
		return "Cosine"
	}
}

// filterJSON 将过滤器转换为Qdrant的filter表达式。
// 数组字段（acl）上的match即为"包含该值"语义。
func filterJSON(f Filter) map[string]interface{} {
	if f.IsEmpty() {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(f.Must))
	for _, cond := range f.Must {
		must = append(must, map[string]interface{}{
			"key": cond.Key,
			"match": map[string]interface{}{
				"value": cond.Value,
			},
		})
	}
	return map[string]interface{}{"must": must}
}

func (s *qdrantVectorIndex) ensureCollection(ctx context.Context) error {
	resp, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil)
	if err == nil && resp.StatusCode == http.StatusOK {
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	resp, err = s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("create collection %s failed: %s", s.collection, resp.Status)
	}

	return nil
}

func (s *qdrantVectorIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	body := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			return fmt.Errorf("point %d: embedding is empty", p.ID)
		}
		body = append(body, map[string]interface{}{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]interface{}{
				FieldContent:    p.Payload.Content,
				FieldSourceFile: p.Payload.SourceFile,
				FieldPageNumber: p.Payload.PageNumber,
				FieldChunkIndex: p.Payload.ChunkIndex,
				FieldDocumentID: p.Payload.DocumentID,
				FieldACL:        p.Payload.ACL,
			},
		})
	}

	resp, err := s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), map[string]interface{}{"points": body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant upsert failed: %s %s", resp.Status, string(raw))
	}

	return nil
}

func (s *qdrantVectorIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	body := map[string]interface{}{"exact": true}
	if f := filterJSON(filter); f != nil {
		body["filter"] = f
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", s.collection), body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("qdrant count failed: %s %s", resp.Status, string(raw))
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (s *qdrantVectorIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	// Qdrant的删除接口不回报数量，先精确计数再删除
	count, err := s.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	body := map[string]interface{}{}
	if f := filterJSON(filter); f != nil {
		body["filter"] = f
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("qdrant delete failed: %s %s", resp.Status, string(raw))
	}

	return count, nil
}

func (s *qdrantVectorIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vectors": false,
	}
	if f := filterJSON(filter); f != nil {
		body["filter"] = f
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search failed: %s %s", resp.Status, string(raw))
	}

	var searchResp struct {
		Result []struct {
			ID      uint64          `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, err
	}

	results := make([]Match, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		var payload ChunkPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			continue
		}
		results = append(results, Match{
			ID:      item.ID,
			Score:   item.Score,
			Payload: payload,
		})
	}

	return results, nil
}

func (s *qdrantVectorIndex) SetPayload(ctx context.Context, filter Filter, patch map[string]interface{}) (int, error) {
	count, err := s.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	body := map[string]interface{}{
		"payload": patch,
	}
	if f := filterJSON(filter); f != nil {
		body["filter"] = f
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/payload?wait=true", s.collection), body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("qdrant set payload failed: %s %s", resp.Status, string(raw))
	}

	return count, nil
}

func (s *qdrantVectorIndex) ScrollPayloads(ctx context.Context, filter Filter) ([]ChunkPayload, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var payloads []ChunkPayload
	var offset interface{}

	for {
		body := map[string]interface{}{
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if f := filterJSON(filter); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", s.collection), body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("qdrant scroll failed: %s %s", resp.Status, string(raw))
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID      uint64          `json:"id"`
					Payload json.RawMessage `json:"payload"`
				} `json:"points"`
				NextPageOffset interface{} `json:"next_page_offset"`
			} `json:"result"`
		}
		err = json.NewDecoder(resp.Body).Decode(&scrollResp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, item := range scrollResp.Result.Points {
			var payload ChunkPayload
			if err := json.Unmarshal(item.Payload, &payload); err != nil {
				continue
			}
			payloads = append(payloads, payload)
		}

		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}

	return payloads, nil
}

func (s *qdrantVectorIndex) Ready() bool {
	return s.client != nil
}

func (s *qdrantVectorIndex) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// 连接失败对查询是致命的：失败关闭，绝不绕过过滤器
		return nil, apperrors.IndexUnavailable(err)
	}
	return resp, nil
}
