package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 检索与索引指标收集器
type Collector struct {
	documentsIndexed *prometheus.CounterVec
	chunksUpserted   prometheus.Counter
	chunksDeleted    prometheus.Counter
	indexDuration    *prometheus.HistogramVec

	queriesTotal    *prometheus.CounterVec
	emptyRetrievals prometheus.Counter
	queryDuration   *prometheus.HistogramVec
	embedDuration   prometheus.Histogram
}

// NewCollector 创建并注册指标收集器
func NewCollector() *Collector {
	c := &Collector{}
	c.registerMetrics()
	return c
}

func (c *Collector) registerMetrics() {
	c.documentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_documents_indexed_total",
			Help: "Total number of document indexing runs",
		},
		[]string{"status"}, // success, failed
	)

	c.chunksUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_chunks_upserted_total",
			Help: "Total number of chunks written to the vector index",
		},
	)

	c.chunksDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_chunks_deleted_total",
			Help: "Total number of chunks deleted from the vector index",
		},
	)

	c.indexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_index_duration_seconds",
			Help:    "Duration of document indexing runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // index, reindex, delete
	)

	c.queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_queries_total",
			Help: "Total number of answered queries",
		},
		[]string{"status"}, // success, denied, failed
	)

	c.emptyRetrievals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_empty_retrievals_total",
			Help: "Queries for which no visible chunks were retrieved",
		},
	)

	c.queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "End to end query duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // retrieve, generate, total
	)

	c.embedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_embedding_duration_seconds",
			Help:    "Duration of embedding calls",
			Buckets: prometheus.DefBuckets,
		},
	)
}

// RecordIndexRun 记录一次文档索引
func (c *Collector) RecordIndexRun(operation string, chunks int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	c.documentsIndexed.WithLabelValues(status).Inc()
	if err == nil && chunks > 0 {
		c.chunksUpserted.Add(float64(chunks))
	}
	c.indexDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordChunksDeleted 记录索引删除的块数
func (c *Collector) RecordChunksDeleted(count int) {
	if count > 0 {
		c.chunksDeleted.Add(float64(count))
	}
}

// RecordQuery 记录一次问答
func (c *Collector) RecordQuery(status string, resultCount int, duration time.Duration) {
	c.queriesTotal.WithLabelValues(status).Inc()
	if resultCount == 0 && status == "success" {
		c.emptyRetrievals.Inc()
	}
	c.queryDuration.WithLabelValues("total").Observe(duration.Seconds())
}

// RecordStage 记录问答各阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.queryDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordEmbedding 记录嵌入调用耗时
func (c *Collector) RecordEmbedding(duration time.Duration) {
	c.embedDuration.Observe(duration.Seconds())
}
