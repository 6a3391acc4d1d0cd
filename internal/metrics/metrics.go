// Package metrics exports pipeline, render and upload counters to
// Prometheus.
//
// Metrics (namespace defaults to "sheetkit"):
//   - rows_read_total, batches_total, batch_size
//   - cell_errors_total{kind}, head_errors_total
//   - rules_rendered_total{kind}, rules_skipped_total{kind}
//   - read_duration_seconds
//   - uploads_total{template,result}, upload_duration_seconds{template}
//   - uploads_active, uploads_rejected_total
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "sheetkit"

// Collector implements core.Observer over a Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	rowsRead      prometheus.Counter
	batches       prometheus.Counter
	batchSize     prometheus.Histogram
	cellErrors    *prometheus.CounterVec
	headErrors    prometheus.Counter
	rulesRendered *prometheus.CounterVec
	rulesSkipped  *prometheus.CounterVec
	readDuration  prometheus.Histogram

	uploads        *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
}

var _ core.Observer = (*Collector)(nil)

// NewCollector registers all metrics with registry. A nil registry gets a
// fresh one; an empty namespace uses DefaultNamespace.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Data rows decoded from uploaded sheets.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Row batches handed to verify and handle hooks.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Rows per flushed batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
		}),
		cellErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cell_errors_total",
			Help:      "Cell errors recorded while reading, by kind.",
		}, []string{"kind"}),
		headErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "head_errors_total",
			Help:      "Reads rejected by the header check.",
		}),
		rulesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_rendered_total",
			Help:      "Dropdown rules written into workbooks, by kind.",
		}, []string{"kind"}),
		rulesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_skipped_total",
			Help:      "Dropdown rules skipped because their column was not found, by kind.",
		}, []string{"kind"}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Wall time of one pipeline read.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded files processed, by template and result.",
		}, []string{"template", "result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time to validate or annotate one uploaded file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"template"}),
	}

	registry.MustRegister(
		c.rowsRead,
		c.batches,
		c.batchSize,
		c.cellErrors,
		c.headErrors,
		c.rulesRendered,
		c.rulesSkipped,
		c.readDuration,
		c.uploads,
		c.uploadDuration,
	)
	return c
}

func (c *Collector) RowsRead(n int)                  { c.rowsRead.Add(float64(n)) }
func (c *Collector) HeadError()                      { c.headErrors.Inc() }
func (c *Collector) RuleRendered(kind core.RuleKind) { c.rulesRendered.WithLabelValues(kind.String()).Inc() }
func (c *Collector) RuleSkipped(kind core.RuleKind)  { c.rulesSkipped.WithLabelValues(kind.String()).Inc() }
func (c *Collector) ReadFinished(d time.Duration)    { c.readDuration.Observe(d.Seconds()) }

func (c *Collector) BatchFlushed(size int) {
	c.batches.Inc()
	c.batchSize.Observe(float64(size))
}

func (c *Collector) CellErrors(kind string, n int) {
	c.cellErrors.WithLabelValues(kind).Add(float64(n))
}

// Upload results recorded by ObserveUpload.
const (
	ResultValid    = "valid"
	ResultInvalid  = "invalid"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// ObserveUpload records one processed upload.
func (c *Collector) ObserveUpload(template, result string, d time.Duration) {
	c.uploads.WithLabelValues(template, result).Inc()
	c.uploadDuration.WithLabelValues(template).Observe(d.Seconds())
}

// WatchLimiter exports the limiter's live counts as gauges.
func (c *Collector) WatchLimiter(namespace string, l *core.UploadLimiter) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_active",
			Help:      "Uploads currently holding a limiter slot.",
		}, func() float64 { return float64(l.ActiveCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_rejected_total",
			Help:      "Uploads turned away because no slot freed up in time.",
		}, func() float64 { return float64(l.Status().Rejected) }),
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry  { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
