package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "aggregator"

// Flush triggers used as the "trigger" label of BatchesFlushed.
const (
	TriggerSize     = "size"
	TriggerTime     = "time"
	TriggerShutdown = "shutdown"
)

// Metrics groups the collectors updated by the pipeline stages.
type Metrics struct {
	Processed      prometheus.Counter
	DecodeFailures prometheus.Counter
	ReadErrors     prometheus.Counter
	CommitErrors   prometheus.Counter
	Latency        prometheus.Histogram

	CacheFlushes      prometheus.Counter
	CacheCommandFails prometheus.Counter
	CacheConnErrors   prometheus.Counter

	QueueDepth   prometheus.Gauge
	QueueDropped prometheus.Counter

	BatchesFlushed *prometheus.CounterVec
	RowsWritten    prometheus.Counter
	FlushFailures  prometheus.Counter
	FlushDuration  prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "records_total",
			Help: "Market updates decoded and handed to the writer.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "decode_failures_total",
			Help: "Payloads dropped because they could not be decoded.",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "read_errors_total",
			Help: "Broker read errors other than an idle poll.",
		}),
		CommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "commit_errors_total",
			Help: "Offset commits that failed after the record was handled.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "latency_seconds",
			Help:    "End-to-end latency between production and consumption.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		}),
		CacheFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "pipeline_flushes_total",
			Help: "Pipelined SET batches sent to the cache.",
		}),
		CacheCommandFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "command_failures_total",
			Help: "SET commands that did not succeed, for any reason.",
		}),
		CacheConnErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "connection_errors_total",
			Help: "Pipeline flushes that failed at the connection level.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
			Help: "Records waiting between the consumer and the writer.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dropped_total",
			Help: "Records rejected because the queue limit was reached.",
		}),
		BatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "batches_total",
			Help: "Batches persisted, by flush trigger.",
		}, []string{"trigger"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "rows_total",
			Help: "Rows persisted to the store.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "flush_failures_total",
			Help: "Bulk inserts that failed and will be retried.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "writer", Name: "flush_duration_seconds",
			Help:    "Duration of bulk inserts.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Processed, m.DecodeFailures, m.ReadErrors, m.CommitErrors, m.Latency,
			m.CacheFlushes, m.CacheCommandFails, m.CacheConnErrors,
			m.QueueDepth, m.QueueDropped,
			m.BatchesFlushed, m.RowsWritten, m.FlushFailures, m.FlushDuration,
		)
	}
	return m
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics endpoint started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
