// Package metrics wires the storage engine's buffer pool and B+ tree
// counters into an OpenTelemetry pipeline exported over Prometheus, the
// same construction the source's own telemetry package uses for its
// request-traffic metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config controls whether metrics are collected and where they are served.
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ShutdownFunc drains and shuts down the metrics pipeline.
type ShutdownFunc func(context.Context) error

// Collector holds the counters emitted about buffer pool traffic and B+
// tree structural churn. A zero-value Collector (as returned when metrics
// are disabled) is safe to call methods on; they become no-ops.
type Collector struct {
	meter metric.Meter

	bufferHits      metric.Int64Counter
	bufferMisses    metric.Int64Counter
	bufferEvictions metric.Int64Counter
	bufferExhausted metric.Int64Counter
	newPages        metric.Int64Counter
	treeSplits      metric.Int64Counter
	treeMerges      metric.Int64Counter
}

// New builds a Collector. If cfg.Enabled is false, it returns a disabled
// Collector and a no-op shutdown function.
func New(cfg Config) (*Collector, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return &Collector{}, noop, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("eduql/storage")

	c := &Collector{meter: meter}
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"buffer_pool_hits_total", &c.bufferHits},
		{"buffer_pool_misses_total", &c.bufferMisses},
		{"buffer_pool_evictions_total", &c.bufferEvictions},
		{"buffer_pool_exhausted_total", &c.bufferExhausted},
		{"buffer_pool_new_pages_total", &c.newPages},
		{"btree_node_splits_total", &c.treeSplits},
		{"btree_node_merges_total", &c.treeMerges},
	}
	for _, ctr := range counters {
		counter, err := meter.Int64Counter(ctr.name)
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: register counter %s: %w", ctr.name, err)
		}
		*ctr.dst = counter
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		_ = server.ListenAndServe()
	}()

	shutdown := func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics: shut down http server: %w", err)
		}
		return provider.Shutdown(ctx)
	}
	return c, shutdown, nil
}

func (c *Collector) RecordHit() {
	if c == nil || c.bufferHits == nil {
		return
	}
	c.bufferHits.Add(context.Background(), 1)
}

func (c *Collector) RecordMiss() {
	if c == nil || c.bufferMisses == nil {
		return
	}
	c.bufferMisses.Add(context.Background(), 1)
}

func (c *Collector) RecordEviction() {
	if c == nil || c.bufferEvictions == nil {
		return
	}
	c.bufferEvictions.Add(context.Background(), 1)
}

func (c *Collector) RecordExhausted() {
	if c == nil || c.bufferExhausted == nil {
		return
	}
	c.bufferExhausted.Add(context.Background(), 1)
}

func (c *Collector) RecordNewPage() {
	if c == nil || c.newPages == nil {
		return
	}
	c.newPages.Add(context.Background(), 1)
}

func (c *Collector) RecordSplit() {
	if c == nil || c.treeSplits == nil {
		return
	}
	c.treeSplits.Add(context.Background(), 1)
}

func (c *Collector) RecordMerge() {
	if c == nil || c.treeMerges == nil {
		return
	}
	c.treeMerges.Add(context.Background(), 1)
}
