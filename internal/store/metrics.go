package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics holds Prometheus metrics for the profile store.
type Metrics struct {
	ClusterMembers    prometheus.Gauge
	ClusterPartitions prometheus.Gauge
	StorageKeys       prometheus.Gauge

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates the profile store metrics and registers them.
func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ClusterMembers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "profile_store_cluster_members",
				Help:      "Number of members in the profile store cluster",
			},
		),
		ClusterPartitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "profile_store_partitions",
				Help:      "Number of partitions in the profile store",
			},
		),
		StorageKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "profile_store_keys",
				Help:      "Number of documents held by the profile store",
			},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_store_operations_total",
				Help:      "Total number of profile store operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "profile_store_operation_duration_seconds",
				Help:      "Profile store operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.ClusterMembers,
		m.ClusterPartitions,
		m.StorageKeys,
		m.OperationsTotal,
		m.OperationDuration,
	)

	return m
}

// RecordOperation records an operation metric.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// instrumented decorates a Store with operation metrics.
type instrumented struct {
	Store
	metrics *Metrics
}

// Instrument wraps s so every data operation is counted and timed.
func Instrument(s Store, m *Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, metrics: m}
}

func (i *instrumented) observe(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.metrics.RecordOperation(operation, status, time.Since(start))
}

func (i *instrumented) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.Store.Put(ctx, key, value)
	i.observe("put", start, err)
	return err
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := i.Store.Get(ctx, key)
	i.observe("get", start, err)
	return v, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.Keys(ctx)
	i.observe("keys", start, err)
	return keys, err
}

// MetricsCollector refreshes the store gauges periodically.
type MetricsCollector struct {
	logger   *zap.Logger
	store    Store
	metrics  *Metrics
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(logger *zap.Logger, store Store, metrics *Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger,
		store:    store,
		metrics:  metrics,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins collecting metrics. Calls after the first, or after Stop,
// do nothing.
func (c *MetricsCollector) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// Stop stops the metrics collector and waits for it to exit. It returns
// immediately when the collector was never started and is safe to call
// more than once.
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		// Stop before Start leaves nothing to wait for and prevents a later
		// Start from launching the loop.
		c.startOnce.Do(func() {})
		close(c.stopChan)
	})
	if c.started.Load() {
		<-c.doneChan
	}
}

func (c *MetricsCollector) run() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			c.logger.Info("Stopping profile store metrics collector")
			return
		}
	}
}

func (c *MetricsCollector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Error("Failed to collect profile store stats", zap.Error(err))
		return
	}

	c.metrics.ClusterMembers.Set(float64(stats.ClusterMembers))
	c.metrics.ClusterPartitions.Set(float64(stats.PartitionCount))
	c.metrics.StorageKeys.Set(float64(stats.TotalKeys))

	c.logger.Debug("Collected profile store metrics",
		zap.String("backend", stats.Backend),
		zap.Int("cluster_members", stats.ClusterMembers),
		zap.Int64("total_keys", stats.TotalKeys),
	)
}
