package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	value := []byte("one")
	if err := s.Put(ctx, "a", value); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	value[0] = 'X'

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "one" {
		t.Errorf("Get() = %s, want one (stored value must not alias the caller's slice)", got)
	}

	if err := s.Put(ctx, "b", []byte("two")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Backend != "memory" || stats.TotalKeys != 2 || stats.ClusterMembers != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("second Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Error("Ping() after Close() should fail")
	}
	if err := s.Put(ctx, "c", nil); err == nil {
		t.Error("Put() after Close() should fail")
	}
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	m := NewMetrics("test", registry)

	s := Instrument(NewMemoryStore(), m)

	if err := s.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Keys(ctx); err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	checks := []struct {
		operation, status string
		want              float64
	}{
		{"put", "success", 1},
		{"get", "success", 1},
		{"get", "not_found", 1},
		{"keys", "success", 1},
		{"delete", "success", 1},
	}
	for _, c := range checks {
		got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues(c.operation, c.status))
		if got != c.want {
			t.Errorf("operations{%s,%s} = %v, want %v", c.operation, c.status, got, c.want)
		}
	}

	if Instrument(NewMemoryStore(), nil) == nil {
		t.Error("Instrument() with nil metrics should return the store unchanged")
	}
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	m := NewMetrics("test", registry)

	s := NewMemoryStore()
	_ = s.Put(ctx, "a", []byte("1"))
	_ = s.Put(ctx, "b", []byte("2"))

	c := NewMetricsCollector(zap.NewNop(), s, m, 0)
	c.collect()

	if got := testutil.ToFloat64(m.StorageKeys); got != 2 {
		t.Errorf("StorageKeys = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClusterMembers); got != 1 {
		t.Errorf("ClusterMembers = %v, want 1", got)
	}
}

func TestMetricsCollector_StopWithoutStart(t *testing.T) {
	c := NewMetricsCollector(zap.NewNop(), NewMemoryStore(), NewMetrics("test", prometheus.NewRegistry()), time.Hour)

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		c.Start()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on a collector that was never started")
	}
}

func TestMetricsCollector_StartStop(t *testing.T) {
	c := NewMetricsCollector(zap.NewNop(), NewMemoryStore(), NewMetrics("test", prometheus.NewRegistry()), time.Hour)
	c.Start()
	c.Start()

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after Start()")
	}
}
