package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestOlricStore starts a single-node store on the given ports and
// shuts it down when the test ends.
func newTestOlricStore(t *testing.T, port, memberlistPort int) *OlricStore {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger, _ := zap.NewDevelopment()

	cfg := NewDefaultOlricConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.BindPort = port
	cfg.MemberlistBindPort = memberlistPort
	cfg.LogLevel = "ERROR"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewOlricStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create Olric store: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := store.Close(shutdownCtx); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	return store
}

func TestOlricStore_SingleNode(t *testing.T) {
	store := newTestOlricStore(t, 13320, 13420)
	ctx := context.Background()

	key := "profile:test"
	value := []byte(`{"id":"test","host":"localhost","port":6379}`)
	if err := store.Put(ctx, key, value); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("Get() = %s, want %s", got, value)
	}

	if err := store.Put(ctx, "profile:other", []byte("{}")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "profile:other" || keys[1] != "profile:test" {
		t.Errorf("Keys() = %v, want [profile:other profile:test]", keys)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	_, err = store.Get(ctx, key)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on deleted key error = %v, want ErrNotFound", err)
	}
}

func TestOlricStore_Ping(t *testing.T) {
	store := newTestOlricStore(t, 13321, 13421)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestOlricStore_Stats(t *testing.T) {
	store := newTestOlricStore(t, 13322, 13422)
	ctx := context.Background()

	if err := store.Put(ctx, "profile:a", []byte("{}")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}

	if stats.Backend != "olric" {
		t.Errorf("Stats().Backend = %s, want olric", stats.Backend)
	}

	if stats.ClusterMembers != 1 {
		t.Errorf("Stats().ClusterMembers = %d, want 1", stats.ClusterMembers)
	}

	if stats.PartitionCount != DefaultPartitionCount {
		t.Errorf("Stats().PartitionCount = %d, want %d", stats.PartitionCount, DefaultPartitionCount)
	}

	if stats.TotalKeys != 1 {
		t.Errorf("Stats().TotalKeys = %d, want 1", stats.TotalKeys)
	}
}

func TestOlricStore_DeleteIdempotent(t *testing.T) {
	store := newTestOlricStore(t, 13323, 13423)
	ctx := context.Background()

	key := "non-existent-key"
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete() on non-existent key failed: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Second Delete() on non-existent key failed: %v", err)
	}
}

func TestNewOlricStore_InvalidConfig(t *testing.T) {
	logger := zap.NewNop()

	cfg := NewDefaultOlricConfig()
	cfg.BindPort = 0

	if _, err := NewOlricStore(context.Background(), cfg, logger); err == nil {
		t.Error("NewOlricStore() with invalid config should fail")
	}
}
