package console

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/codec"
	"github.com/n3tuk/redis-console/internal/model"
)

// ListKeys describes every key matching pattern, up to the configured
// maximum. An empty pattern matches all keys.
func (c *Console) ListKeys(ctx context.Context, id, pattern string) (keys []model.KeyDescriptor, err error) {
	const op = "console.ListKeys"
	defer c.observe("list_keys", time.Now(), &err)

	client, err := c.client(id)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	names, err := c.scan(ctx, client, pattern)
	if err != nil {
		return nil, apperr.Upstream(op, err)
	}

	out := make([]model.KeyDescriptor, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.keys.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = describe(gctx, client, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Upstream(op, err)
	}

	c.logger.Debug("Listed keys",
		zap.String("connection_id", id),
		zap.String("pattern", pattern),
		zap.Int("count", len(out)),
	)

	return out, nil
}

// scan walks the keyspace with SCAN MATCH. SCAN may return a key more than
// once, so results are deduplicated; they are returned sorted.
func (c *Console) scan(ctx context.Context, client redis.UniversalClient, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string

	iter := client.Scan(ctx, 0, pattern, c.keys.ScanCount).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		names = append(names, k)
		if len(names) >= c.keys.MaxResults {
			c.logger.Info("Key listing truncated",
				zap.String("pattern", pattern),
				zap.Int("max_results", c.keys.MaxResults),
			)
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

// describe looks up the type, TTL and memory usage of one key. Failures of
// TYPE or TTL are reported in the descriptor; MEMORY USAGE is optional and
// counts as zero when the server does not support it.
func describe(ctx context.Context, client redis.UniversalClient, key string) model.KeyDescriptor {
	d := model.KeyDescriptor{Key: key, TTL: -1, Size: model.FormatSize(0)}

	typeName, err := client.Type(ctx, key).Result()
	if err != nil {
		d.Type = codec.TypeNone.String()
		d.Error = err.Error()
		return d
	}
	if t, err := codec.ParseType(typeName); err == nil {
		d.Type = t.String()
	} else {
		d.Type = strings.ToLower(typeName)
	}

	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.TTL = ttlSeconds(ttl)

	if size, err := client.MemoryUsage(ctx, key).Result(); err == nil {
		d.SizeBytes = size
		d.Size = model.FormatSize(size)
	}

	return d
}

// ttlSeconds converts a TTL reply to seconds, keeping the -1 (no expiry)
// and -2 (missing key) markers.
func ttlSeconds(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}
