package codec

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/metrics"
)

// Codec reads and writes values of every supported Type.
type Codec struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	jsonDecoders []decodeStrategy
	jsonEncoders []encodeStrategy
}

// New creates a Codec. Both arguments may be nil.
func New(logger *zap.Logger, m *metrics.Metrics) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		logger:       logger,
		metrics:      m,
		jsonDecoders: jsonDecodeStrategies(),
		jsonEncoders: jsonEncodeStrategies(),
	}
}

// TypeOf asks the store for the type of key.
func (c *Codec) TypeOf(ctx context.Context, client redis.UniversalClient, key string) (Type, error) {
	name, err := client.Type(ctx, key).Result()
	if err != nil {
		return "", apperr.Upstream("codec.TypeOf", err)
	}
	return ParseType(name)
}

// Decode reads key as type t and returns its normalized value:
//
//	string -> string
//	hash   -> map[string]string
//	list   -> []string
//	set    -> []string, sorted
//	zset   -> []ScoredMember, in score order
//	json   -> decoded JSON, or the raw string if it does not parse
func (c *Codec) Decode(ctx context.Context, client redis.UniversalClient, key string, t Type) (any, error) {
	const op = "codec.Decode"

	switch t {
	case TypeString:
		v, err := client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound(op, "key %s does not exist", key)
		}
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		return v, nil

	case TypeHash:
		v, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		return v, nil

	case TypeList:
		v, err := client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		return v, nil

	case TypeSet:
		v, err := client.SMembers(ctx, key).Result()
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		sort.Strings(v)
		return v, nil

	case TypeZSet:
		raw, err := client.Do(ctx, "zrange", key, 0, -1, "withscores").StringSlice()
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		return PairScores(raw)

	case TypeJSON:
		return c.decodeJSON(ctx, client, key)

	case TypeNone:
		return nil, apperr.NotFound(op, "key %s does not exist", key)

	default:
		return nil, apperr.UnsupportedType(op, string(t))
	}
}

// Encode writes value to key as type t. Composite types replace the key in
// full: the delete and the writes run in one MULTI/EXEC, and an empty value
// leaves the key absent.
func (c *Codec) Encode(ctx context.Context, client redis.UniversalClient, key string, t Type, value any) error {
	const op = "codec.Encode"

	switch t {
	case TypeString:
		if err := client.Set(ctx, key, stringify(value), 0).Err(); err != nil {
			return apperr.Upstream(op, err)
		}
		return nil

	case TypeHash:
		fields, err := coerceHash(value)
		if err != nil {
			return err
		}
		return replace(ctx, client, key, func(pipe redis.Pipeliner) {
			if len(fields) > 0 {
				pipe.HSet(ctx, key, fields)
			}
		})

	case TypeList:
		items, err := coerceStrings(value)
		if err != nil {
			return err
		}
		return replace(ctx, client, key, func(pipe redis.Pipeliner) {
			if len(items) > 0 {
				pipe.RPush(ctx, key, toArgs(items)...)
			}
		})

	case TypeSet:
		items, err := coerceStrings(value)
		if err != nil {
			return err
		}
		return replace(ctx, client, key, func(pipe redis.Pipeliner) {
			if len(items) > 0 {
				pipe.SAdd(ctx, key, toArgs(items)...)
			}
		})

	case TypeZSet:
		members, err := coerceZSet(value)
		if err != nil {
			return err
		}
		return replace(ctx, client, key, func(pipe redis.Pipeliner) {
			if len(members) > 0 {
				zs := make([]redis.Z, 0, len(members))
				for _, m := range members {
					zs = append(zs, redis.Z{Score: m.Score, Member: m.Member})
				}
				pipe.ZAdd(ctx, key, zs...)
			}
		})

	case TypeJSON:
		return c.encodeJSON(ctx, client, key, value)

	default:
		return apperr.UnsupportedType(op, string(t))
	}
}

// replace deletes key and runs write inside the same transaction.
func replace(ctx context.Context, client redis.UniversalClient, key string, write func(redis.Pipeliner)) error {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		write(pipe)
		return nil
	})
	if err != nil {
		return apperr.Upstream("codec.Encode", err)
	}
	return nil
}

func toArgs(items []string) []any {
	args := make([]any, len(items))
	for i, s := range items {
		args[i] = s
	}
	return args
}
