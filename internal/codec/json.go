package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
)

// errParse marks a value that was read but is not valid JSON.
var errParse = errors.New("value is not valid JSON")

// decodeStrategy is one way of reading a JSON value. Strategies are tried in
// order; the first success wins.
type decodeStrategy struct {
	name   string
	decode func(ctx context.Context, client redis.UniversalClient, key string) (any, error)
}

// encodeStrategy is one way of writing a JSON value.
type encodeStrategy struct {
	name   string
	encode func(ctx context.Context, client redis.UniversalClient, key, doc string) error
}

// jsonDecodeStrategies prefers the JSON module, then a plain string holding
// JSON, then the raw string.
func jsonDecodeStrategies() []decodeStrategy {
	return []decodeStrategy{
		{name: "json.get", decode: decodeNativeJSON},
		{name: "get+parse", decode: decodeStringJSON},
		{name: "raw", decode: decodeRawString},
	}
}

// jsonEncodeStrategies prefers the JSON module, then a plain string.
func jsonEncodeStrategies() []encodeStrategy {
	return []encodeStrategy{
		{name: "json.set", encode: encodeNativeJSON},
		{name: "set", encode: encodeStringJSON},
	}
}

func decodeNativeJSON(ctx context.Context, client redis.UniversalClient, key string) (any, error) {
	raw, err := client.Do(ctx, "JSON.GET", key).Text()
	if err != nil {
		return nil, err
	}
	return parseJSON(raw)
}

func decodeStringJSON(ctx context.Context, client redis.UniversalClient, key string) (any, error) {
	raw, err := client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return parseJSON(raw)
}

func decodeRawString(ctx context.Context, client redis.UniversalClient, key string) (any, error) {
	return client.Get(ctx, key).Result()
}

func encodeNativeJSON(ctx context.Context, client redis.UniversalClient, key, doc string) error {
	return client.Do(ctx, "JSON.SET", key, "$", doc).Err()
}

func encodeStringJSON(ctx context.Context, client redis.UniversalClient, key, doc string) error {
	return client.Set(ctx, key, doc, 0).Err()
}

func parseJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", errParse, err)
	}
	return v, nil
}

// degradable reports whether a strategy failure should fall through to the
// next strategy. The store rejecting the command (module missing, wrong
// type) and unparsable values degrade; transport failures do not.
func degradable(err error) bool {
	if errors.Is(err, errParse) {
		return true
	}
	var rerr redis.Error
	return errors.As(err, &rerr)
}

func (c *Codec) decodeJSON(ctx context.Context, client redis.UniversalClient, key string) (any, error) {
	const op = "codec.Decode"

	var lastErr error
	for i, s := range c.jsonDecoders {
		v, err := s.decode(ctx, client, key)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound(op, "key %s does not exist", key)
		}
		if !degradable(err) || i == len(c.jsonDecoders)-1 {
			return nil, apperr.Upstream(op, err)
		}

		c.logger.Warn("JSON decode strategy failed, falling back",
			zap.String("key", key),
			zap.String("strategy", s.name),
			zap.String("next", c.jsonDecoders[i+1].name),
			zap.Error(err),
		)
		c.metrics.RecordCodecFallback("decode", s.name)
		lastErr = err
	}

	return nil, apperr.Upstream(op, lastErr)
}

func (c *Codec) encodeJSON(ctx context.Context, client redis.UniversalClient, key string, value any) error {
	const op = "codec.Encode"

	doc, err := json.Marshal(value)
	if err != nil {
		return apperr.Invalid(op, "value cannot be encoded as JSON: %v", err)
	}

	var lastErr error
	for i, s := range c.jsonEncoders {
		err := s.encode(ctx, client, key, string(doc))
		if err == nil {
			return nil
		}
		if !degradable(err) || i == len(c.jsonEncoders)-1 {
			return apperr.Upstream(op, err)
		}

		c.logger.Warn("JSON encode strategy failed, falling back",
			zap.String("key", key),
			zap.String("strategy", s.name),
			zap.String("next", c.jsonEncoders[i+1].name),
			zap.Error(err),
		)
		c.metrics.RecordCodecFallback("encode", s.name)
		lastErr = err
	}

	return apperr.Upstream(op, lastErr)
}
