package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/n3tuk/redis-console/internal/apperr"
)

// PairScores turns a flat member/score reply into ScoredMembers, keeping
// the reply's order.
func PairScores(raw []string) ([]ScoredMember, error) {
	const op = "codec.PairScores"

	if len(raw)%2 != 0 {
		return nil, apperr.Invalid(op, "sorted set reply has odd length %d", len(raw))
	}

	out := make([]ScoredMember, 0, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		score, err := strconv.ParseFloat(raw[i+1], 64)
		if err != nil {
			return nil, apperr.Invalid(op, "invalid score %q for member %q", raw[i+1], raw[i])
		}
		out = append(out, ScoredMember{Member: raw[i], Score: score})
	}
	return out, nil
}

// stringify renders a decoded JSON value the way it is stored in a string
// field. Objects and arrays are stored as JSON.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func coerceHash(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for field, val := range v {
			out[field] = stringify(val)
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for field, val := range v {
			out[field] = val
		}
		return out, nil
	default:
		return nil, apperr.Invalid("codec.Encode", "hash value must be an object, got %T", value)
	}
}

func coerceStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = stringify(item)
		}
		return out, nil
	default:
		return nil, apperr.Invalid("codec.Encode", "value must be an array, got %T", value)
	}
}

// coerceZSet accepts []ScoredMember or an array of {member, score} objects.
// Entries without a member are skipped.
func coerceZSet(value any) ([]ScoredMember, error) {
	const op = "codec.Encode"

	switch v := value.(type) {
	case []ScoredMember:
		return v, nil
	case []any:
		out := make([]ScoredMember, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, apperr.Invalid(op, "sorted set entry %d must be an object, got %T", i, item)
			}
			member := stringify(obj["member"])
			if member == "" {
				continue
			}
			raw, ok := obj["score"]
			if !ok {
				continue
			}
			score, err := toScore(raw)
			if err != nil {
				return nil, apperr.Invalid(op, "invalid score for member %q: %v", member, err)
			}
			out = append(out, ScoredMember{Member: member, Score: score})
		}
		return out, nil
	default:
		return nil, apperr.Invalid(op, "sorted set value must be an array, got %T", value)
	}
}

func toScore(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
