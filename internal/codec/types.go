// Package codec converts values between the store's native encodings and a
// uniform in-memory representation.
package codec

import (
	"strings"

	"github.com/n3tuk/redis-console/internal/apperr"
)

// Type is the closed set of value types the console understands.
type Type string

const (
	TypeString Type = "string"
	TypeHash   Type = "hash"
	TypeList   Type = "list"
	TypeSet    Type = "set"
	TypeZSet   Type = "zset"
	TypeJSON   Type = "json"
	TypeNone   Type = "none"
)

// rejsonTypeName is what TYPE reports for keys written by the JSON module.
const rejsonTypeName = "rejson-rl"

// ParseType maps a type name, as sent by a client or reported by TYPE, to a
// Type. Matching is case-insensitive.
func ParseType(name string) (Type, error) {
	switch t := strings.ToLower(strings.TrimSpace(name)); t {
	case "string", "hash", "list", "set", "zset", "json", "none":
		return Type(t), nil
	case rejsonTypeName:
		return TypeJSON, nil
	default:
		return "", apperr.UnsupportedType("codec.ParseType", name)
	}
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// Composite reports whether values of this type are collections written by
// replacing the whole key.
func (t Type) Composite() bool {
	switch t {
	case TypeHash, TypeList, TypeSet, TypeZSet:
		return true
	default:
		return false
	}
}

// ScoredMember is one entry of a sorted set.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}
