package model

import "fmt"

// KeyDescriptor summarizes a single key for the key browser.
// It is derived on every listing and never persisted.
type KeyDescriptor struct {
	// Key is the key name.
	Key string `json:"key"`

	// Type is one of string, hash, list, set, zset, json or none.
	Type string `json:"type"`

	// TTL is the remaining time to live in seconds; -1 means no expiry.
	TTL int64 `json:"ttl"`

	// SizeBytes is the approximate memory used by the key.
	SizeBytes int64 `json:"sizeBytes"`

	// Size is SizeBytes formatted for display.
	Size string `json:"size"`

	// Error is set when part of the descriptor could not be computed.
	Error string `json:"error,omitempty"`
}

// FormatSize renders a byte count as "B", "KB" or "MB" with one decimal.
func FormatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}

// KeyValue is a decoded value together with its type.
type KeyValue struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}
