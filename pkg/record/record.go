// Package record defines the mirrored upstream resource and the encoding of
// its categories column.
package record

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ResourceType is the "type" member of every resource in API documents.
const ResourceType = "record"

// Record is a single upstream resource as stored locally.
type Record struct {
	// ID is the stable upstream identifier and the primary key.
	ID int64

	// Name is unique across all records.
	Name string

	// Height and Weight are converted from upstream tenths.
	Height float64
	Weight float64

	// Categories keeps upstream order.
	Categories []string

	// BaseExperience is 0 when upstream omits it.
	BaseExperience int

	// SpriteURL is nil when upstream has no default sprite.
	SpriteURL *string
}

// EncodeCategories serializes categories as a JSON array string.
// A nil slice encodes as "[]" so the column never holds "null".
func EncodeCategories(categories []string) (string, error) {
	if categories == nil {
		categories = []string{}
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return "", fmt.Errorf("encode categories: %w", err)
	}
	return string(data), nil
}

// DecodeCategories parses a JSON array string produced by EncodeCategories.
func DecodeCategories(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var categories []string
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil, fmt.Errorf("decode categories %q: %w", raw, err)
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}
