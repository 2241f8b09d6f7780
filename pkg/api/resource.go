package api

import (
	"strconv"

	"github.com/Sternrassler/dexmirror/pkg/pagination"
	"github.com/Sternrassler/dexmirror/pkg/record"
)

// Attributes is the attribute object of a record resource.
type Attributes struct {
	Name           string   `json:"name"`
	Height         float64  `json:"height"`
	Weight         float64  `json:"weight"`
	Categories     []string `json:"categories"`
	BaseExperience int      `json:"base_experience"`
	SpriteURL      *string  `json:"sprite_url"`
}

// Resource is a single record as exposed by the API.
type Resource struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// ListMeta describes the page a ListDocument holds.
type ListMeta struct {
	pagination.Params
	Total int `json:"total"`
}

// ListDocument is the body of a successful list response.
type ListDocument struct {
	Data []Resource `json:"data"`
	Meta ListMeta   `json:"meta"`
}

// ErrorDocument is the body of every non-2xx response.
type ErrorDocument struct {
	Detail string `json:"detail"`
}

// toResource maps a stored record onto its API representation.
func toResource(rec record.Record) Resource {
	categories := rec.Categories
	if categories == nil {
		categories = []string{}
	}

	return Resource{
		Type: record.ResourceType,
		ID:   strconv.FormatInt(rec.ID, 10),
		Attributes: Attributes{
			Name:           rec.Name,
			Height:         rec.Height,
			Weight:         rec.Weight,
			Categories:     categories,
			BaseExperience: rec.BaseExperience,
			SpriteURL:      rec.SpriteURL,
		},
	}
}
