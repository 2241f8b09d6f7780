package ingest

import (
	"github.com/Sternrassler/dexmirror/pkg/client"
	"github.com/Sternrassler/dexmirror/pkg/record"
)

// unitDivisor converts upstream tenths (decimetres, hectograms) to metres and
// kilograms.
const unitDivisor = 10.0

// Transform maps an upstream detail document onto the stored record for id.
func Transform(id int64, d client.Detail) record.Record {
	categories := make([]string, 0, len(d.Types))
	for _, slot := range d.Types {
		categories = append(categories, slot.Type.Name)
	}

	baseExperience := 0
	if d.BaseExperience != nil {
		baseExperience = *d.BaseExperience
	}

	return record.Record{
		ID:             id,
		Name:           d.Name,
		Height:         float64(d.Height) / unitDivisor,
		Weight:         float64(d.Weight) / unitDivisor,
		Categories:     categories,
		BaseExperience: baseExperience,
		SpriteURL:      d.Sprites.FrontDefault,
	}
}
