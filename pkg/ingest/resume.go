package ingest

import (
	"context"
	"fmt"
)

// Policy decides where a run resumes.
type Policy string

const (
	// PolicyCount resumes at the number of stored records + 1. It assumes
	// ids were stored without gaps and is kept for compatibility.
	PolicyCount Policy = "count"

	// PolicyMaxID resumes after the highest stored id.
	PolicyMaxID Policy = "max"

	// PolicyCursor resumes after the persisted cursor, which only advances
	// over ids that were stored or confirmed present.
	PolicyCursor Policy = "cursor"

	// PolicyFull starts at 1; stored ids are skipped without an upstream call.
	PolicyFull Policy = "full"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCount, PolicyMaxID, PolicyCursor, PolicyFull:
		return p, nil
	default:
		return "", fmt.Errorf("unknown resume policy %q (want count, max, cursor or full)", s)
	}
}

// startID returns the first id to visit, clamped into [1, total]. A resume
// point past the end re-checks the last id.
func (i *Ingester) startID(ctx context.Context, total int) (int64, error) {
	var next int64

	switch i.policy {
	case PolicyCount:
		n, err := i.store.Count(ctx, "")
		if err != nil {
			return 0, fmt.Errorf("count stored records: %w", err)
		}
		next = int64(n) + 1
	case PolicyMaxID:
		maxID, err := i.store.MaxID(ctx)
		if err != nil {
			return 0, fmt.Errorf("max stored id: %w", err)
		}
		next = maxID + 1
	case PolicyCursor:
		c, err := i.cursor.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load cursor: %w", err)
		}
		next = c + 1
	case PolicyFull:
		next = 1
	default:
		return 0, fmt.Errorf("unknown resume policy %q", i.policy)
	}

	if next > int64(total) {
		next = int64(total)
	}
	if next < 1 {
		next = 1
	}
	return next, nil
}
