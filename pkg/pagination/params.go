package pagination

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Defaults and bounds for page parameters.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Query parameter names.
const (
	ParamPage     = "page"
	ParamPageSize = "page_size"
)

// ErrInvalidParams is wrapped by every validation error.
var ErrInvalidParams = errors.New("invalid pagination parameters")

// Params is a validated page request.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Default returns the first page with the default size.
func Default() Params {
	return Params{Page: DefaultPage, PageSize: DefaultPageSize}
}

// FromQuery reads page and page_size from query values, applying defaults
// for absent or empty parameters.
func FromQuery(q url.Values) (Params, error) {
	p := Default()

	if raw := q.Get(ParamPage); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidParams, ParamPage, raw)
		}
		p.Page = v
	}

	if raw := q.Get(ParamPageSize); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidParams, ParamPageSize, raw)
		}
		p.PageSize = v
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks page >= 1 and pageSize in [1, MaxPageSize].
func (p Params) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidParams, ParamPage, p.Page)
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrInvalidParams, ParamPageSize, MaxPageSize, p.PageSize)
	}
	return nil
}

// Offset is the number of rows skipped before this page. It saturates at
// math.MaxInt rather than wrapping, so an absurd page number still selects
// an empty page.
func (p Params) Offset() int {
	if p.PageSize > 0 && p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}
