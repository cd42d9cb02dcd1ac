package pagination

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit applies when the caller omits limit.
	DefaultLimit = 10
	// DefaultMaxLimit caps limit so one request cannot scan a whole collection.
	DefaultMaxLimit = 100
)

var (
	ErrInvalidPage  = errors.New("pagination: page must be a positive integer")
	ErrInvalidLimit = errors.New("pagination: limit must be a positive integer")
)

// Params is an offset page request. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// MaxOffset is the largest skip a store query accepts; Firestore offsets are int32.
const MaxOffset = math.MaxInt32

// Offset returns the number of records to skip, (page-1)*limit, saturating at MaxOffset
// so a huge page lands past the end instead of wrapping negative.
func (p Params) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > MaxOffset/p.Limit {
		return MaxOffset
	}
	return (p.Page - 1) * p.Limit
}

// Window clamps [Offset, Offset+Limit) to a slice of length n.
func (p Params) Window(n int) (start, end int) {
	start = p.Offset()
	if start > n {
		start = n
	}
	end = start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

// Options controls defaults for one handler group.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// FromRequest parses page and limit from the query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil || r.URL == nil {
		return Parse(nil, opts)
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page and limit. Limits above the maximum are clamped, not rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	params := Params{Page: 1, Limit: limit}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, ErrInvalidPage
		}
		params.Page = page
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, ErrInvalidLimit
		}
		if n > maxLimit {
			n = maxLimit
		}
		params.Limit = n
	}
	if params.Page-1 > MaxOffset/params.Limit {
		return Params{}, ErrInvalidPage
	}
	return params, nil
}
