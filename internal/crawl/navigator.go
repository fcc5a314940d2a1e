package crawl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default pagination and record-ID parameters for the job search source.
const (
	DefaultOffsetParam      = "start"
	DefaultCurrentItemParam = "currentJobId"
	DefaultViewPathMarker   = "/jobs/view/"
)

// DefaultDropParams is the deny-list of volatile query parameters stripped
// during normalization: anything that anchors the result set to one item,
// encodes navigation origin, or carries tracking identifiers. Everything not
// listed here is a real filter and is preserved verbatim.
var DefaultDropParams = []string{
	"currentJobId",
	"originToLandingJobPostings",
	"origin",
	"trackingId",
	"refId",
	"lipi",
}

// Navigator builds normalized, cursor-stamped page URLs from a seed query.
// Two calls with the same inputs yield byte-identical output; the resulting
// string doubles as a key for detecting duplicate or looping navigation.
type Navigator struct {
	offsetParam      string
	currentItemParam string
	viewPathMarker   string
	drop             map[string]struct{}
}

// NewNavigator builds a Navigator. Empty arguments select the defaults.
func NewNavigator(offsetParam string, dropParams []string) *Navigator {
	if offsetParam == "" {
		offsetParam = DefaultOffsetParam
	}
	if len(dropParams) == 0 {
		dropParams = DefaultDropParams
	}
	drop := make(map[string]struct{}, len(dropParams))
	for _, p := range dropParams {
		drop[p] = struct{}{}
	}
	return &Navigator{
		offsetParam:      offsetParam,
		currentItemParam: DefaultCurrentItemParam,
		viewPathMarker:   DefaultViewPathMarker,
		drop:             drop,
	}
}

// Normalize strips deny-listed parameters from a seed URL and forces the
// offset parameter to zero. All remaining filter parameters survive
// untouched; query encoding is sorted so output is deterministic.
func (n *Navigator) Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse seed url: %w", err)
	}
	q := u.Query()
	for key := range q {
		if _, dropped := n.drop[key]; dropped {
			q.Del(key)
		}
	}
	q.Set(n.offsetParam, "0")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// WithOffset returns the URL with only the offset parameter rewritten.
func (n *Navigator) WithOffset(raw string, offset int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	q.Set(n.offsetParam, strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageURL resolves the cursor into a concrete page URL.
func (n *Navigator) PageURL(cursor Cursor) (string, error) {
	return n.WithOffset(cursor.Base, cursor.Offset)
}

// RecordIDFromURL pulls a record identifier out of a browsing URL: first
// from the current-item query parameter, then from the canonical view path.
// The second return is false when neither form is present.
func (n *Navigator) RecordIDFromURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if u, err := url.Parse(raw); err == nil {
		if id := strings.TrimSpace(u.Query().Get(n.currentItemParam)); id != "" {
			return id, true
		}
	}
	if idx := strings.Index(raw, n.viewPathMarker); idx >= 0 {
		rest := raw[idx+len(n.viewPathMarker):]
		if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
			rest = rest[:cut]
		}
		if rest != "" {
			return rest, true
		}
	}
	return "", false
}
