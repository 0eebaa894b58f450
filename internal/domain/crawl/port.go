package crawl

import (
	"context"
	"errors"
)

// Page hasil fetch dari crawler
type Page struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	BodyText        string   `json:"body_text"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

var (
	ErrUnreachable = errors.New("site unreachable")
	ErrTimeout     = errors.New("fetch timeout")
	ErrBlocked     = errors.New("fetch blocked")
)

// Fetcher port (interface untuk crawl capability). Network fetching and
// rendering live behind this boundary.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}
