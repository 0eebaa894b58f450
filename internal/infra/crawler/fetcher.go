package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/bryanwahyu/evidence-triage/internal/domain/crawl"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 2 << 20 // pages larger than 2MB are truncated
	userAgent      = "evidence-triage-crawler/1.0"
)

// Fetcher implements the crawl capability over plain HTTP. Rendering-heavy
// sites are out of scope; we only need title and visible text.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawl.Page, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return crawl.Page{}, fmt.Errorf("%w: %v", crawl.ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return crawl.Page{}, mapFetchError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return crawl.Page{}, fmt.Errorf("%w: status %d", crawl.ErrBlocked, resp.StatusCode)
	case resp.StatusCode >= 400:
		return crawl.Page{}, fmt.Errorf("%w: status %d", crawl.ErrUnreachable, resp.StatusCode)
	}

	title, text, err := extract(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return crawl.Page{}, fmt.Errorf("%w: parsing body: %v", crawl.ErrUnreachable, err)
	}
	return crawl.Page{URL: rawURL, Title: title, BodyText: text}, nil
}

func mapFetchError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", crawl.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", crawl.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", crawl.ErrUnreachable, err)
}

// extract walks the HTML tree collecting the <title> and visible text,
// skipping script/style subtrees.
func extract(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, strings.TrimSpace(b.String()), nil
}
