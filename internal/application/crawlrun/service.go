package crawlrun

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanwahyu/evidence-triage/internal/application/ingest"
	"github.com/bryanwahyu/evidence-triage/internal/domain/classify"
	"github.com/bryanwahyu/evidence-triage/internal/domain/crawl"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// PageClassifier adapts the crawl capability to the classifier port so crawl
// runs flow through the same ingestion pipeline as archive batches. The
// payloadRef of a crawled item is its URL.
type PageClassifier struct {
	Fetcher crawl.Fetcher
	// Keywords supplies the suspicious-term list, typically the watchlist
	// keyword entries merged with the configured seed list.
	Keywords func() []string
}

func (p *PageClassifier) Classify(ctx context.Context, payloadRef string) (classify.Result, error) {
	page, err := p.Fetcher.Fetch(ctx, payloadRef)
	if err != nil {
		switch {
		case errors.Is(err, crawl.ErrTimeout):
			return classify.Result{}, fmt.Errorf("%w: %s", classify.ErrTimeout, payloadRef)
		case errors.Is(err, crawl.ErrUnreachable):
			return classify.Result{}, fmt.Errorf("%w: %s", classify.ErrUnavailable, payloadRef)
		default:
			// blocked sites are terminal, retrying will not help
			return classify.Result{}, fmt.Errorf("%w: %v", classify.ErrUnsupported, err)
		}
	}

	matched := page.MatchedKeywords
	if len(matched) == 0 {
		matched = matchKeywords(page, p.keywords())
	}

	fields := map[string]string{
		evidence.FieldURL:      page.URL,
		evidence.FieldTitle:    page.Title,
		evidence.FieldBodyText: page.BodyText,
	}
	if len(matched) == 0 {
		return classify.Result{Category: evidence.CategoryBenign, Confidence: 99, ExtractedFields: fields}, nil
	}
	fields[evidence.FieldKeywords] = strings.Join(matched, ",")
	fields["keyword_count"] = strconv.Itoa(len(matched))
	return classify.Result{
		Category:        evidence.CategorySuspiciousSite,
		Confidence:      confidenceFor(len(matched)),
		ExtractedFields: fields,
	}, nil
}

func (p *PageClassifier) keywords() []string {
	if p.Keywords == nil {
		return nil
	}
	return p.Keywords()
}

func matchKeywords(page crawl.Page, keywords []string) []string {
	text := strings.ToLower(page.Title + " " + page.BodyText)
	var out []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}

// confidenceFor grows with the number of matched terms, capped at 98.
func confidenceFor(matches int) int {
	c := 80 + matches*5
	if c > 98 {
		c = 98
	}
	return c
}

// Service runs crawl batches through a dedicated ingestion pipeline.
type Service struct {
	Pipeline *ingest.Service
}

// Crawl submits the URL list as a batch; pages are fetched under the
// pipeline's bounded concurrency and emitted as evidence items.
func (s *Service) Crawl(urls []string) (ingest.BatchHandle, error) {
	if len(urls) == 0 {
		return ingest.BatchHandle{}, fmt.Errorf("empty url list")
	}
	return s.Pipeline.IngestBatch("", urls)
}
