package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Walker defaults.
const (
	DefaultDelay    = 2 * time.Second
	DefaultMaxPages = 10
)

// PageError is returned when a listing index page cannot be fetched or parsed.
// It aborts the whole walk.
type PageError struct {
	Page  int
	URL   string
	Cause error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("listing page %d (%s): %v", e.Page, e.URL, e.Cause)
}

func (e *PageError) Unwrap() error {
	return e.Cause
}

// WalkerConfig configures a Walker.
type WalkerConfig struct {
	// Delay is the minimum gap between two consecutive fetches. Zero disables it.
	Delay    time.Duration
	MaxPages int
	Fetcher  *Fetcher
	Logger   *zap.Logger
	// Clock supplies the ingestion time used for date defaults.
	Clock func() time.Time
}

// WalkResult holds the cards collected by one walk.
type WalkResult struct {
	Cards   []*Card
	Pages   int
	Skipped int
}

// Walker traverses the listing index of one adapter, one page at a time.
type Walker struct {
	adapter  Adapter
	fetcher  *Fetcher
	limiter  *rate.Limiter
	maxPages int
	logger   *zap.Logger
	clock    func() time.Time
}

// NewWalker creates a walker for adapter.
func NewWalker(adapter Adapter, cfg WalkerConfig) *Walker {
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewFetcher(nil)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	return &Walker{
		adapter:  adapter,
		fetcher:  cfg.Fetcher,
		limiter:  rate.NewLimiter(limit, 1),
		maxPages: cfg.MaxPages,
		logger:   cfg.Logger.With(zap.String("source", adapter.Source())),
		clock:    cfg.Clock,
	}
}

// Source returns the adapter's source identifier.
func (w *Walker) Source() string {
	return w.adapter.Source()
}

// Walk fetches index pages from page 1 until a page has no cards, the page has
// no next-page control, or the page ceiling is reached.
func (w *Walker) Walk(ctx context.Context) (*WalkResult, error) {
	result := &WalkResult{}

	for page := 1; page <= w.maxPages; page++ {
		pageURL := w.adapter.PageURL(page)
		w.logger.Debug("fetching listing page", zap.Int("page", page), zap.String("url", pageURL))

		doc, err := w.document(ctx, pageURL)
		if err != nil {
			return nil, &PageError{Page: page, URL: pageURL, Cause: err}
		}
		result.Pages = page

		fragments := w.adapter.ExtractCards(doc)
		if len(fragments) == 0 {
			w.logger.Info("no listings on page, stopping", zap.Int("page", page))
			break
		}

		now := w.clock()
		for _, f := range fragments {
			card := w.adapter.ParseFragment(f, now)
			if card == nil {
				result.Skipped++
				continue
			}
			result.Cards = append(result.Cards, card)
		}

		if !w.adapter.HasNextPage(doc) {
			w.logger.Debug("no next page control", zap.Int("page", page))
			break
		}
	}

	w.logger.Info("walk complete",
		zap.Int("pages", result.Pages),
		zap.Int("cards", len(result.Cards)),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Enrich fetches the card's detail page and fills the fields it carries.
func (w *Walker) Enrich(ctx context.Context, card *Card) error {
	doc, err := w.document(ctx, card.SourceURL)
	if err != nil {
		return fmt.Errorf("failed to fetch details: %w", err)
	}
	w.adapter.ParseDetail(doc, card)
	return nil
}

func (w *Walker) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := w.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
