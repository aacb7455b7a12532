package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
	"github.com/EVODENUBY/DYPSE-sub000/internal/events"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scraper"
)

const testSource = "jobinrwanda"

func newStore(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func card(slug, title string) *scraper.Card {
	posted := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	return &scraper.Card{
		SourceURL:  "https://www.jobinrwanda.com/job/" + slug,
		Title:      title,
		Company:    scraper.DefaultCompany,
		Location:   scraper.DefaultLocation,
		JobType:    scraper.DefaultJobType,
		PostedDate: posted,
		Deadline:   posted.Add(scraper.DefaultDeadlineWindow),
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []events.Kind
	err   error
}

func (p *recordingPublisher) PublishListing(_ context.Context, kind events.Kind, _ *db.Listing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return p.err
}

func (p *recordingPublisher) Close() {}

func TestReconcile_IdempotentUpsert(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	r := NewReconciler(store, testSource, pub, nil)

	first := time.Date(2024, time.June, 1, 2, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return first }

	c := card("dev", "Developer")
	outcome, err := r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	created, err := store.GetListingBySourceURL(ctx, c.SourceURL)
	require.NoError(t, err)
	require.NotNil(t, created)

	second := first.Add(24 * time.Hour)
	r.clock = func() time.Time { return second }
	outcome, err = r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	page, err := store.QueryListings(ctx, db.ListingQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	got := page.Listings[0]
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.LastFetched.Equal(second))
	assert.True(t, got.LastFetched.After(created.LastFetched))
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	assert.Equal(t, []events.Kind{events.KindCreated, events.KindUpdated}, pub.kinds)
}

func TestReconcile_OverwritesFieldsButNotActiveFlag(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	r := NewReconciler(store, testSource, nil, nil)

	c := card("ops", "Ops Officer")
	_, err := r.Reconcile(ctx, c)
	require.NoError(t, err)

	existing, err := store.GetListingBySourceURL(ctx, c.SourceURL)
	require.NoError(t, err)
	require.NoError(t, store.SetListingActive(ctx, existing.ID, false))

	c.Title = "Senior Ops Officer"
	c.Requirements = []string{"Linux"}
	_, err = r.Reconcile(ctx, c)
	require.NoError(t, err)

	got, err := store.GetListingByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Senior Ops Officer", got.Title)
	assert.Equal(t, db.StringArray{"Linux"}, got.Requirements)
	assert.False(t, got.IsActive)
	assert.Equal(t, testSource, got.Source)
}

func TestReconcile_PublishFailureIsNotFatal(t *testing.T) {
	store := newStore(t)
	r := NewReconciler(store, testSource, &recordingPublisher{err: errors.New("nats down")}, nil)

	outcome, err := r.Reconcile(context.Background(), card("a", "A"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
}

// flakyStore fails writes for one source URL.
type flakyStore struct {
	*db.DB
	failURL string
}

func (s *flakyStore) CreateListing(ctx context.Context, input *db.ListingInput, at time.Time) (*db.Listing, error) {
	if input.SourceURL == s.failURL {
		return nil, errors.New("constraint violation")
	}
	return s.DB.CreateListing(ctx, input, at)
}

type fakeSource struct {
	cards     []*scraper.Card
	walkErr   error
	enrichErr map[string]error
	enriched  []string
}

func (s *fakeSource) Source() string { return testSource }

func (s *fakeSource) Walk(context.Context) (*scraper.WalkResult, error) {
	if s.walkErr != nil {
		return nil, s.walkErr
	}
	return &scraper.WalkResult{Cards: s.cards, Pages: 2, Skipped: 1}, nil
}

func (s *fakeSource) Enrich(_ context.Context, c *scraper.Card) error {
	s.enriched = append(s.enriched, c.SourceURL)
	if err := s.enrichErr[c.SourceURL]; err != nil {
		return err
	}
	c.Description = "details for " + c.Title
	return nil
}

func TestPipeline_Run_ContinuesPastRecordErrors(t *testing.T) {
	store := newStore(t)
	bad := card("bad", "Bad")
	src := &fakeSource{cards: []*scraper.Card{card("a", "A"), bad, card("c", "C")}}

	r := NewReconciler(&flakyStore{DB: store, failURL: bad.SourceURL}, testSource, nil, nil)
	stats, err := NewPipeline(src, r, PipelineOptions{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Pages)
	assert.Empty(t, stats.Error)
	assert.Empty(t, src.enriched, "details are only fetched when enabled")

	page, err := store.QueryListings(context.Background(), db.ListingQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestPipeline_Run_WalkFailureAbortsRun(t *testing.T) {
	store := newStore(t)
	walkErr := &scraper.PageError{Page: 1, URL: "https://www.jobinrwanda.com/jobs/all?page=1", Cause: errors.New("503")}
	src := &fakeSource{walkErr: walkErr}

	stats, err := NewPipeline(src, NewReconciler(store, testSource, nil, nil), PipelineOptions{}).Run(context.Background())
	require.Error(t, err)

	var pageErr *scraper.PageError
	assert.True(t, errors.As(err, &pageErr))
	require.NotNil(t, stats)
	assert.Contains(t, stats.Error, "listing page 1")
	assert.Zero(t, stats.Created)
}

func TestPipeline_Run_EnrichesCards(t *testing.T) {
	store := newStore(t)
	a, b := card("a", "A"), card("b", "B")
	src := &fakeSource{
		cards:     []*scraper.Card{a, b},
		enrichErr: map[string]error{b.SourceURL: errors.New("404")},
	}

	stats, err := NewPipeline(src, NewReconciler(store, testSource, nil, nil), PipelineOptions{FetchDetails: true}).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.DetailFailures)
	assert.Equal(t, []string{a.SourceURL, b.SourceURL}, src.enriched)

	got, err := store.GetListingBySourceURL(context.Background(), a.SourceURL)
	require.NoError(t, err)
	assert.Equal(t, "details for A", got.Description)

	got, err = store.GetListingBySourceURL(context.Background(), b.SourceURL)
	require.NoError(t, err)
	assert.Empty(t, got.Description)
}

func TestPipeline_Run_StopsWhenCancelled(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{cards: []*scraper.Card{card("a", "A")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewPipeline(src, NewReconciler(store, testSource, nil, nil), PipelineOptions{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Created)
}
