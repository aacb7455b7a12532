// Package ingest reconciles scraped listing cards into the listing store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
	"github.com/EVODENUBY/DYPSE-sub000/internal/events"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scraper"
)

// Store is the subset of the listing store the reconciler writes through.
type Store interface {
	GetListingBySourceURL(ctx context.Context, sourceURL string) (*db.Listing, error)
	CreateListing(ctx context.Context, input *db.ListingInput, fetchedAt time.Time) (*db.Listing, error)
	UpdateListing(ctx context.Context, id uuid.UUID, input *db.ListingInput, fetchedAt time.Time) (*db.Listing, error)
}

// Outcome reports what Reconcile did with a card.
type Outcome string

// Reconcile outcomes
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Reconciler upserts cards keyed by their source URL.
type Reconciler struct {
	store     Store
	source    string
	publisher events.Publisher
	logger    *zap.Logger
	clock     func() time.Time
}

// NewReconciler creates a reconciler that stamps new listings with source.
// A nil publisher drops change events.
func NewReconciler(store Store, source string, publisher events.Publisher, logger *zap.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		source:    source,
		publisher: publisher,
		logger:    logger,
		clock:     time.Now,
	}
}

// Reconcile creates the listing for an unseen source URL or overwrites the
// scraped fields of the existing one.
func (r *Reconciler) Reconcile(ctx context.Context, card *scraper.Card) (Outcome, error) {
	input := listingInput(card, r.source)
	now := r.clock()

	existing, err := r.store.GetListingBySourceURL(ctx, card.SourceURL)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", card.SourceURL, err)
	}

	var (
		listing *db.Listing
		outcome Outcome
	)
	if existing != nil {
		listing, err = r.store.UpdateListing(ctx, existing.ID, input, now)
		outcome = OutcomeUpdated
	} else {
		listing, err = r.store.CreateListing(ctx, input, now)
		outcome = OutcomeCreated
	}
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", card.SourceURL, err)
	}

	kind := events.KindUpdated
	if outcome == OutcomeCreated {
		kind = events.KindCreated
	}
	if err := r.publisher.PublishListing(ctx, kind, listing); err != nil {
		r.logger.Warn("failed to publish listing event",
			zap.String("source_url", listing.SourceURL),
			zap.Error(err))
	}

	return outcome, nil
}

func listingInput(card *scraper.Card, source string) *db.ListingInput {
	return &db.ListingInput{
		SourceURL:        card.SourceURL,
		Title:            card.Title,
		Company:          card.Company,
		Location:         card.Location,
		JobType:          card.JobType,
		PostedDate:       card.PostedDate,
		Deadline:         card.Deadline,
		Description:      card.Description,
		Requirements:     card.Requirements,
		Responsibilities: card.Responsibilities,
		Category:         card.Category,
		ExperienceLevel:  card.ExperienceLevel,
		Salary:           card.Salary,
		Source:           source,
	}
}
