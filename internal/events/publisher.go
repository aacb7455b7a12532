// Package events publishes listing change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
)

// Subjects published by the ingestion pipeline
const (
	SubjectListingCreated = "listings.created"
	SubjectListingUpdated = "listings.updated"
)

const connectTimeout = 10 * time.Second

// Kind says whether a listing was inserted or overwritten.
type Kind string

// Listing change kinds
const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
)

// Subject returns the NATS subject for k.
func (k Kind) Subject() string {
	if k == KindCreated {
		return SubjectListingCreated
	}
	return SubjectListingUpdated
}

// ListingEvent is the JSON payload of a listing notification.
type ListingEvent struct {
	Type        Kind      `json:"type"`
	ID          string    `json:"id"`
	SourceURL   string    `json:"sourceUrl"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Source      string    `json:"source"`
	Deadline    time.Time `json:"deadline"`
	LastFetched time.Time `json:"lastFetched"`
}

// NewListingEvent builds the payload for listing.
func NewListingEvent(kind Kind, listing *db.Listing) ListingEvent {
	return ListingEvent{
		Type:        kind,
		ID:          listing.ID.String(),
		SourceURL:   listing.SourceURL,
		Title:       listing.Title,
		Company:     listing.Company,
		Source:      listing.Source,
		Deadline:    listing.Deadline,
		LastFetched: listing.LastFetched,
	}
}

// Publisher announces listing changes.
type Publisher interface {
	PublishListing(ctx context.Context, kind Kind, listing *db.Listing) error
	Close()
}

type natsConn interface {
	Publish(subj string, data []byte) error
	Close()
}

type natsPublisher struct {
	conn   natsConn
	logger *zap.Logger
}

// NewPublisher connects to natsURL. An empty URL yields a publisher that drops every event.
func NewPublisher(natsURL string, logger *zap.Logger) (Publisher, error) {
	if natsURL == "" {
		return Nop{}, nil
	}

	opts := []nats.Option{
		nats.Name("dypse-ingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &natsPublisher{conn: conn, logger: logger}, nil
}

func (p *natsPublisher) PublishListing(_ context.Context, kind Kind, listing *db.Listing) error {
	data, err := json.Marshal(NewListingEvent(kind, listing))
	if err != nil {
		return fmt.Errorf("marshaling listing event: %w", err)
	}

	subject := kind.Subject()
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to NATS: %w", err)
	}

	p.logger.Debug("published listing event",
		zap.String("subject", subject),
		zap.String("source_url", listing.SourceURL))
	return nil
}

func (p *natsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Nop discards events.
type Nop struct{}

// PublishListing implements Publisher.
func (Nop) PublishListing(context.Context, Kind, *db.Listing) error { return nil }

// Close implements Publisher.
func (Nop) Close() {}
