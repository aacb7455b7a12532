package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/EVODENUBY/DYPSE-sub000/internal/dates"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scraper"
)

// Source yields listing cards from one job board.
type Source interface {
	Source() string
	Walk(ctx context.Context) (*scraper.WalkResult, error)
	Enrich(ctx context.Context, card *scraper.Card) error
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	Source         string    `json:"source"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Pages          int       `json:"pages"`
	Parsed         int       `json:"parsed"`
	Skipped        int       `json:"skipped"`
	Created        int       `json:"created"`
	Updated        int       `json:"updated"`
	Failed         int       `json:"failed"`
	DetailFailures int       `json:"detailFailures"`
	Error          string    `json:"error,omitempty"`
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// FetchDetails enriches each card from its detail page before storing it.
	FetchDetails bool
	Logger       *zap.Logger
}

// Pipeline walks a source and reconciles every card it yields.
type Pipeline struct {
	source       Source
	reconciler   *Reconciler
	fetchDetails bool
	logger       *zap.Logger
}

// NewPipeline wires a source to a reconciler.
func NewPipeline(source Source, reconciler *Reconciler, opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:       source,
		reconciler:   reconciler,
		fetchDetails: opts.FetchDetails,
		logger:       logger,
	}
}

// Run performs one ingestion pass. A failed index page aborts the run; a card
// that cannot be stored is logged and counted, and the run moves on.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{Source: p.source.Source(), StartedAt: time.Now()}
	p.logger.Info("ingestion run started", zap.String("source", stats.Source))

	result, err := p.source.Walk(ctx)
	if err != nil {
		return p.finish(stats, err)
	}
	stats.Pages = result.Pages
	stats.Parsed = len(result.Cards)
	stats.Skipped = result.Skipped

	for _, card := range result.Cards {
		if err := ctx.Err(); err != nil {
			return p.finish(stats, err)
		}

		if dates.IsFutureRelative(card.DeadlineText) || dates.IsFutureRelative(card.PostedText) {
			p.logger.Warn("future relative date not resolved, default applied",
				zap.String("source_url", card.SourceURL),
				zap.String("posted", card.PostedText),
				zap.String("deadline", card.DeadlineText))
		}

		if p.fetchDetails {
			if err := p.source.Enrich(ctx, card); err != nil {
				stats.DetailFailures++
				p.logger.Warn("detail page skipped",
					zap.String("source_url", card.SourceURL),
					zap.Error(err))
			}
		}

		outcome, err := p.reconciler.Reconcile(ctx, card)
		if err != nil {
			stats.Failed++
			p.logger.Error("failed to reconcile listing",
				zap.String("source_url", card.SourceURL),
				zap.Error(err))
			continue
		}
		switch outcome {
		case OutcomeCreated:
			stats.Created++
		case OutcomeUpdated:
			stats.Updated++
		}
	}

	return p.finish(stats, nil)
}

func (p *Pipeline) finish(stats *RunStats, err error) (*RunStats, error) {
	stats.FinishedAt = time.Now()
	fields := []zap.Field{
		zap.String("source", stats.Source),
		zap.Int("pages", stats.Pages),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.FinishedAt.Sub(stats.StartedAt)),
	}
	if err != nil {
		stats.Error = err.Error()
		p.logger.Error("ingestion run failed", append(fields, zap.Error(err))...)
		return stats, err
	}
	p.logger.Info("ingestion run finished", fields...)
	return stats, nil
}
