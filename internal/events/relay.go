package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRelayInterval = 5 * time.Second
	defaultRelayBatch    = 100
)

// Outbox is the store surface the relay drains.
type Outbox interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventPublished(ctx context.Context, id string, sentAt time.Time) error
}

// Bus publishes one message to a subject. *nats.Conn satisfies it.
type Bus interface {
	Publish(subject string, data []byte) error
}

// RelayConfig controls outbox draining.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

// Relay periodically drains unpublished outbox rows to the bus, publishing
// each event on its type as the subject. Publishing is at-least-once: a
// crash between publish and mark re-delivers the event on the next pass.
type Relay struct {
	outbox    Outbox
	bus       Bus
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRelay creates an outbox relay.
func NewRelay(outbox Outbox, bus Bus, cfg RelayConfig) *Relay {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRelayBatch
	}

	return &Relay{
		outbox:    outbox,
		bus:       bus,
		interval:  interval,
		batchSize: batchSize,
		logger:    cfg.Logger.With().Str("component", "events-relay").Logger(),
		now:       time.Now,
	}
}

// Run drains the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("draining events outbox")
			}
		}
	}
}

// DrainOnce publishes one batch of unpublished events.
func (r *Relay) DrainOnce(ctx context.Context) error {
	pending, err := r.outbox.ListUnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("listing unpublished events: %w", err)
	}

	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling event %q: %w", event.ID, err)
		}
		if err := r.bus.Publish(event.Type, payload); err != nil {
			return fmt.Errorf("publishing event %q: %w", event.ID, err)
		}
		if err := r.outbox.MarkEventPublished(ctx, event.ID, r.now().UTC()); err != nil {
			return fmt.Errorf("marking event %q published: %w", event.ID, err)
		}

		r.logger.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("event published")
	}

	return nil
}
