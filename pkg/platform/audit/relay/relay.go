// Package relay drains the audit outbox into a message broker.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "gatepass/pkg/platform/audit"
)

// Outbox is the read side of an outbox-backed audit store.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, entryID uuid.UUID, at time.Time) error
}

// Producer publishes one keyed message.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls the outbox and publishes entries in creation order. An entry is
// marked published only after the broker acknowledged it, so delivery is
// at-least-once.
type Relay struct {
	outbox   Outbox
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func New(outbox Outbox, producer Producer, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		interval: time.Second,
		batch:    100,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch and returns how many entries were relayed. It
// stops at the first publish failure to preserve ordering.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	entries, err := r.outbox.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, e := range entries {
		if err := r.producer.Produce(ctx, r.topic, []byte(e.Key), e.Payload); err != nil {
			return sent, err
		}
		if err := r.outbox.MarkPublished(ctx, e.ID, time.Now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
