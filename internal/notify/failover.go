package notify

import (
	"context"
	"errors"
	"log/slog"

	"gatepass/pkg/platform/circuit"
)

// Failover sends through primary and falls back once primary has failed
// enough times in a row to open the breaker. Primary is still tried on every
// call so the breaker can close again.
type Failover struct {
	primary  Notifier
	fallback Notifier
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailover(primary, fallback Notifier, breaker *circuit.Breaker, logger *slog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

func (f *Failover) Notify(ctx context.Context, to Recipient, msg Message) error {
	err := f.primary.Notify(ctx, to, msg)
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "notifier circuit closed", "breaker", f.breaker.Name())
		}
		return nil
	}

	useFallback, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "notifier circuit opened", "breaker", f.breaker.Name(), "error", err)
	}
	if !useFallback {
		return err
	}
	if fbErr := f.fallback.Notify(ctx, to, msg); fbErr != nil {
		return errors.Join(err, fbErr)
	}
	return nil
}
