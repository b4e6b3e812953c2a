package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes alerts to the log. Used in development and as the last
// resort behind a failing transport.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	n.logger.WarnContext(ctx, "alert",
		"channel", to.Channel,
		"to", to.Address,
		"kind", msg.Kind,
		"subject", msg.Subject,
		"estate_id", msg.EstateID,
		"event_id", msg.EventID,
		"location", msg.Location,
	)
	return nil
}
