package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alerts to the recipient's subject. Gate consoles
// subscribe to their estate's subject.
type NATSNotifier struct {
	conn Publisher
}

func NewNATSNotifier(conn Publisher) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

func (n *NATSNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to.Address == "" {
		return fmt.Errorf("notify: empty nats subject")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}
	if err := n.conn.Publish(to.Address, payload); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", to.Address, err)
	}
	return nil
}

// SecuritySubject is the subject an estate's gate consoles listen on.
func SecuritySubject(prefix, estateID string) string {
	return prefix + "." + estateID
}

// ConnectNATS dials the server with reconnects enabled and connection events
// logged.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("gatepass"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
