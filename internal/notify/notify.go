// Package notify delivers alerts to estate staff over the channel each
// recipient is reachable on.
package notify

import (
	"context"
	"fmt"
	"time"

	id "gatepass/pkg/domain"
)

type Channel string

const (
	// ChannelSecurity is the gate console feed; Address is the message subject.
	ChannelSecurity Channel = "security"
	// ChannelEmail is a person's inbox; Address is the email address.
	ChannelEmail Channel = "email"
)

type Recipient struct {
	Channel Channel
	Address string
	Name    string
}

// Message is one alert. It is encoded as JSON on message-bus channels.
type Message struct {
	Kind     string      `json:"kind"`
	Subject  string      `json:"subject"`
	Body     string      `json:"body"`
	EstateID id.EstateID `json:"estate_id"`
	EventID  string      `json:"event_id,omitempty"`
	Location string      `json:"location,omitempty"`
	At       time.Time   `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, to Recipient, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to Recipient, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, to Recipient, msg Message) error {
	return f(ctx, to, msg)
}

// Router hands each recipient to the notifier registered for its channel.
type Router struct {
	routes map[Channel]Notifier
}

func NewRouter() *Router {
	return &Router{routes: make(map[Channel]Notifier)}
}

// Route registers n for channel, replacing any earlier registration.
func (r *Router) Route(channel Channel, n Notifier) *Router {
	r.routes[channel] = n
	return r
}

func (r *Router) Notify(ctx context.Context, to Recipient, msg Message) error {
	n, ok := r.routes[to.Channel]
	if !ok {
		return fmt.Errorf("notify: no route for channel %q", to.Channel)
	}
	return n.Notify(ctx, to, msg)
}
