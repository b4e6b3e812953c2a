package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/circuit"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, Recipient, Message) error {
	n.calls++
	return n.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func alert() Message {
	return Message{
		Kind:     "panic",
		Subject:  "Panic alert",
		Body:     "Panic raised by Meera Iyer",
		EstateID: id.EstateID(uuid.New()),
		Location: "Block A lobby",
		At:       time.Date(2026, 6, 1, 22, 15, 0, 0, time.UTC),
	}
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub)
	msg := alert()
	subject := SecuritySubject("gatepass.security", msg.EstateID.String())

	require.NoError(t, n.Notify(context.Background(), Recipient{Channel: ChannelSecurity, Address: subject}, msg))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "gatepass.security."+msg.EstateID.String(), pub.msgs[0].subject)

	var decoded Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &decoded))
	assert.Equal(t, msg, decoded)

	t.Run("empty subject", func(t *testing.T) {
		assert.Error(t, n.Notify(context.Background(), Recipient{Channel: ChannelSecurity}, msg))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, n.Notify(ctx, Recipient{Address: subject}, msg), context.Canceled)
	})

	t.Run("publish failure wraps the cause", func(t *testing.T) {
		boom := errors.New("connection closed")
		err := NewNATSNotifier(&fakePublisher{err: boom}).Notify(context.Background(), Recipient{Address: subject}, msg)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRouter(t *testing.T) {
	security, email := &countingNotifier{}, &countingNotifier{}
	r := NewRouter().Route(ChannelSecurity, security).Route(ChannelEmail, email)

	require.NoError(t, r.Notify(context.Background(), Recipient{Channel: ChannelEmail, Address: "a@example.com"}, alert()))
	assert.Equal(t, 0, security.calls)
	assert.Equal(t, 1, email.calls)

	err := r.Notify(context.Background(), Recipient{Channel: "sms"}, alert())
	assert.ErrorContains(t, err, `no route for channel "sms"`)
}

func TestFailover(t *testing.T) {
	boom := errors.New("nats down")
	primary := &countingNotifier{err: boom}
	fallback := &countingNotifier{}
	breaker := circuit.New("security", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	f := NewFailover(primary, fallback, breaker, quietLogger())
	to := Recipient{Channel: ChannelSecurity, Address: "gatepass.security.x"}

	err := f.Notify(context.Background(), to, alert())
	assert.ErrorIs(t, err, boom, "closed circuit surfaces the primary failure")
	assert.Equal(t, 0, fallback.calls)

	require.NoError(t, f.Notify(context.Background(), to, alert()), "opening call uses the fallback")
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, 1, fallback.calls)

	primary.err = nil
	require.NoError(t, f.Notify(context.Background(), to, alert()))
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	t.Run("both failing joins errors", func(t *testing.T) {
		fbErr := errors.New("log full")
		b := circuit.New("x", circuit.WithFailureThreshold(1))
		err := NewFailover(&countingNotifier{err: boom}, &countingNotifier{err: fbErr}, b, quietLogger()).
			Notify(context.Background(), to, alert())
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, fbErr)
	})
}

func TestMailerSendDisabledWithoutKey(t *testing.T) {
	m := NewMailerSendNotifier("", "Gatepass", "alerts@example.com")
	assert.False(t, m.Enabled())
	err := m.Notify(context.Background(), Recipient{Channel: ChannelEmail, Address: "admin@example.com"}, alert())
	assert.ErrorIs(t, err, ErrMailerDisabled)
}

func TestEmailText(t *testing.T) {
	text := emailText(alert())
	assert.Contains(t, text, "Panic raised by Meera Iyer")
	assert.Contains(t, text, "Location: Block A lobby")
	assert.Contains(t, text, "Raised at: 2026-06-01 22:15:00 UTC")
}

func TestLogNotifierNeverFails(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, n.Notify(context.Background(), Recipient{Channel: ChannelEmail, Address: "a@example.com"}, alert()))
	assert.Contains(t, buf.String(), "Block A lobby")
}
