package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "gatepass/pkg/platform/audit"
)

type fakeOutbox struct {
	entries   []audit.OutboxEntry
	published map[uuid.UUID]bool
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	var out []audit.OutboxEntry
	for _, e := range f.entries {
		if !f.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, entryID uuid.UUID, _ time.Time) error {
	f.published[entryID] = true
	return nil
}

type fakeProducer struct {
	sent   []string
	failOn string
}

func (p *fakeProducer) Produce(_ context.Context, topic string, key, value []byte) error {
	if string(value) == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic+"/"+string(key)+"/"+string(value))
	return nil
}

func newOutbox(payloads ...string) *fakeOutbox {
	o := &fakeOutbox{published: map[uuid.UUID]bool{}}
	for _, p := range payloads {
		o.entries = append(o.entries, audit.OutboxEntry{ID: uuid.New(), Key: "estate-1", Payload: []byte(p)})
	}
	return o
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDrainPublishesInOrder(t *testing.T) {
	outbox := newOutbox("a", "b", "c")
	producer := &fakeProducer{}
	r := New(outbox, producer, "gatepass.audit", quietLogger(), WithBatchSize(2))

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{
		"gatepass.audit/estate-1/a",
		"gatepass.audit/estate-1/b",
		"gatepass.audit/estate-1/c",
	}, producer.sent)
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	outbox := newOutbox("a", "b", "c")
	producer := &fakeProducer{failOn: "b"}
	r := New(outbox, producer, "gatepass.audit", quietLogger())

	n, err := r.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, outbox.published[outbox.entries[1].ID])
	assert.False(t, outbox.published[outbox.entries[2].ID])
}
