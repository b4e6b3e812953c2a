package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatepass/pkg/domain"
	audit "gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/audit/store/memory"
	"gatepass/pkg/requestcontext"
)

func TestPublisher_StampsRequestMetadata(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)

	estateID := id.EstateID(uuid.New())
	actor := id.UserID(uuid.New())
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithUserID(ctx, actor)

	err := pub.Emit(ctx, audit.Event{
		EstateID: estateID,
		Subject:  "pass-1",
		Action:   string(audit.EventPassVerified),
	})
	require.NoError(t, err)

	events, err := store.ListByEstate(ctx, estateID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, actor, events[0].ActorID)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_RequiresAction(t *testing.T) {
	pub := audit.NewPublisher(memory.NewInMemoryStore())
	err := pub.Emit(context.Background(), audit.Event{Subject: "x"})
	require.Error(t, err)
}

func TestCategoryDefaultsToOperations(t *testing.T) {
	assert.Equal(t, audit.CategoryOperations, audit.EventEstateRegistered.Category())
	assert.Equal(t, audit.CategorySecurity, audit.EventPanicTriggered.Category())
}
