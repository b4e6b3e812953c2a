package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "gatepass/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can route and retain them differently.
type EventCategory string

const (
	// CategorySecurity covers gate and emergency events reviewed after incidents.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine administration.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain services to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	EstateID  id.EstateID
	ActorID   id.UserID
	// Subject is the aggregate the action touched (pass, entry or event ID).
	Subject   string
	Action    string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventPassCreated            AuditEvent = "pass_created"
	EventPassBlacklistWarning   AuditEvent = "pass_blacklist_warning"
	EventPassVerified           AuditEvent = "pass_verified"
	EventPassVerificationFailed AuditEvent = "pass_verification_failed"
	EventPassExited             AuditEvent = "pass_exited"
	EventPassExpired            AuditEvent = "pass_expired"
	EventPassCancelled          AuditEvent = "pass_cancelled"

	EventBlacklistEntryAdded   AuditEvent = "blacklist_entry_added"
	EventBlacklistEntryRemoved AuditEvent = "blacklist_entry_removed"

	EventPanicTriggered AuditEvent = "panic_triggered"
	EventPanicResolved  AuditEvent = "panic_resolved"

	EventEstateRegistered    AuditEvent = "estate_registered"
	EventEstatePolicyUpdated AuditEvent = "estate_policy_updated"
	EventMemberAdded         AuditEvent = "member_added"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPassBlacklistWarning:   CategorySecurity,
	EventPassVerified:           CategorySecurity,
	EventPassVerificationFailed: CategorySecurity,
	EventPassExited:             CategorySecurity,
	EventBlacklistEntryAdded:    CategorySecurity,
	EventBlacklistEntryRemoved:  CategorySecurity,
	EventPanicTriggered:         CategorySecurity,
	EventPanicResolved:          CategorySecurity,
}

// Category derives the category from the action; unknown actions are operational.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a persisted event awaiting relay.
type OutboxEntry struct {
	ID        uuid.UUID
	Key       string
	EventType string
	Payload   []byte
}
