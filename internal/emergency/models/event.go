package models

import (
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

const maxLocationLength = 256

// PanicEvent is one press of a member's panic button. It is stored before
// anyone is notified.
type PanicEvent struct {
	ID            id.PanicEventID `json:"id"`
	EstateID      id.EstateID     `json:"estate_id"`
	UserID        id.UserID       `json:"user_id"`
	Location      string          `json:"location"`
	VerifiedByPIN bool            `json:"verified_by_pin"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy    *id.UserID      `json:"resolved_by,omitempty"`
}

func NewPanicEvent(eventID id.PanicEventID, estateID id.EstateID, userID id.UserID, location string, verifiedByPIN bool, now time.Time) (*PanicEvent, error) {
	if userID.IsNil() {
		return nil, dErrors.Validation("user_id", "user is required")
	}
	location = strings.TrimSpace(location)
	if len(location) > maxLocationLength {
		return nil, dErrors.Validation("location", "location must be 256 characters or less")
	}
	return &PanicEvent{
		ID:            eventID,
		EstateID:      estateID,
		UserID:        userID,
		Location:      location,
		VerifiedByPIN: verifiedByPIN,
		Status:        StatusActive,
		CreatedAt:     now,
	}, nil
}

func (e *PanicEvent) CanResolve() error {
	if e.Status != StatusActive {
		return dErrors.New(dErrors.CodeStaleState, "panic event is already "+string(e.Status))
	}
	return nil
}

func (e *PanicEvent) ApplyResolution(by id.UserID, now time.Time) {
	e.Status = StatusResolved
	e.ResolvedAt = &now
	e.ResolvedBy = &by
}

func (e *PanicEvent) Clone() *PanicEvent {
	c := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	if e.ResolvedBy != nil {
		u := *e.ResolvedBy
		c.ResolvedBy = &u
	}
	return &c
}
