package models

import (
	"time"

	id "gatepass/pkg/domain"
)

// Type distinguishes gate entries from exits.
type Type string

const (
	TypeEntry Type = "entry"
	TypeExit  Type = "exit"
)

func (t Type) IsValid() bool {
	return t == TypeEntry || t == TypeExit
}

// LogEntry records one verified crossing of the estate gate. Entries are
// append-only.
type LogEntry struct {
	ID          id.LogEntryID `json:"id"`
	EstateID    id.EstateID   `json:"estate_id"`
	PassID      id.PassID     `json:"pass_id"`
	VisitorName string        `json:"visitor_name"`
	PassCode    string        `json:"pass_code"`
	Type        Type          `json:"type"`
	Timestamp   time.Time     `json:"timestamp"`
	VerifiedBy  id.UserID     `json:"verified_by"`
}
