// Package domain holds the typed identifiers shared across gatepass domains.
//
// Each ID is a distinct named uuid.UUID type so the compiler rejects passing
// a PassID where an EstateID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "gatepass/pkg/domain-errors"
)

type (
	EstateID         uuid.UUID
	UserID           uuid.UUID
	PassID           uuid.UUID
	BlacklistEntryID uuid.UUID
	LogEntryID       uuid.UUID
	PanicEventID     uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) != 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseEstateID(s string) (EstateID, error) {
	u, err := parseUUID("estate id", s)
	return EstateID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParsePassID(s string) (PassID, error) {
	u, err := parseUUID("pass id", s)
	return PassID(u), err
}

func ParseBlacklistEntryID(s string) (BlacklistEntryID, error) {
	u, err := parseUUID("blacklist entry id", s)
	return BlacklistEntryID(u), err
}

func ParseLogEntryID(s string) (LogEntryID, error) {
	u, err := parseUUID("log entry id", s)
	return LogEntryID(u), err
}

func ParsePanicEventID(s string) (PanicEventID, error) {
	u, err := parseUUID("panic event id", s)
	return PanicEventID(u), err
}

func (id EstateID) String() string         { return uuid.UUID(id).String() }
func (id UserID) String() string           { return uuid.UUID(id).String() }
func (id PassID) String() string           { return uuid.UUID(id).String() }
func (id BlacklistEntryID) String() string { return uuid.UUID(id).String() }
func (id LogEntryID) String() string       { return uuid.UUID(id).String() }
func (id PanicEventID) String() string     { return uuid.UUID(id).String() }

func (id EstateID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id PassID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id BlacklistEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id LogEntryID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PanicEventID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs render as plain UUID strings in JSON.
func (id EstateID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)           { return uuid.UUID(id).MarshalText() }
func (id PassID) MarshalText() ([]byte, error)           { return uuid.UUID(id).MarshalText() }
func (id BlacklistEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id LogEntryID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id PanicEventID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *EstateID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error           { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PassID) UnmarshalText(b []byte) error           { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BlacklistEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *LogEntryID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PanicEventID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
