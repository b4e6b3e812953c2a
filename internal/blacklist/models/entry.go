package models

import (
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Entry is one flagged visitor identity on an estate's denylist.
type Entry struct {
	ID       id.BlacklistEntryID `json:"id"`
	EstateID id.EstateID         `json:"estate_id"`
	Name     string              `json:"name"`
	Phone    string              `json:"phone,omitempty"`
	Reason   string              `json:"reason,omitempty"`
	AddedBy  id.UserID           `json:"added_by"`
	AddedAt  time.Time           `json:"added_at"`
}

func NewEntry(entryID id.BlacklistEntryID, estateID id.EstateID, name, phone, reason string, addedBy id.UserID, now time.Time) (*Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.Validation("name", "name is required")
	}
	if len(name) > 128 {
		return nil, dErrors.Validation("name", "name must be 128 characters or less")
	}
	return &Entry{
		ID:       entryID,
		EstateID: estateID,
		Name:     name,
		Phone:    strings.TrimSpace(phone),
		Reason:   strings.TrimSpace(reason),
		AddedBy:  addedBy,
		AddedAt:  now,
	}, nil
}

// Matches reports whether a visitor with name and phone hits this entry.
// The entry name must contain the visitor name ignoring case, or the entry
// phone must contain the visitor phone. Empty inputs never match, and short
// inputs can flag unrelated entries.
func (e *Entry) Matches(name, phone string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	phone = strings.TrimSpace(phone)
	if name != "" && strings.Contains(strings.ToLower(e.Name), name) {
		return true
	}
	return phone != "" && e.Phone != "" && strings.Contains(e.Phone, phone)
}

// Match is the screening outcome for one pass creation attempt.
type Match struct {
	Entries []*Entry
}

func (m *Match) Found() bool {
	return m != nil && len(m.Entries) > 0
}

// Warning is the message shown to the resident on a non-blocking hit.
func (m *Match) Warning() string {
	if !m.Found() {
		return ""
	}
	reason := m.Entries[0].Reason
	if reason == "" {
		return "visitor matches a blacklist entry"
	}
	return "visitor matches a blacklist entry: " + reason
}

// Screen checks name and phone against a snapshot of entries.
func Screen(entries []*Entry, name, phone string) *Match {
	m := &Match{}
	for _, e := range entries {
		if e.Matches(name, phone) {
			m.Entries = append(m.Entries, e)
		}
	}
	return m
}
