package models

import (
	"net/mail"
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Policy holds per-estate operator choices.
type Policy struct {
	// BlockOnBlacklist rejects pass creation on a blacklist match instead of warning.
	BlockOnBlacklist bool `json:"block_on_blacklist"`
	// PassHistoryLimit caps how many recent passes a resident sees.
	PassHistoryLimit int `json:"pass_history_limit"`
}

func (p Policy) Validate() error {
	if p.PassHistoryLimit < 1 || p.PassHistoryLimit > 100 {
		return dErrors.Validation("pass_history_limit", "pass history limit must be between 1 and 100")
	}
	return nil
}

// Estate is a registered residential estate.
type Estate struct {
	ID        id.EstateID `json:"id"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	Policy    Policy      `json:"policy"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func NewEstate(estateID id.EstateID, name, address string, policy Policy, now time.Time) (*Estate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.Validation("name", "estate name is required")
	}
	if len(name) > 128 {
		return nil, dErrors.Validation("name", "estate name must be 128 characters or less")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Estate{
		ID:        estateID,
		Name:      name,
		Address:   strings.TrimSpace(address),
		Policy:    policy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (e *Estate) ApplyPolicy(policy Policy, now time.Time) {
	e.Policy = policy
	e.UpdatedAt = now
}

// Role is a member's capability within an estate.
type Role string

const (
	RoleResident Role = "resident"
	RoleSecurity Role = "security"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleResident || r == RoleSecurity || r == RoleAdmin
}

// Member is a user's membership in an estate.
type Member struct {
	EstateID   id.EstateID `json:"estate_id"`
	UserID     id.UserID   `json:"user_id"`
	Name       string      `json:"name"`
	Email      string      `json:"email,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Role       Role        `json:"role"`
	UnitNumber string      `json:"unit_number,omitempty"`
	JoinedAt   time.Time   `json:"joined_at"`
}

func NewMember(estateID id.EstateID, userID id.UserID, name, email, phone string, role Role, unit string, now time.Time) (*Member, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, dErrors.Validation("name", "member name is required")
	}
	if !role.IsValid() {
		return nil, dErrors.Validation("role", "role must be resident, security or admin")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, dErrors.Validation("email", "email is invalid")
		}
	}
	if role == RoleResident && strings.TrimSpace(unit) == "" {
		return nil, dErrors.Validation("unit_number", "residents need a unit number")
	}
	return &Member{
		EstateID:   estateID,
		UserID:     userID,
		Name:       name,
		Email:      email,
		Phone:      strings.TrimSpace(phone),
		Role:       role,
		UnitNumber: strings.TrimSpace(unit),
		JoinedAt:   now,
	}, nil
}
