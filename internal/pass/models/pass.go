package models

import (
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// VisitorPass is the aggregate root for one expected visit.
//
// Invariants:
//   - ExpectedArrival is strictly before ExpectedDeparture
//   - PassCode is unique among live passes of the estate
//   - PINHash never changes after creation; the plaintext PIN is not stored
//   - Status only moves along Status.CanTransitionTo; terminal passes are immutable
//   - SecurityVerified is true iff the pass was ever activated
type VisitorPass struct {
	ID                id.PassID   `json:"id"`
	EstateID          id.EstateID `json:"estate_id"`
	ResidentID        id.UserID   `json:"resident_id"`
	ResidentName      string      `json:"resident_name"`
	UnitNumber        string      `json:"unit_number"`
	VisitorName       string      `json:"visitor_name"`
	Phone             string      `json:"phone"`
	Purpose           string      `json:"purpose"`
	VehicleNumber     string      `json:"vehicle_number,omitempty"`
	ExpectedArrival   time.Time   `json:"expected_arrival"`
	ExpectedDeparture time.Time   `json:"expected_departure"`
	PassCode          string      `json:"pass_code"`
	PINHash           string      `json:"-"`
	Status            Status      `json:"status"`
	SecurityVerified  bool        `json:"security_verified"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	VerifiedAt        *time.Time  `json:"verified_at,omitempty"`
	ExitedAt          *time.Time  `json:"exited_at,omitempty"`
	ExpiredAt         *time.Time  `json:"expired_at,omitempty"`
	CancelledAt       *time.Time  `json:"cancelled_at,omitempty"`
}

// VisitorDetails is what a resident submits when inviting a visitor.
type VisitorDetails struct {
	VisitorName       string
	Phone             string
	Purpose           string
	VehicleNumber     string
	ExpectedArrival   time.Time
	ExpectedDeparture time.Time
}

// Normalize trims whitespace from free-text fields.
func (d *VisitorDetails) Normalize() {
	d.VisitorName = strings.TrimSpace(d.VisitorName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Purpose = strings.TrimSpace(d.Purpose)
	d.VehicleNumber = strings.ToUpper(strings.TrimSpace(d.VehicleNumber))
}

// Validate checks the submitted details against now. Errors name the field.
func (d *VisitorDetails) Validate(now time.Time) error {
	if d.VisitorName == "" {
		return dErrors.Validation("visitor_name", "visitor name is required")
	}
	if len(d.VisitorName) > 128 {
		return dErrors.Validation("visitor_name", "visitor name must be 128 characters or less")
	}
	if d.Phone == "" {
		return dErrors.Validation("phone", "phone is required")
	}
	if len(d.Phone) > 32 {
		return dErrors.Validation("phone", "phone must be 32 characters or less")
	}
	if d.ExpectedArrival.IsZero() {
		return dErrors.Validation("expected_arrival", "expected arrival is required")
	}
	if d.ExpectedDeparture.IsZero() {
		return dErrors.Validation("expected_departure", "expected departure is required")
	}
	if !d.ExpectedArrival.Before(d.ExpectedDeparture) {
		return dErrors.Validation("expected_departure", "expected departure must be after expected arrival")
	}
	if !d.ExpectedDeparture.After(now) {
		return dErrors.Validation("expected_departure", "expected departure must be in the future")
	}
	return nil
}

// Resident identifies the inviting resident for display on the pass.
type Resident struct {
	ID         id.UserID
	Name       string
	UnitNumber string
}

// NewVisitorPass builds a pending pass. Details must already be validated.
func NewVisitorPass(passID id.PassID, estateID id.EstateID, resident Resident, details VisitorDetails, passCode, pinHash string, now time.Time) (*VisitorPass, error) {
	if passCode == "" || pinHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pass code and pin are required")
	}
	if !details.ExpectedArrival.Before(details.ExpectedDeparture) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expected arrival must precede expected departure")
	}
	return &VisitorPass{
		ID:                passID,
		EstateID:          estateID,
		ResidentID:        resident.ID,
		ResidentName:      resident.Name,
		UnitNumber:        resident.UnitNumber,
		VisitorName:       details.VisitorName,
		Phone:             details.Phone,
		Purpose:           details.Purpose,
		VehicleNumber:     details.VehicleNumber,
		ExpectedArrival:   details.ExpectedArrival,
		ExpectedDeparture: details.ExpectedDeparture,
		PassCode:          passCode,
		PINHash:           pinHash,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsPastDeadline reports whether the departure deadline has been reached.
func (p *VisitorPass) IsPastDeadline(now time.Time) bool {
	return !now.Before(p.ExpectedDeparture)
}

func (p *VisitorPass) staleErr(action string) error {
	return dErrors.New(dErrors.CodeStaleState, "cannot "+action+": pass is "+string(p.Status))
}

// CanVerify checks that the pass can be activated at the gate at now.
// The PIN is checked separately by the service so a wrong PIN never mutates.
func (p *VisitorPass) CanVerify(now time.Time) error {
	if p.Status != StatusPending {
		return p.staleErr("verify")
	}
	if p.IsPastDeadline(now) {
		return dErrors.New(dErrors.CodeStaleState, "cannot verify: pass has expired")
	}
	return nil
}

// ApplyVerification moves the pass to active. Call CanVerify first.
func (p *VisitorPass) ApplyVerification(now time.Time) {
	p.Status = StatusActive
	p.SecurityVerified = true
	p.VerifiedAt = &now
	p.UpdatedAt = now
}

// CanExit checks that the visitor is on site.
func (p *VisitorPass) CanExit() error {
	if p.Status != StatusActive {
		return p.staleErr("mark exit")
	}
	return nil
}

func (p *VisitorPass) ApplyExit(now time.Time) {
	p.Status = StatusCompleted
	p.ExitedAt = &now
	p.UpdatedAt = now
}

// CanCancel checks that the resident can still withdraw the invitation.
func (p *VisitorPass) CanCancel() error {
	if p.Status != StatusPending {
		return p.staleErr("cancel")
	}
	return nil
}

func (p *VisitorPass) ApplyCancellation(now time.Time) {
	p.Status = StatusCancelled
	p.CancelledAt = &now
	p.UpdatedAt = now
}

// CanExpire checks that the pass is live.
func (p *VisitorPass) CanExpire() error {
	if !p.Status.CanTransitionTo(StatusExpired) {
		return p.staleErr("expire")
	}
	return nil
}

func (p *VisitorPass) ApplyExpiry(now time.Time) {
	p.Status = StatusExpired
	p.ExpiredAt = &now
	p.UpdatedAt = now
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (p *VisitorPass) Clone() *VisitorPass {
	c := *p
	c.VerifiedAt = cloneTime(p.VerifiedAt)
	c.ExitedAt = cloneTime(p.ExitedAt)
	c.ExpiredAt = cloneTime(p.ExpiredAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
