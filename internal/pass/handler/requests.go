package handler

import (
	"strings"
	"time"

	"gatepass/internal/pass/codegen"
	"gatepass/internal/pass/models"
	dErrors "gatepass/pkg/domain-errors"
)

type CreatePassRequest struct {
	VisitorName       string    `json:"visitor_name"`
	Phone             string    `json:"phone"`
	Purpose           string    `json:"purpose"`
	VehicleNumber     string    `json:"vehicle_number,omitempty"`
	ExpectedArrival   time.Time `json:"expected_arrival"`
	ExpectedDeparture time.Time `json:"expected_departure"`
}

// Details converts the request into service input. Field validation happens
// in the service, against the request time.
func (r *CreatePassRequest) Details() models.VisitorDetails {
	return models.VisitorDetails{
		VisitorName:       r.VisitorName,
		Phone:             r.Phone,
		Purpose:           r.Purpose,
		VehicleNumber:     r.VehicleNumber,
		ExpectedArrival:   r.ExpectedArrival,
		ExpectedDeparture: r.ExpectedDeparture,
	}
}

type VerifyRequest struct {
	PIN string `json:"pin"`
}

func (r *VerifyRequest) Normalize() {
	r.PIN = strings.TrimSpace(r.PIN)
}

func (r *VerifyRequest) Validate() error {
	if r.PIN == "" {
		return dErrors.Validation("pin", "pin is required")
	}
	if len(r.PIN) != codegen.PINLength {
		return dErrors.Validation("pin", "pin must be 4 digits")
	}
	return nil
}
