package handler

import (
	"time"

	"gatepass/internal/pass/models"
	"gatepass/internal/pass/qr"
	"gatepass/internal/pass/service"
)

type PassResponse struct {
	*models.VisitorPass
	TimeRemainingSeconds int64 `json:"time_remaining_seconds"`
}

func toPassResponse(p *models.VisitorPass, now time.Time) PassResponse {
	return PassResponse{
		VisitorPass:          p,
		TimeRemainingSeconds: int64(models.TimeRemaining(p, now) / time.Second),
	}
}

func toPassResponses(passes []*models.VisitorPass, now time.Time) []PassResponse {
	out := make([]PassResponse, 0, len(passes))
	for _, p := range passes {
		out = append(out, toPassResponse(p, now))
	}
	return out
}

// IssuedResponse is returned once, on creation. It is the only response that
// carries the PIN.
type IssuedResponse struct {
	Pass             PassResponse `json:"pass"`
	PIN              string       `json:"pin"`
	QR               qr.Payload   `json:"qr"`
	BlacklistWarning string       `json:"blacklist_warning,omitempty"`
}

func toIssuedResponse(issued *service.Issued, now time.Time) IssuedResponse {
	return IssuedResponse{
		Pass:             toPassResponse(issued.Pass, now),
		PIN:              issued.PIN,
		QR:               issued.QR,
		BlacklistWarning: issued.BlacklistWarning,
	}
}

type PassListResponse struct {
	Passes []PassResponse `json:"passes"`
}
