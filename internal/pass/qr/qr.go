// Package qr builds the public payload printed on a visitor's QR code and
// renders it to an image.
package qr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
)

// Payload is what a scanner reads off the code. It has no PIN field: the PIN
// is spoken or typed at the gate and never printed.
type Payload struct {
	ID           id.PassID `json:"id"`
	PassCode     string    `json:"passCode"`
	ResidentName string    `json:"residentName"`
	UnitNumber   string    `json:"unitNumber"`
	Purpose      string    `json:"purpose"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

func Encode(p *models.VisitorPass, generatedAt time.Time) Payload {
	return Payload{
		ID:           p.ID,
		PassCode:     p.PassCode,
		ResidentName: p.ResidentName,
		UnitNumber:   p.UnitNumber,
		Purpose:      p.Purpose,
		GeneratedAt:  generatedAt.UTC(),
	}
}

// Bytes is the JSON blob embedded in the QR image.
func (p Payload) Bytes() []byte {
	b, err := json.Marshal(p)
	if err != nil {
		// every field is a plain string, uuid or time
		panic(fmt.Sprintf("qr: marshal payload: %v", err))
	}
	return b
}

// Decode parses a scanned blob.
func Decode(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode qr payload: %w", err)
	}
	return p, nil
}

// Renderer turns a payload into an image.
type Renderer interface {
	Render(ctx context.Context, payload Payload) ([]byte, error)
}

// PNGRenderer renders square PNG codes at medium error correction.
type PNGRenderer struct {
	size int
}

// NewPNGRenderer returns a renderer producing size×size images; 0 means 256.
func NewPNGRenderer(size int) *PNGRenderer {
	if size <= 0 {
		size = 256
	}
	return &PNGRenderer{size: size}
}

func (r *PNGRenderer) Render(ctx context.Context, payload Payload) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(payload.Bytes()), qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
