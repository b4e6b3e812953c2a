package handler

import (
	"time"

	"gatepass/internal/estate/models"
	"gatepass/internal/estate/service"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

type RegisterEstateRequest struct {
	Name    string           `json:"name"`
	Address string           `json:"address"`
	Policy  *models.Policy   `json:"policy,omitempty"`
	Admin   AddMemberRequest `json:"admin"`
}

// Validate checks the initial admin up front so a bad admin never leaves an
// estate behind without one.
func (r *RegisterEstateRequest) Validate() error {
	_, err := models.NewMember(id.EstateID{}, id.UserID{}, r.Admin.Name, r.Admin.Email, r.Admin.Phone, models.RoleAdmin, "", time.Time{})
	if err != nil {
		return dErrors.Validation("admin."+dErrors.FieldOf(err), "initial admin: "+err.Error())
	}
	return nil
}

type AddMemberRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Role       string `json:"role,omitempty"`
	UnitNumber string `json:"unit_number,omitempty"`
}

func (r *AddMemberRequest) toInput(role models.Role) service.NewMemberInput {
	return service.NewMemberInput{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		Role:       role,
		UnitNumber: r.UnitNumber,
	}
}

type IssueTokenRequest struct {
	EstateID id.EstateID `json:"estate_id"`
	UserID   id.UserID   `json:"user_id"`
}

type RegisterEstateResponse struct {
	Estate *models.Estate `json:"estate"`
	Admin  *models.Member `json:"admin"`
}

type MemberListResponse struct {
	Members []*models.Member `json:"members"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
