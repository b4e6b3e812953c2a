package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	blacklistservice "gatepass/internal/blacklist/service"
	blackliststore "gatepass/internal/blacklist/store"
	estatemodels "gatepass/internal/estate/models"
	estateservice "gatepass/internal/estate/service"
	estatestore "gatepass/internal/estate/store"
	movementservice "gatepass/internal/movement/service"
	movementstore "gatepass/internal/movement/store"
	"gatepass/internal/pass/codegen"
	"gatepass/internal/pass/models"
	"gatepass/internal/pass/service"
	"gatepass/internal/pass/store"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/clock"
	"gatepass/pkg/platform/middleware/requesttime"
	"gatepass/pkg/testutil"
)

var start = time.Date(2026, 5, 10, 16, 0, 0, 0, time.UTC)

type PassHandlerSuite struct {
	suite.Suite
	clock    *clock.Fake
	router   http.Handler
	estateID id.EstateID
	resident id.UserID
	guard    id.UserID
}

func TestPassHandlerSuite(t *testing.T) {
	suite.Run(t, new(PassHandlerSuite))
}

func (s *PassHandlerSuite) SetupTest() {
	s.clock = clock.NewFake(start)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	estates := estateservice.New(estatestore.NewInMemoryEstateStore(), estatestore.NewInMemoryMemberStore())
	ctx := context.Background()
	estate, err := estates.Register(ctx, "Lakeside", "", nil)
	s.Require().NoError(err)
	s.estateID = estate.ID
	resident, err := estates.AddMember(ctx, s.estateID, estateservice.NewMemberInput{
		Name: "Meera Iyer", Role: estatemodels.RoleResident, UnitNumber: "A-4",
	})
	s.Require().NoError(err)
	s.resident = resident.UserID
	guard, err := estates.AddMember(ctx, s.estateID, estateservice.NewMemberInput{
		Name: "North Gate", Role: estatemodels.RoleSecurity,
	})
	s.Require().NoError(err)
	s.guard = guard.UserID

	svc := service.New(store.NewInMemoryStore(),
		blacklistservice.New(blackliststore.NewInMemoryStore()),
		estates,
		movementservice.New(movementstore.NewInMemoryStore()),
		service.WithClock(s.clock),
		service.WithPINHasher(codegen.NewPINHasher(bcrypt.MinCost)),
		service.WithLogger(logger),
	)

	r := chi.NewRouter()
	r.Use(requesttime.WithClock(s.clock))
	r.Route("/v1/estates/{estateID}", New(svc, logger).Register)
	s.router = r
}

func (s *PassHandlerSuite) path(suffix string) string {
	return "/v1/estates/" + s.estateID.String() + suffix
}

func (s *PassHandlerSuite) createPass() IssuedResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/passes"), map[string]any{
		"visitor_name":       "Asha Rao",
		"phone":              "9812345678",
		"purpose":            "Dinner",
		"expected_arrival":   start,
		"expected_departure": start.Add(2 * time.Hour),
	})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.resident, s.estateID, "resident"))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[IssuedResponse](s.T(), rr)
}

func (s *PassHandlerSuite) asGuard(req *http.Request) *http.Request {
	return testutil.WithActor(req, s.guard, s.estateID, "security")
}

func (s *PassHandlerSuite) TestCreateReturnsPINOnce() {
	issued := s.createPass()
	s.Len(issued.PIN, 4)
	s.Equal(models.StatusPending, issued.Pass.Status)
	s.Equal(int64(7200), issued.Pass.TimeRemainingSeconds)
	s.Equal(issued.Pass.PassCode, issued.QR.PassCode)

	req := testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes/"+issued.Pass.ID.String()))
	rr := testutil.DoRequest(s.router, s.asGuard(req))
	testutil.AssertStatusOK(s.T(), rr)
	s.NotContains(rr.Body.String(), issued.PIN)
	s.NotContains(rr.Body.String(), "pin_hash")
}

func (s *PassHandlerSuite) TestCreateValidationError() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/passes"), map[string]any{
		"visitor_name":       "Asha Rao",
		"expected_arrival":   start,
		"expected_departure": start.Add(time.Hour),
	})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.resident, s.estateID, "resident"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *PassHandlerSuite) TestCreateRequiresResidentRole() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/passes"), map[string]any{})
	rr := testutil.DoRequest(s.router, s.asGuard(req))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *PassHandlerSuite) TestGateFlow() {
	issued := s.createPass()
	passPath := s.path("/passes/" + issued.Pass.ID.String())

	s.Run("wrong pin", func() {
		wrong := "0000"
		if issued.PIN == wrong {
			wrong = "1111"
		}
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, passPath+"/verify", VerifyRequest{PIN: wrong})
		rr := testutil.DoRequest(s.router, s.asGuard(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "verification_failed")
	})

	s.Run("malformed pin", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, passPath+"/verify", VerifyRequest{PIN: "12"})
		rr := testutil.DoRequest(s.router, s.asGuard(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("residents cannot verify", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, passPath+"/verify", VerifyRequest{PIN: issued.PIN})
		rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.resident, s.estateID, "resident"))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, passPath+"/verify", VerifyRequest{PIN: issued.PIN})
	rr := testutil.DoRequest(s.router, s.asGuard(req))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(models.StatusActive, testutil.UnmarshalResponse[PassResponse](s.T(), rr).Status)

	rr = testutil.DoRequest(s.router, s.asGuard(testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes/active"))))
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(testutil.UnmarshalResponse[PassListResponse](s.T(), rr).Passes, 1)

	rr = testutil.DoRequest(s.router, s.asGuard(testutil.NewRequest(s.T(), http.MethodPost, passPath+"/exit")))
	testutil.AssertStatusOK(s.T(), rr)
	exited := testutil.UnmarshalResponse[PassResponse](s.T(), rr)
	s.Equal(models.StatusCompleted, exited.Status)
	s.Zero(exited.TimeRemainingSeconds)

	rr = testutil.DoRequest(s.router, s.asGuard(testutil.NewRequest(s.T(), http.MethodPost, passPath+"/exit")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "stale_state")
}

func (s *PassHandlerSuite) TestResidentSeesOnlyOwnPasses() {
	issued := s.createPass()
	passPath := s.path("/passes/" + issued.Pass.ID.String())

	rr := testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, passPath), s.resident, s.estateID, "resident"))
	testutil.AssertStatusOK(s.T(), rr)

	neighbour := id.UserID(uuid.New())
	rr = testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, passPath), neighbour, s.estateID, "resident"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes")), s.resident, s.estateID, "resident"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(testutil.UnmarshalResponse[PassListResponse](s.T(), rr).Passes, 1)
}

func (s *PassHandlerSuite) TestQRCodeIsPNG() {
	issued := s.createPass()
	req := testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes/"+issued.Pass.ID.String()+"/qr"))
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.resident, s.estateID, "resident"))

	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("image/png", rr.Header().Get("Content-Type"))
	s.True(bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))
}

func (s *PassHandlerSuite) TestCancel() {
	issued := s.createPass()
	req := testutil.NewRequest(s.T(), http.MethodPost, s.path("/passes/"+issued.Pass.ID.String()+"/cancel"))
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.resident, s.estateID, "resident"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(models.StatusCancelled, testutil.UnmarshalResponse[PassResponse](s.T(), rr).Status)
}

func (s *PassHandlerSuite) TestAdminCanCancelAnyPass() {
	issued := s.createPass()
	cancel := s.path("/passes/" + issued.Pass.ID.String() + "/cancel")

	rr := testutil.DoRequest(s.router, s.asGuard(testutil.NewRequest(s.T(), http.MethodPost, cancel)))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	req := testutil.NewRequest(s.T(), http.MethodPost, cancel)
	rr = testutil.DoRequest(s.router, testutil.WithActor(req, id.UserID(uuid.New()), s.estateID, "admin"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(models.StatusCancelled, testutil.UnmarshalResponse[PassResponse](s.T(), rr).Status)
}

func (s *PassHandlerSuite) TestExpiredPassReadsExpired() {
	issued := s.createPass()
	s.clock.Set(start.Add(3 * time.Hour))

	req := testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes/"+issued.Pass.ID.String()))
	rr := testutil.DoRequest(s.router, s.asGuard(req))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(models.StatusExpired, testutil.UnmarshalResponse[PassResponse](s.T(), rr).Status)
}

func (s *PassHandlerSuite) TestInvalidPassID() {
	req := testutil.NewRequest(s.T(), http.MethodGet, s.path("/passes/not-a-uuid"))
	rr := testutil.DoRequest(s.router, s.asGuard(req))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}
