package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/blacklist/service"
	"gatepass/internal/blacklist/store"
	id "gatepass/pkg/domain"
	"gatepass/pkg/testutil"
)

type createdEntry struct {
	ID      string `json:"id"`
	AddedBy string `json:"added_by"`
}

func newBlacklistRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	r.Route("/v1/estates/{estateID}", New(service.New(store.NewInMemoryStore()), logger).Register)
	return r
}

func TestBlacklistRoutes(t *testing.T) {
	router := newBlacklistRouter(t)
	estateID := id.EstateID(uuid.New())
	guard := id.UserID(uuid.New())
	base := "/v1/estates/" + estateID.String() + "/blacklist"
	as := func(req *http.Request, role string) *http.Request {
		return testutil.WithActor(req, guard, estateID, role)
	}

	rr := testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodPost, base, AddEntryRequest{Name: "Vikram Shah", Reason: "theft"}), "security"))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[createdEntry](t, rr)
	assert.Equal(t, guard.String(), created.AddedBy)

	rr = testutil.DoRequest(router, as(testutil.NewRequest(t, http.MethodGet, base), "resident"))
	testutil.AssertStatusOK(t, rr)
	list := testutil.UnmarshalResponse[EntryListResponse](t, rr)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "Vikram Shah", list.Entries[0].Name)

	rr = testutil.DoRequest(router, as(testutil.NewRequest(t, http.MethodDelete, base+"/"+created.ID), "admin"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	rr = testutil.DoRequest(router, as(testutil.NewRequest(t, http.MethodDelete, base+"/"+created.ID), "admin"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestBlacklistAddRequiresName(t *testing.T) {
	router := newBlacklistRouter(t)
	estateID := id.EstateID(uuid.New())
	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/estates/"+estateID.String()+"/blacklist", AddEntryRequest{Phone: "555"})
	rr := testutil.DoRequest(router, testutil.WithActor(req, id.UserID(uuid.New()), estateID, "security"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestBlacklistRejectsUnknownRole(t *testing.T) {
	router := newBlacklistRouter(t)
	estateID := id.EstateID(uuid.New())
	req := testutil.NewRequest(t, http.MethodGet, "/v1/estates/"+estateID.String()+"/blacklist")
	rr := testutil.DoRequest(router, testutil.WithActor(req, id.UserID(uuid.New()), estateID, "visitor"))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}
