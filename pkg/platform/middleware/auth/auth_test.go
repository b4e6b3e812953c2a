package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatepass/pkg/domain"
	"gatepass/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	userID := id.UserID(uuid.New())
	estateID := id.EstateID(uuid.New())
	valid := stubValidator{claims: &JWTClaims{UserID: userID.String(), EstateID: estateID.String(), Role: "security"}}

	t.Run("injects actor from a valid token", func(t *testing.T) {
		var seenUser id.UserID
		var seenEstate id.EstateID
		var seenRole string
		h := RequireAuth(valid, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenUser = requestcontext.UserID(r.Context())
			seenEstate = requestcontext.EstateID(r.Context())
			seenRole = requestcontext.Role(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, userID, seenUser)
		assert.Equal(t, estateID, seenEstate)
		assert.Equal(t, "security", seenRole)
	})

	cases := []struct {
		name      string
		header    string
		validator stubValidator
	}{
		{"missing header", "", valid},
		{"wrong scheme", "Basic abc", valid},
		{"empty bearer", "Bearer ", valid},
		{"rejected token", "Bearer token", stubValidator{err: errors.New("expired")}},
		{"bad subject", "Bearer token", stubValidator{claims: &JWTClaims{UserID: "nope", EstateID: estateID.String()}}},
		{"bad estate", "Bearer token", stubValidator{claims: &JWTClaims{UserID: userID.String(), EstateID: ""}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := RequireAuth(tc.validator, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"unauthorized"`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(discardLogger(), "security", "admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		"security": http.StatusNoContent,
		"admin":    http.StatusNoContent,
		"resident": http.StatusForbidden,
		"":         http.StatusForbidden,
	} {
		t.Run("role "+role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(requestcontext.WithRole(req.Context(), role))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, want, rec.Code)
		})
	}
}

func TestRequireEstate(t *testing.T) {
	own := id.EstateID(uuid.New())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithEstateID(req.Context(), own)))
		})
	})
	r.With(RequireEstate(discardLogger(), "estateID")).Get("/estates/{estateID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve("/estates/"+own.String()).Code)
	assert.Equal(t, http.StatusForbidden, serve("/estates/"+uuid.NewString()).Code)

	rec := serve("/estates/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalid_input"`)
}
