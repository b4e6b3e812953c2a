package testutil

import (
	"net/http"

	id "gatepass/pkg/domain"
	"gatepass/pkg/requestcontext"
)

// WithActor sets the authenticated member on the request context, as the
// auth middleware would.
func WithActor(req *http.Request, userID id.UserID, estateID id.EstateID, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), userID, estateID, role)
	return req.WithContext(ctx)
}
