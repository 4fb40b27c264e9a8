package http

import (
	"net/http"
	"strings"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
)

var errUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "authentication required")

// withAuth resolves the bearer token into a caller identity and stores it
// in the request context. Every API route sits behind it.
func withAuth(verifier authctx.Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, r, errUnauthenticated)
			return
		}
		identity, err := verifier.Verify(r.Context(), token)
		if err != nil {
			respondError(w, r, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithIdentity(r.Context(), identity)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// callerIdentity pulls the authenticated identity stored by withAuth.
func callerIdentity(r *http.Request) (requestctx.Identity, bool) {
	return requestctx.IdentityFromContext(r.Context())
}
