package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// Authenticator resolves an access token to a Principal. *Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*Principal, error)
}

type ctxKey string

const principalKey ctxKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// CurrentPrincipal returns the authenticated caller and a "found?" flag.
func CurrentPrincipal(r *http.Request) (*Principal, bool) {
	p, ok := r.Context().Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireBearer returns middleware that admits only requests carrying an
// access token whose session is still live. The Principal is placed in the
// request context.
//
// Missing, malformed, forged, expired and revoked tokens all get the same 401.
func RequireBearer(authn Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				logger.Debug("bearer auth rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path),
				)
				jsonutil.Unauthorized(w, MsgInvalidToken)
				return
			}

			p, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				var ae *Error
				if errors.As(err, &ae) && ae.Kind == KindInternal {
					jsonutil.InternalError(w)
					return
				}
				logger.Debug("bearer auth rejected: invalid token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				jsonutil.Unauthorized(w, MsgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
