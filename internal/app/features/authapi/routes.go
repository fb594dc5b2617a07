// internal/app/features/authapi/routes.go
package authapi

import (
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the router for the auth API.
//
// When mounted at /auth:
//   - POST   /auth/telegram      - log in with a login widget assertion
//   - POST   /auth/refresh       - mint a new access token
//   - GET    /auth/me            - current principal (Bearer)
//   - POST   /auth/logout        - end this session (Bearer)
//   - POST   /auth/logout-all    - end every session (Bearer)
//   - GET    /auth/sessions      - list live sessions (Bearer)
//   - DELETE /auth/sessions/{id} - end one session (Bearer)
func Routes(h *Handler, authn auth.Authenticator, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Post("/telegram", h.Login)
	r.Post("/refresh", h.Refresh)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireBearer(authn, logger))
		pr.Get("/me", h.Me)
		pr.Post("/logout", h.Logout)
		pr.Post("/logout-all", h.LogoutAll)
		pr.Get("/sessions", h.ListSessions)
		pr.Delete("/sessions/{id}", h.RevokeSession)
	})

	return r
}
