// internal/app/features/authapi/handler.go

// Package authapi serves the dashboard's authentication endpoints.
//
// Every failure body is {"success": false, "message": "..."}. Lockouts,
// rejected assertions and unknown accounts answer 400; bearer failures 401.
package authapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/network"
	"github.com/dalemusser/stratagate/internal/app/system/telegram"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Response messages.
const (
	MsgRefreshRequired = "Refresh token is required"
	MsgLoggedOut       = "Logged out successfully"
	MsgLoggedOutAll    = "Logged out from all devices"
	MsgSessionRevoked  = "Session revoked"
)

// Service is the part of *auth.Service the handlers call.
type Service interface {
	Login(ctx context.Context, a telegram.Assertion, meta auth.Meta) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Profile(ctx context.Context, principalID string) (*models.User, error)
	Logout(ctx context.Context, accessToken string) error
	LogoutAll(ctx context.Context, principalID string) (int64, error)
	ListSessions(ctx context.Context, principalID string) ([]sessions.Session, error)
	RevokeSession(ctx context.Context, principalID, sessionID string) error
	AccessTTL() time.Duration
}

// Handler handles auth API requests.
type Handler struct {
	svc        Service
	log        *zap.Logger
	trustProxy bool
}

// NewHandler creates a new auth API handler. With trustProxy set, the client
// address is taken from X-Forwarded-For / X-Real-IP.
func NewHandler(svc Service, logger *zap.Logger, trustProxy bool) *Handler {
	return &Handler{svc: svc, log: logger, trustProxy: trustProxy}
}

// requestContext detaches store work from client disconnects so that a
// recorded failure still commits, and bounds it with the request timeout.
func (h *Handler) requestContext(r *http.Request, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(context.WithoutCancel(r.Context()), timeouts.Request(), h.log, op)
}

// writeError maps a Service error to its status code and user-facing message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		h.log.Error("unexpected auth error", zap.Error(err), zap.String("path", r.URL.Path))
		jsonutil.InternalError(w)
		return
	}
	switch ae.Kind {
	case auth.KindInternal:
		jsonutil.InternalError(w)
	case auth.KindInvalidToken:
		jsonutil.Unauthorized(w, ae.Message)
	case auth.KindSessionNotFound:
		jsonutil.NotFound(w, ae.Message)
	default:
		jsonutil.BadRequest(w, ae.Message)
	}
}

// Login handles POST /auth/telegram.
//
// Request body: the login widget payload
//
//	{"id": 123, "first_name": "Ann", "username": "ann", "auth_date": 1700000000, "hash": "..."}
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r, "auth.login")
	defer cancel()

	// An unreadable body is passed on as an empty assertion so the lockout
	// check still runs first and the request is reported as malformed.
	var a telegram.Assertion
	if err := jsonutil.Decode(r, &a); err != nil {
		a = telegram.Assertion{}
	}

	res, err := h.svc.Login(ctx, a, auth.Meta{
		SourceAddress: network.ClientIP(r, h.trustProxy),
		ClientAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonutil.OK(w, LoginResponse{
		Success:      true,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    int64(h.svc.AccessTTL().Seconds()),
		User:         userResponse(res.User),
	})
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := jsonutil.Decode(r, &req); err != nil || req.RefreshToken == "" {
		jsonutil.BadRequest(w, MsgRefreshRequired)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.refresh")
	defer cancel()

	res, err := h.svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonutil.OK(w, RefreshResponse{
		Success:     true,
		AccessToken: res.AccessToken,
		ExpiresIn:   int64(h.svc.AccessTTL().Seconds()),
	})
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		jsonutil.Unauthorized(w, auth.MsgInvalidToken)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.me")
	defer cancel()

	u, err := h.svc.Profile(ctx, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonutil.OK(w, MeResponse{Success: true, User: userResponse(u)})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		jsonutil.Unauthorized(w, auth.MsgInvalidToken)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.logout")
	defer cancel()

	if err := h.svc.Logout(ctx, token); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonutil.OKMessage(w, MsgLoggedOut)
}

// LogoutAll handles POST /auth/logout-all.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		jsonutil.Unauthorized(w, auth.MsgInvalidToken)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.logout_all")
	defer cancel()

	n, err := h.svc.LogoutAll(ctx, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonutil.OK(w, LogoutAllResponse{Success: true, Message: MsgLoggedOutAll, Revoked: n})
}

// ListSessions handles GET /auth/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		jsonutil.Unauthorized(w, auth.MsgInvalidToken)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.sessions")
	defer cancel()

	list, err := h.svc.ListSessions(ctx, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonutil.OK(w, SessionsResponse{Success: true, Sessions: sessionResponses(list, p.SessionID)})
}

// RevokeSession handles DELETE /auth/sessions/{id}.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		jsonutil.Unauthorized(w, auth.MsgInvalidToken)
		return
	}

	ctx, cancel := h.requestContext(r, "auth.revoke_session")
	defer cancel()

	if err := h.svc.RevokeSession(ctx, p.ID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonutil.OKMessage(w, MsgSessionRevoked)
}
