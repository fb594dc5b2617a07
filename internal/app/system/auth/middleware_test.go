package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/auth/authtest"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.uber.org/zap"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := auth.BearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequireBearer(t *testing.T) {
	h := authtest.New(t)
	u := h.AddUser(1001, models.RoleAdmin)
	login := mustLogin(t, h, 1001, meta)

	var seen *auth.Principal
	handler := auth.RequireBearer(h.Service, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.CurrentPrincipal(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(header string) int {
		r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	if code := serve(""); code != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", code)
	}
	if code := serve("Token " + login.AccessToken); code != http.StatusUnauthorized {
		t.Errorf("wrong scheme: status = %d, want 401", code)
	}
	if code := serve("Bearer " + login.RefreshToken); code != http.StatusUnauthorized {
		t.Errorf("refresh token: status = %d, want 401", code)
	}

	if code := serve("Bearer " + login.AccessToken); code != http.StatusNoContent {
		t.Fatalf("valid token: status = %d, want 204", code)
	}
	if seen == nil || seen.ID != u.ID.Hex() || seen.SessionID != login.SessionID {
		t.Errorf("principal = %+v", seen)
	}

	if err := h.Service.Logout(context.Background(), login.AccessToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if code := serve("Bearer " + login.AccessToken); code != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", code)
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(context.Context, string) (*auth.Principal, error) {
	return nil, &auth.Error{Kind: auth.KindInternal, Message: auth.MsgInternal, Err: errors.New("db down")}
}

func TestRequireBearer_StoreFailure(t *testing.T) {
	handler := auth.RequireBearer(failingAuthenticator{}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
