// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/stratagate/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for login, refresh and logout events.
	Auth string
	// Session controls logging for session revocation and eviction events.
	Session string
}

// Sink stores audit events. *audit.Store implements it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Source identifies where a request came from.
type Source struct {
	IP        string
	UserAgent string
}

// Logger writes audit events to MongoDB and/or zap according to Config.
// A nil *Logger is valid and discards everything.
type Logger struct {
	store  Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategorySession:
		setting = l.config.Session
	}
	if setting == "" {
		setting = ModeAll
	}
	if setting == ModeOff {
		return
	}

	if setting == ModeAll || setting == ModeLog {
		l.logToZap(event)
	}
	if (setting == ModeAll || setting == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) auth(ctx context.Context, src Source, eventType, userID string, success bool, reason string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		IP:            src.IP,
		UserAgent:     src.UserAgent,
		Success:       success,
		FailureReason: reason,
		Details:       details,
	})
}

// --- Login ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, src Source, principalID string, telegramID int64, role string) {
	l.auth(ctx, src, audit.EventLoginSuccess, principalID, true, "", map[string]string{
		"telegram_id": strconv.FormatInt(telegramID, 10),
		"role":        role,
	})
}

// LoginFailed logs a rejected login. eventType is one of the audit.EventLoginFailed* values.
func (l *Logger) LoginFailed(ctx context.Context, src Source, eventType string, principalID string, telegramID int64, reason string) {
	var details map[string]string
	if telegramID != 0 {
		details = map[string]string{"telegram_id": strconv.FormatInt(telegramID, 10)}
	}
	l.auth(ctx, src, eventType, principalID, false, reason, details)
}

// LockedOut logs a login refused because an identifier is locked out.
func (l *Logger) LockedOut(ctx context.Context, src Source, identifierType, identifier string, minutesLeft int) {
	l.auth(ctx, src, audit.EventLoginLockedOut, "", false, "too many failed attempts", map[string]string{
		"identifier_type": identifierType,
		"identifier":      identifier,
		"minutes_left":    strconv.Itoa(minutesLeft),
	})
}

// --- Tokens ---

// TokenRefreshed logs a successful access token refresh.
func (l *Logger) TokenRefreshed(ctx context.Context, principalID, sessionID string) {
	l.auth(ctx, Source{}, audit.EventTokenRefreshed, principalID, true, "", map[string]string{
		"session_id": sessionID,
	})
}

// TokenRefreshFailed logs a refresh rejected for an unknown or revoked session.
func (l *Logger) TokenRefreshFailed(ctx context.Context, principalID, reason string) {
	l.auth(ctx, Source{}, audit.EventTokenRefreshFailed, principalID, false, reason, nil)
}

// RefreshPermissionRevoked logs a session revoked at refresh because the
// principal no longer holds an allowed role.
func (l *Logger) RefreshPermissionRevoked(ctx context.Context, principalID, sessionID, role string) {
	l.auth(ctx, Source{}, audit.EventTokenRefreshPermissionDrop, principalID, false, "role no longer allowed", map[string]string{
		"session_id": sessionID,
		"role":       role,
	})
}

// --- Logout ---

// Logout logs a single-session logout.
func (l *Logger) Logout(ctx context.Context, principalID, sessionID string) {
	l.auth(ctx, Source{}, audit.EventLogout, principalID, true, "", map[string]string{
		"session_id": sessionID,
	})
}

// LogoutAll logs a logout from every device.
func (l *Logger) LogoutAll(ctx context.Context, principalID string, revoked int64) {
	l.auth(ctx, Source{}, audit.EventLogoutAll, principalID, true, "", map[string]string{
		"revoked": strconv.FormatInt(revoked, 10),
	})
}

// --- Sessions ---

// SessionRevoked logs a session removed by its owner from the session list.
func (l *Logger) SessionRevoked(ctx context.Context, principalID, sessionID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySession,
		EventType: audit.EventSessionRevoked,
		UserID:    principalID,
		Success:   true,
		Details:   map[string]string{"session_id": sessionID},
	})
}

// SessionsEvicted logs sessions dropped because the principal exceeded the cap.
func (l *Logger) SessionsEvicted(ctx context.Context, principalID string, count int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySession,
		EventType: audit.EventSessionEvicted,
		UserID:    principalID,
		Success:   true,
		Details:   map[string]string{"count": strconv.Itoa(count)},
	})
}
