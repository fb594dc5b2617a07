// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"github.com/dalemusser/stratagate/internal/app/system/telegram"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/stratagate/internal/app/system/tokens"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATAGATE"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, telegram_bot_token, etc.
//   - Environment variables: STRATAGATE_MONGO_URI, STRATAGATE_TELEGRAM_BOT_TOKEN, etc.
//   - Command-line flags: --mongo_uri, --telegram_bot_token, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratagate", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Identity provider
	{Name: "telegram_bot_token", Default: "", Desc: "Telegram bot token used to verify login widget assertions (required)"},
	{Name: "assertion_max_age", Default: "24h", Desc: "Maximum age of a login assertion's auth_date"},

	// Tokens
	{Name: "jwt_access_secret", Default: "", Desc: "Access token signing secret (32+ chars, required)"},
	{Name: "jwt_refresh_secret", Default: "", Desc: "Refresh token signing secret (32+ chars, required)"},
	{Name: "access_token_ttl", Default: "15m", Desc: "Access token lifetime"},
	{Name: "refresh_token_ttl", Default: "168h", Desc: "Refresh token and session lifetime"},

	// Sessions and login policy
	{Name: "max_sessions_per_user", Default: 5, Desc: "Concurrent sessions per user; the least recently active are evicted"},
	{Name: "allowed_roles", Default: "owner,admin,moderator", Desc: "Comma-separated roles allowed to log in"},
	{Name: "trust_proxy_headers", Default: false, Desc: "Take the client address from the last X-Forwarded-For hop / X-Real-IP; enable only behind a reverse proxy"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_session", Default: "all", Desc: "Session revocation/eviction logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Background sweeps
	{Name: "session_sweep_interval", Default: "1h", Desc: "How often expired sessions are deleted"},
	{Name: "attempt_sweep_interval", Default: "1h", Desc: "How often stale login attempt records are deleted"},

	{Name: "metrics_enabled", Default: true, Desc: "Expose Prometheus metrics at /metrics"},
	{Name: "request_timeout", Default: "5s", Desc: "Deadline for the store work behind one auth request"},
	{Name: "ping_timeout", Default: "2s", Desc: "Deadline for health check pings"},

	// Owner seeding configuration
	{Name: "seed_owner_telegram_id", Default: "0", Desc: "Telegram ID of the owner account to ensure on startup (0 disables)"},
	{Name: "seed_owner_name", Default: "Owner", Desc: "Display name for a newly created owner account"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, STRATAGATE_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	ownerID, err := parseTelegramID(appValues.String("seed_owner_telegram_id"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		TelegramBotToken: appValues.String("telegram_bot_token"),
		AssertionMaxAge:  appValues.Duration("assertion_max_age", telegram.DefaultMaxAge),

		JWTAccessSecret:  appValues.String("jwt_access_secret"),
		JWTRefreshSecret: appValues.String("jwt_refresh_secret"),
		AccessTokenTTL:   appValues.Duration("access_token_ttl", tokens.DefaultAccessTTL),
		RefreshTokenTTL:  appValues.Duration("refresh_token_ttl", tokens.DefaultRefreshTTL),

		MaxSessionsPerUser: appValues.Int("max_sessions_per_user"),
		AllowedRoles:       normalize.RoleList(appValues.String("allowed_roles")),
		TrustProxyHeaders:  appValues.Bool("trust_proxy_headers"),

		AuditLogAuth:    appValues.String("audit_log_auth"),
		AuditLogSession: appValues.String("audit_log_session"),

		SessionSweepInterval: appValues.Duration("session_sweep_interval", time.Hour),
		AttemptSweepInterval: appValues.Duration("attempt_sweep_interval", time.Hour),

		MetricsEnabled: appValues.Bool("metrics_enabled"),
		RequestTimeout: appValues.Duration("request_timeout", timeouts.DefaultRequest),
		PingTimeout:    appValues.Duration("ping_timeout", timeouts.DefaultPing),

		SeedOwnerTelegramID: ownerID,
		SeedOwnerName:       appValues.String("seed_owner_name"),
	}

	return coreCfg, appCfg, nil
}

func parseTelegramID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("seed_owner_telegram_id must be a non-negative integer, got %q", s)
	}
	return id, nil
}

// validAuditModes are the accepted audit_log_* values.
var validAuditModes = map[string]bool{"all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// A missing bot token, a short or shared JWT secret, or a bad MongoDB URI
// aborts startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateAppConfig(appCfg)
}

// validateAppConfig checks the settings that do not depend on WAFFLE.
func validateAppConfig(appCfg AppConfig) error {
	if strings.TrimSpace(appCfg.TelegramBotToken) == "" {
		return errors.New("telegram_bot_token is required")
	}

	if _, err := tokens.New(tokens.Config{
		AccessSecret:  appCfg.JWTAccessSecret,
		RefreshSecret: appCfg.JWTRefreshSecret,
	}); err != nil {
		return fmt.Errorf("invalid token configuration: %w", err)
	}
	if appCfg.JWTAccessSecret == appCfg.JWTRefreshSecret {
		return errors.New("jwt_access_secret and jwt_refresh_secret must differ")
	}

	if appCfg.MaxSessionsPerUser <= 0 {
		return fmt.Errorf("max_sessions_per_user must be positive, got %d", appCfg.MaxSessionsPerUser)
	}
	if len(appCfg.AllowedRoles) == 0 {
		return errors.New("allowed_roles must name at least one role")
	}

	for key, v := range map[string]string{
		"audit_log_auth":    appCfg.AuditLogAuth,
		"audit_log_session": appCfg.AuditLogSession,
	} {
		if !validAuditModes[v] {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, v)
		}
	}
	return nil
}
