// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS, body limits).
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Identity provider
	TelegramBotToken string        // Bot token; its SHA-256 keys the login assertion HMAC
	AssertionMaxAge  time.Duration // Oldest auth_date accepted (default: 24h)

	// Tokens
	JWTAccessSecret  string        // HS256 key for access tokens (32+ chars)
	JWTRefreshSecret string        // HS256 key for refresh tokens (32+ chars, distinct from access)
	AccessTokenTTL   time.Duration // Access token lifetime (default: 15m)
	RefreshTokenTTL  time.Duration // Refresh token and session lifetime (default: 168h)

	// Sessions and login policy
	MaxSessionsPerUser int      // Concurrent sessions per principal (default: 5)
	AllowedRoles       []string // Roles allowed to log in (default: owner, admin, moderator)
	TrustProxyHeaders  bool     // Take the client address from X-Forwarded-For / X-Real-IP

	// Audit logging: 'all' (db+log), 'db', 'log', or 'off'
	AuditLogAuth    string
	AuditLogSession string

	// Background sweeps
	SessionSweepInterval time.Duration // How often expired sessions are deleted (default: 1h)
	AttemptSweepInterval time.Duration // How often stale login attempts are deleted (default: 1h)

	// Observability
	MetricsEnabled bool // Mount /metrics

	// Timeouts for request-scoped store work and health pings
	RequestTimeout time.Duration
	PingTimeout    time.Duration

	// Owner seeding (0 disables)
	SeedOwnerTelegramID int64
	SeedOwnerName       string
}
