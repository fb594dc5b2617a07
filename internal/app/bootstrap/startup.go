// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/audit"
	"github.com/dalemusser/stratagate/internal/app/store/loginattempts"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/app/system/tasks"
	"github.com/dalemusser/stratagate/internal/app/system/telegram"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/stratagate/internal/app/system/tokens"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// authCore is everything Startup builds that BuildHandler and Shutdown need.
type authCore struct {
	service  *auth.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	runner   *tasks.Runner
}

// core is the process-wide instance, set by Startup.
var core *authCore

// Startup runs once after DB connections and index setup are complete, but
// before the HTTP handler is built and requests are served.
//
// It configures timeouts, seeds the owner account when configured, builds the
// auth core over the MongoDB stores, and starts the background sweeps.
// Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:    appCfg.PingTimeout,
		Request: appCfg.RequestTimeout,
	})

	if appCfg.SeedOwnerTelegramID != 0 {
		if err := seedOwner(ctx, userstore.New(deps.MongoDatabase), appCfg.SeedOwnerTelegramID, appCfg.SeedOwnerName, logger); err != nil {
			logger.Error("failed to seed owner", zap.Error(err))
			return err
		}
	}

	c, err := buildCore(appCfg, deps.MongoDatabase, logger)
	if err != nil {
		logger.Error("failed to build auth core", zap.Error(err))
		return err
	}
	c.runner.Start()
	core = c

	logger.Info("auth core ready",
		zap.Strings("allowed_roles", appCfg.AllowedRoles),
		zap.Int("max_sessions_per_user", appCfg.MaxSessionsPerUser),
		zap.Duration("access_token_ttl", appCfg.AccessTokenTTL),
		zap.Duration("refresh_token_ttl", appCfg.RefreshTokenTTL),
		zap.Strings("jobs", c.runner.Jobs()),
	)
	return nil
}

// buildCore wires the stores, guard, token issuer and audit log into an
// auth.Service and registers the sweep jobs. The runner is not started.
func buildCore(appCfg AppConfig, db *mongo.Database, logger *zap.Logger) (*authCore, error) {
	issuer, err := tokens.New(tokens.Config{
		AccessSecret:  appCfg.JWTAccessSecret,
		RefreshSecret: appCfg.JWTRefreshSecret,
		AccessTTL:     appCfg.AccessTokenTTL,
		RefreshTTL:    appCfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if appCfg.MetricsEnabled {
		reg = metrics.NewRegistry()
		m = metrics.New(reg)
	}

	sessionStore := sessions.New(db, appCfg.MaxSessionsPerUser)
	attemptStore := loginattempts.New(db)
	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:    appCfg.AuditLogAuth,
		Session: appCfg.AuditLogSession,
	})

	svc, err := auth.New(auth.Config{
		Verifier:     telegram.NewVerifier(appCfg.TelegramBotToken, appCfg.AssertionMaxAge),
		Tokens:       issuer,
		Sessions:     sessionStore,
		Users:        userstore.New(db),
		Guard:        bruteforce.New(attemptStore),
		AllowedRoles: appCfg.AllowedRoles,
		Audit:        auditLogger,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	runner := tasks.New(logger, m)
	runner.Register(tasks.SessionSweepJob(sessionStore, appCfg.SessionSweepInterval, logger, m))
	runner.Register(tasks.LoginAttemptSweepJob(attemptStore, appCfg.AttemptSweepInterval, indexes.LoginAttemptTTL, time.Now, logger, m))

	return &authCore{
		service:  svc,
		registry: reg,
		metrics:  m,
		runner:   runner,
	}, nil
}

// seedOwner makes sure the configured Telegram account exists with the owner role.
func seedOwner(ctx context.Context, users *userstore.Store, telegramID int64, name string, logger *zap.Logger) error {
	u, outcome, err := users.EnsureOwner(ctx, telegramID, name)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.Int64("telegram_id", telegramID),
		zap.String("user_id", u.ID.Hex()),
	}
	switch outcome {
	case userstore.OwnerCreated:
		logger.Info("created owner account", fields...)
	case userstore.OwnerPromoted:
		logger.Info("promoted existing account to owner", fields...)
	default:
		logger.Debug("owner account already configured", fields...)
	}
	return nil
}
