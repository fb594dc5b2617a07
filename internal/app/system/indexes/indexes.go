// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names shared with the stores.
const (
	UsersCollection         = "users"
	SessionsCollection      = "sessions"
	LoginAttemptsCollection = "login_attempts"
	AuditLogsCollection     = "audit_logs"
)

// LoginAttemptTTL is how long an idle login_attempts record is kept.
const LoginAttemptTTL = 24 * time.Hour

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
Errors are aggregated so every problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := []struct {
		name   string
		ensure func(context.Context, *mongo.Database) error
	}{
		{UsersCollection, ensureUsers},
		{SessionsCollection, ensureSessions},
		{LoginAttemptsCollection, ensureLoginAttempts},
		{AuditLogsCollection, ensureAuditLogs},
	}
	for _, s := range sets {
		if err := s.ensure(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                       */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name               string `bson:"name"`
	Key                bson.D `bson:"key"`
	Unique             *bool  `bson:"unique,omitempty"`
	ExpireAfterSeconds *int32 `bson:"expireAfterSeconds,omitempty"`
}

// desiredIndex is the subset of index options the reconciler compares.
type desiredIndex struct {
	name   string
	sig    string
	unique bool
	ttl    *int32
}

func describe(m mongo.IndexModel) desiredIndex {
	d := desiredIndex{sig: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		if m.Options.Unique != nil {
			d.unique = *m.Options.Unique
		}
		d.ttl = m.Options.ExpireAfterSeconds
	}
	return d
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// matches reports whether an existing index already satisfies d.
func (d desiredIndex) matches(ex existingIndex) bool {
	exUnique := ex.Unique != nil && *ex.Unique
	if exUnique != d.unique {
		return false
	}
	switch {
	case d.ttl == nil && ex.ExpireAfterSeconds == nil:
		return true
	case d.ttl == nil || ex.ExpireAfterSeconds == nil:
		return false
	default:
		return *d.ttl == *ex.ExpireAfterSeconds
	}
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listIndexes(ctx, coll)

	for _, m := range models {
		d := describe(m)
		start := time.Now()

		if ex, ok := existing[d.sig]; ok {
			if d.matches(ex) {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", d.sig))
				continue
			}

			// Uniqueness or TTL changed. Drop and recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), d.name, err))
				continue
			}
			zap.L().Info("dropped index with stale options",
				zap.String("collection", coll.Name()),
				zap.String("name", ex.Name),
				zap.String("keys", d.sig))
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && d.unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), d.name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), d.name, err))
			}
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", d.name),
			zap.String("keys", d.sig),
			zap.Bool("unique", d.unique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection(UsersCollection), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "telegram_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_telegram_id"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_users_role_status"),
		},
	})
}

func ensureSessions(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection(SessionsCollection), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "refresh_digest", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_session_refresh_digest"),
		},
		{
			Keys:    bson.D{{Key: "access_digest", Value: 1}},
			Options: options.Index().SetName("idx_session_access_digest"),
		},
		// Active sessions per principal, newest first (listing and eviction)
		{
			Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "last_activity", Value: -1}},
			Options: options.Index().SetName("idx_session_principal_activity"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
		},
	})
}

func ensureLoginAttempts(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection(LoginAttemptsCollection), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_login_attempt_identifier_type"),
		},
		{
			Keys:    bson.D{{Key: "last_attempt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(LoginAttemptTTL / time.Second)).SetName("idx_login_attempt_ttl"),
		},
	})
}

func ensureAuditLogs(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection(AuditLogsCollection), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_created"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_event_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_created"),
		},
		{
			Keys:    bson.D{{Key: "ip", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_ip_created"),
		},
	})
}
