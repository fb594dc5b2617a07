// internal/app/system/validators/validators.go

// Package validators creates the auth collections and attaches JSON-Schema
// validators so that documents written outside the stores still carry the
// fields the stores query on.
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), it logs and skips.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
			return
		}
		logger.Info("validator ensured", zap.String("collection", coll))
	}

	ensure(indexes.UsersCollection, usersSchema())
	ensure(indexes.SessionsCollection, sessionsSchema())
	ensure(indexes.LoginAttemptsCollection, loginAttemptsSchema())
	ensure(indexes.AuditLogsCollection, nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers ---------------------- */

// collectionExists returns true when name already exists.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure name exists.
// Returns created==true only if it was actually created.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	return db.RunCommand(ctx, cmd).Decode(&out)
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"telegram_id", "role"},
			"properties": bson.M{
				"telegram_id": bson.M{"bsonType": bson.A{"long", "int"}, "minimum": 1},
				"first_name":  bson.M{"bsonType": "string"},
				"role":        bson.M{"enum": bson.A{models.RoleOwner, models.RoleAdmin, models.RoleModerator, models.RoleMember}},
				"status":      bson.M{"enum": bson.A{models.StatusActive, models.StatusDisabled}},
				"permissions": bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			},
		},
	}
}

func sessionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"principal_id", "access_digest", "refresh_digest", "expires_at", "last_activity"},
			"properties": bson.M{
				"principal_id":   bson.M{"bsonType": "string", "minLength": 1},
				"access_digest":  bson.M{"bsonType": "string", "minLength": 1},
				"refresh_digest": bson.M{"bsonType": "string", "minLength": 1},
				"expires_at":     bson.M{"bsonType": "date"},
				"last_activity":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func loginAttemptsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"identifier", "type", "attempts", "last_attempt"},
			"properties": bson.M{
				"identifier":    bson.M{"bsonType": "string", "minLength": 1},
				"type":          bson.M{"enum": bson.A{string(bruteforce.TypeIP), string(bruteforce.TypeUser)}},
				"attempts":      bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"last_attempt":  bson.M{"bsonType": "date"},
				"blocked_until": bson.M{"bsonType": "date"},
			},
		},
	}
}
