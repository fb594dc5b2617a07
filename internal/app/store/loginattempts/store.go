// internal/app/store/loginattempts/store.go
package loginattempts

import (
	"context"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt is the persisted failure counter for one (identifier, type) pair.
type Attempt struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Identifier   string             `bson:"identifier"`   // source address or asserted account id
	Type         string             `bson:"type"`         // "ip" or "user"
	Attempts     int                `bson:"attempts"`     // consecutive failures since last reset
	LastAttempt  time.Time          `bson:"last_attempt"` // most recent failure (TTL anchor)
	BlockedUntil *time.Time         `bson:"blocked_until,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func (a *Attempt) record() *bruteforce.Record {
	return &bruteforce.Record{
		Identifier:   a.Identifier,
		Type:         bruteforce.Type(a.Type),
		Attempts:     a.Attempts,
		LastAttempt:  a.LastAttempt,
		BlockedUntil: a.BlockedUntil,
	}
}

// Store persists brute-force counters in MongoDB. It implements bruteforce.Store.
type Store struct {
	c *mongo.Collection
}

// New creates a login attempt Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(indexes.LoginAttemptsCollection)}
}

func keyFilter(identifier string, typ bruteforce.Type) bson.M {
	return bson.M{"identifier": normalize.Identifier(identifier), "type": string(typ)}
}

// Get returns the counter for identifier, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, identifier string, typ bruteforce.Type) (*bruteforce.Record, error) {
	var a Attempt
	err := s.c.FindOne(ctx, keyFilter(identifier, typ)).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.record(), nil
}

// Increment atomically creates or bumps the counter and returns the result.
// blocked_until is derived from the new count in the same update, so two
// concurrent failures cannot leave a shorter lockout behind.
func (s *Store) Increment(ctx context.Context, identifier string, typ bruteforce.Type, now time.Time) (*bruteforce.Record, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "attempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$attempts", 0}}}, 1,
			}}}},
			{Key: "last_attempt", Value: now},
			{Key: "updated_at", Value: now},
			{Key: "created_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$created_at", now}}}},
		}}},
		{{Key: "$set", Value: bson.D{{Key: "blocked_until", Value: blockedUntilExpr(now)}}}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var a Attempt
	if err := s.c.FindOneAndUpdate(ctx, keyFilter(identifier, typ), update, opts).Decode(&a); err != nil {
		return nil, err
	}
	return a.record(), nil
}

// blockedUntilExpr maps the updated attempts field onto the lockout table.
// Below the first step the field is removed.
func blockedUntilExpr(now time.Time) bson.D {
	steps := bruteforce.Steps()
	branches := make(bson.A, 0, len(steps))
	for _, st := range steps {
		branches = append(branches, bson.D{
			{Key: "case", Value: bson.D{{Key: "$gte", Value: bson.A{"$attempts", st.Attempts}}}},
			{Key: "then", Value: now.Add(st.Lockout)},
		})
	}
	return bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: branches},
		{Key: "default", Value: "$$REMOVE"},
	}}}
}

// Delete removes the counter. Called after a successful login.
func (s *Store) Delete(ctx context.Context, identifier string, typ bruteforce.Type) error {
	_, err := s.c.DeleteOne(ctx, keyFilter(identifier, typ))
	return err
}

// DeleteStale removes counters whose last failure is older than cutoff.
// The TTL index does the same passively; this lets the sweep job run it on demand.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"last_attempt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Count returns the number of stored counters of the given type.
func (s *Store) Count(ctx context.Context, typ bruteforce.Type) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"type": string(typ)})
}
