// internal/app/store/sessions/store.go
package sessions

// Terminology: Identifiers
//   - PrincipalID / principal_id: hex of the user's MongoDB ObjectID, as carried in tokens
//   - AccessDigest / RefreshDigest: SHA-256 hex of the issued tokens; plaintext tokens are never stored

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMaxPerPrincipal is the session cap used when none is configured.
const DefaultMaxPerPrincipal = 5

// Session is one active refresh credential.
type Session struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PrincipalID   string             `bson:"principal_id" json:"-"`
	AccessDigest  string             `bson:"access_digest" json:"-"`
	RefreshDigest string             `bson:"refresh_digest" json:"-"`
	SourceAddress string             `bson:"source_address,omitempty" json:"sourceAddress,omitempty"`
	ClientAgent   string             `bson:"client_agent,omitempty" json:"clientAgent,omitempty"`

	ExpiresAt    time.Time `bson:"expires_at" json:"expiresAt"`
	LastActivity time.Time `bson:"last_activity" json:"lastActivity"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// Store manages session records in MongoDB.
type Store struct {
	c   *mongo.Collection
	max int
	now func() time.Time
}

// New creates a session Store that keeps at most maxPerPrincipal live
// sessions per principal. A non-positive value selects DefaultMaxPerPrincipal.
func New(db *mongo.Database, maxPerPrincipal int) *Store {
	if maxPerPrincipal <= 0 {
		maxPerPrincipal = DefaultMaxPerPrincipal
	}
	return &Store{
		c:   db.Collection(indexes.SessionsCollection),
		max: maxPerPrincipal,
		now: time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// MaxPerPrincipal returns the configured session cap.
func (s *Store) MaxPerPrincipal() int { return s.max }

// live restricts a filter to sessions that have not expired yet.
func (s *Store) live(filter bson.M) bson.M {
	filter["expires_at"] = bson.M{"$gt": s.now()}
	return filter
}

// Create inserts a session and then evicts the principal's least recently
// active sessions beyond the cap. It returns the stored session and the
// number of sessions evicted.
//
// Two concurrent creates may each see the cap respected before either evicts,
// leaving one extra session until the next create.
func (s *Store) Create(ctx context.Context, sess Session) (*Session, int, error) {
	if sess.ID.IsZero() {
		sess.ID = primitive.NewObjectID()
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.LastActivity.IsZero() {
		sess.LastActivity = now
	}
	if _, err := s.c.InsertOne(ctx, sess); err != nil {
		return nil, 0, err
	}

	evicted, err := s.evict(ctx, sess.PrincipalID)
	if err != nil {
		return &sess, 0, err
	}
	return &sess, evicted, nil
}

func (s *Store) evict(ctx context.Context, principalID string) (int, error) {
	active, err := s.ListActive(ctx, principalID)
	if err != nil {
		return 0, err
	}
	victims := SelectEvictions(active, s.max)
	if len(victims) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": victims}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// SelectEvictions returns the IDs of the sessions beyond the max most
// recently active ones. Ties on LastActivity keep the newer ObjectID.
func SelectEvictions(active []Session, max int) []primitive.ObjectID {
	if len(active) <= max {
		return nil
	}
	ranked := make([]Session, len(active))
	copy(ranked, active)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].LastActivity.Equal(ranked[j].LastActivity) {
			return ranked[i].LastActivity.After(ranked[j].LastActivity)
		}
		return ranked[i].ID.Hex() > ranked[j].ID.Hex()
	})
	ids := make([]primitive.ObjectID, 0, len(ranked)-max)
	for _, sess := range ranked[max:] {
		ids = append(ids, sess.ID)
	}
	return ids
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*Session, error) {
	var sess Session
	err := s.c.FindOne(ctx, s.live(filter)).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// FindByAccessDigest returns the live session holding accessDigest, or nil.
func (s *Store) FindByAccessDigest(ctx context.Context, accessDigest string) (*Session, error) {
	if accessDigest == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"access_digest": accessDigest})
}

// FindByRefreshDigest returns the live session holding refreshDigest, or nil.
func (s *Store) FindByRefreshDigest(ctx context.Context, refreshDigest string) (*Session, error) {
	if refreshDigest == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"refresh_digest": refreshDigest})
}

// GetByID returns the live session with id, or nil.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*Session, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// ListActive returns the principal's live sessions, most recently active first.
func (s *Store) ListActive(ctx context.Context, principalID string) ([]Session, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "last_activity", Value: -1},
		{Key: "_id", Value: -1},
	})
	cursor, err := s.c.Find(ctx, s.live(bson.M{"principal_id": principalID}), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Session
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Touch records activity on a session and, when accessDigest is non-empty,
// rotates the access digest it holds. It reports whether a live session was updated.
func (s *Store) Touch(ctx context.Context, id primitive.ObjectID, accessDigest string) (bool, error) {
	now := s.now()
	set := bson.M{
		"last_activity": now,
		"updated_at":    now,
	}
	if accessDigest != "" {
		set["access_digest"] = accessDigest
	}
	res, err := s.c.UpdateOne(ctx, s.live(bson.M{"_id": id}), bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Revoke deletes one session. It reports whether a record was removed.
func (s *Store) Revoke(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// RevokeAll deletes every session of a principal and returns how many were removed.
func (s *Store) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"principal_id": principalID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteExpired removes sessions whose expiry has passed. Reads already treat
// them as absent; this only reclaims space ahead of the TTL monitor.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountActive counts live sessions across all principals.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, s.live(bson.M{}))
}
