// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id); its hex form is the principal ID in tokens
//   - TelegramID / telegram_id: The numeric account ID asserted by the login widget

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"github.com/dalemusser/stratagate/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrDuplicateTelegramID = errors.New("a user with this telegram id already exists")
	errBadRole             = errors.New("invalid role")
	errBadStatus           = errors.New(`status must be "active"|"disabled"`)
	errNoTelegramID        = errors.New("telegram id is required")
)

type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(indexes.UsersCollection), now: time.Now}
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by ObjectID. Returns (nil, nil) if not found.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByPrincipalID loads a user by the hex principal ID carried in tokens.
// A malformed ID is treated as not found.
func (s *Store) GetByPrincipalID(ctx context.Context, principalID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// GetByTelegramID loads a user by platform account ID. Returns (nil, nil) if not found.
func (s *Store) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.findOne(ctx, bson.M{"telegram_id": telegramID})
}

// Create inserts a new user after normalizing and validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.TelegramID == 0 {
		return models.User{}, errNoTelegramID
	}
	u.ID = primitive.NewObjectID()
	u.FirstName = htmlsanitize.PlainText(u.FirstName)
	u.LastName = htmlsanitize.PlainText(u.LastName)
	u.Username = normalize.Username(htmlsanitize.PlainText(u.Username))
	u.PhotoURL = htmlsanitize.URL(u.PhotoURL)
	u.Role = normalize.Role(u.Role)
	if u.Status == "" {
		u.Status = models.StatusActive
	}

	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}
	if u.Status != models.StatusActive && u.Status != models.StatusDisabled {
		return models.User{}, errBadStatus
	}

	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateTelegramID
		}
		return models.User{}, err
	}
	return u, nil
}

// Profile holds the display fields refreshed from a verified login.
type Profile struct {
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
}

// SyncProfile stores the latest display fields and stamps the login time.
// Empty incoming fields clear the stored value, matching what the provider sent.
func (s *Store) SyncProfile(ctx context.Context, id primitive.ObjectID, p Profile) error {
	now := s.now().UTC()
	set := bson.M{
		"last_login_at": now,
		"updated_at":    now,
	}
	unset := bson.M{}

	if first := htmlsanitize.PlainText(p.FirstName); first != "" {
		set["first_name"] = first
	}
	optional := map[string]string{
		"last_name": htmlsanitize.PlainText(p.LastName),
		"username":  normalize.Username(htmlsanitize.PlainText(p.Username)),
		"photo_url": htmlsanitize.URL(p.PhotoURL),
	}
	for field, v := range optional {
		if v == "" {
			unset[field] = ""
		} else {
			set[field] = v
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// SetRole changes a user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	role = normalize.Role(role)
	if !models.IsValidRole(role) {
		return errBadRole
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"role":       role,
		"updated_at": s.now().UTC(),
	}})
	return err
}

// SetStatus enables or disables a user.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	if status != models.StatusActive && status != models.StatusDisabled {
		return errBadStatus
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": s.now().UTC(),
	}})
	return err
}

// Outcome reports what EnsureOwner did.
type Outcome string

const (
	OwnerUnchanged Outcome = "unchanged"
	OwnerPromoted  Outcome = "promoted"
	OwnerCreated   Outcome = "created"
)

// EnsureOwner makes sure the account with telegramID exists with the owner
// role. An existing account is promoted; a missing one is created with name.
func (s *Store) EnsureOwner(ctx context.Context, telegramID int64, name string) (*models.User, Outcome, error) {
	existing, err := s.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		if existing.Role == models.RoleOwner {
			return existing, OwnerUnchanged, nil
		}
		if err := s.SetRole(ctx, existing.ID, models.RoleOwner); err != nil {
			return nil, "", err
		}
		existing.Role = models.RoleOwner
		return existing, OwnerPromoted, nil
	}

	if normalize.Name(name) == "" {
		name = "Owner"
	}
	created, err := s.Create(ctx, models.User{
		TelegramID: telegramID,
		FirstName:  name,
		Role:       models.RoleOwner,
	})
	if err != nil {
		return nil, "", err
	}
	return &created, OwnerCreated, nil
}
