// Package testutil provides shared helpers for package tests: a MongoDB
// database laid out the way EnsureSchema lays out production, and JSON
// request helpers for handler tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/validators"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap/zaptest"
)

const (
	// TestDBURI is used unless STRATAGATE_TEST_MONGO_URI is set.
	TestDBURI = "mongodb://localhost:27017"
	// TestDBName prefixes every per-test database.
	TestDBName = "stratagate_test"

	// MongoDB caps database names at 63 bytes.
	maxDBName = 63
)

var (
	shared     *mongo.Client
	sharedErr  error
	sharedOnce sync.Once
)

func testURI() string {
	if uri := os.Getenv("STRATAGATE_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return TestDBURI
}

func sharedClient() (*mongo.Client, error) {
	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		opts := options.Client().
			ApplyURI(testURI()).
			SetMaxPoolSize(64).
			SetServerSelectionTimeout(5 * time.Second)
		shared, sharedErr = mongo.Connect(ctx, opts)
		if sharedErr == nil {
			sharedErr = shared.Ping(ctx, nil)
		}
	})
	return shared, sharedErr
}

// SetupTestDB returns an empty per-test database with the collection
// validators and indexes that bootstrap.EnsureSchema deploys, so store tests
// write through the same JSON-Schema rules as the running service.
// The database is dropped on cleanup.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	db := SetupBareTestDB(t)

	ctx, cancel := TestContext()
	defer cancel()
	if err := validators.EnsureAll(ctx, db, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("ensure validators: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return db
}

// SetupBareTestDB returns an empty per-test database with no collections,
// for tests of the schema setup itself.
func SetupBareTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	client, err := sharedClient()
	if err != nil {
		t.Fatalf("connect to test MongoDB at %s: %v", testURI(), err)
	}

	db := client.Database(DBNameFor(t.Name()))
	ctx, cancel := TestContext()
	defer cancel()
	if err := db.Drop(ctx); err != nil {
		t.Fatalf("drop stale test database: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop test database %s: %v", db.Name(), err)
		}
	})
	return db
}

// DBNameFor derives a valid, unique database name from a test name.
// Names that would exceed MongoDB's limit are cut and suffixed with a short
// hash of the full test name so that long subtests do not share a database.
func DBNameFor(testName string) string {
	suffix := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, testName)

	name := TestDBName + "_" + suffix
	if len(name) <= maxDBName {
		return name
	}
	sum := sha256.Sum256([]byte(testName))
	tag := hex.EncodeToString(sum[:4])
	return name[:maxDBName-len(tag)-1] + "_" + tag
}

// TestContext returns a context for test database work.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
