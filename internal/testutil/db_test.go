package testutil

import (
	"strings"
	"testing"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDBNameFor(t *testing.T) {
	tests := []struct {
		name     string
		testName string
		want     string
	}{
		{"plain", "TestStore_Get", "stratagate_test_TestStore_Get"},
		{"subtest separators", "TestLogin/bad signature", "stratagate_test_TestLogin_bad_signature"},
		{"dots and dashes", "TestX/a.b-c", "stratagate_test_TestX_a_b_c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DBNameFor(tt.testName); got != tt.want {
				t.Errorf("DBNameFor(%q) = %q, want %q", tt.testName, got, tt.want)
			}
		})
	}
}

func TestDBNameFor_LongNamesStayDistinct(t *testing.T) {
	base := "TestSomething/" + strings.Repeat("x", 80)
	a := DBNameFor(base + "/first")
	b := DBNameFor(base + "/second")
	if len(a) > maxDBName || len(b) > maxDBName {
		t.Fatalf("names too long: %d, %d", len(a), len(b))
	}
	if a == b {
		t.Errorf("long subtests share database %q", a)
	}
	if !strings.HasPrefix(a, TestDBName+"_") {
		t.Errorf("name %q lacks prefix", a)
	}
}

func TestSetupTestDB_DeploysValidators(t *testing.T) {
	db := SetupTestDB(t)
	ctx, cancel := TestContext()
	defer cancel()

	_, err := db.Collection(indexes.UsersCollection).InsertOne(ctx, bson.M{"telegram_id": int64(5), "role": "superuser"})
	if err == nil {
		t.Error("users validator should reject an unknown role")
	}
	_, err = db.Collection(indexes.LoginAttemptsCollection).InsertOne(ctx, bson.M{"identifier": "", "type": "ip"})
	if err == nil {
		t.Error("login_attempts validator should reject an incomplete record")
	}
}
