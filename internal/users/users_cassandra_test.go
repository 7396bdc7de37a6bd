package users

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/conduit/internal/docstore"
	"example.com/conduit/internal/models"
	"golang.org/x/crypto/bcrypt"
)

func newCassandraRepo(t *testing.T) *Repo {
	t.Helper()
	host := os.Getenv("CASSANDRA_TEST_HOST")
	if host == "" {
		t.Skip("CASSANDRA_TEST_HOST not set")
	}

	migrations, err := filepath.Abs("../../migrations/cassandra")
	if err != nil {
		t.Fatalf("migrations path: %v", err)
	}
	keyspace := fmt.Sprintf("conduit_users_%d", time.Now().UnixNano())

	st, err := docstore.NewCassandra(docstore.CassandraConfig{
		Host:           host,
		Keyspace:       keyspace,
		Timeout:        10 * time.Second,
		MigrationsPath: migrations,
		Indexed:        map[string][]string{Bucket: {"email"}},
	})
	if err != nil {
		t.Fatalf("cassandra init failed: %v", err)
	}
	t.Cleanup(st.Close)
	t.Cleanup(func() {
		_ = st.Session.Query("DROP KEYSPACE IF EXISTS " + keyspace).Exec()
	})
	return New(st, bcrypt.MinCost)
}

func TestCassandra_SaveFindFollow(t *testing.T) {
	repo := newCassandraRepo(t)
	ctx := context.Background()

	jake := &models.User{Username: "jake", Email: "jake@example.com"}
	celeb := &models.User{Username: "celeb", Email: "celeb@example.com"}
	for _, u := range []*models.User{jake, celeb} {
		if err := repo.Save(ctx, u); err != nil {
			t.Fatalf("save %s failed: %v", u.Username, err)
		}
	}

	found, err := repo.FindByEmail(ctx, "jake@example.com")
	if err != nil || found == nil || found.ID != jake.ID {
		t.Fatalf("expected jake by email, got %+v (%v)", found, err)
	}

	if err := repo.Follow(ctx, found, celeb); err != nil {
		t.Fatalf("follow failed: %v", err)
	}

	reloaded, err := repo.FindByID(ctx, jake.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("find by id failed: %+v (%v)", reloaded, err)
	}
	if len(reloaded.Following) != 1 || reloaded.Following[0] != celeb.ID {
		t.Fatalf("expected following [%s], got %v", celeb.ID, reloaded.Following)
	}
	if reloaded.Username != "jake" || reloaded.Email != "jake@example.com" {
		t.Fatalf("follow must not touch other fields, got %+v", reloaded)
	}

	if err := repo.RecordFollower(ctx, celeb.ID, jake.ID); err != nil {
		t.Fatalf("record follower failed: %v", err)
	}
	followers, err := repo.Followers(ctx, celeb.ID)
	if err != nil || len(followers) != 1 || followers[0] != jake.ID {
		t.Fatalf("expected followers [%s], got %v (%v)", jake.ID, followers, err)
	}
}

func TestCassandra_EmailChange(t *testing.T) {
	repo := newCassandraRepo(t)
	ctx := context.Background()

	u := &models.User{Username: "jake", Email: "old@example.com"}
	if err := repo.Save(ctx, u); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	u.Email = "new@example.com"
	if err := repo.Save(ctx, u); err != nil {
		t.Fatalf("resave failed: %v", err)
	}

	if old, err := repo.FindByEmail(ctx, "old@example.com"); err != nil || old != nil {
		t.Fatalf("old address must not resolve, got %+v (%v)", old, err)
	}
	found, err := repo.FindByEmail(ctx, "new@example.com")
	if err != nil || found == nil || found.ID != u.ID {
		t.Fatalf("new address must resolve to %s, got %+v (%v)", u.ID, found, err)
	}
}
