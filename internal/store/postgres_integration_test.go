package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// openTestDB needs DAILY_TEST_DATABASE_URL pointing at a disposable
// database; the public schema is dropped and rebuilt.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DAILY_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DAILY_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db, testMigrationsDir()))
	return db
}

func testMigrationsDir() string {
	return filepath.Join("..", "..", "db", "migrations")
}

func strPtr(v string) *string { return &v }

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, applyDownMigrations(ctx, db, testMigrationsDir()))
	_, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db, testMigrationsDir()))
}

func TestSetProfileIdentityRejectsSecondHolder(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	first, err := s.CreateProfile(ctx, ProfileFields{Name: strPtr("Ana")})
	require.NoError(t, err)
	second, err := s.CreateProfile(ctx, ProfileFields{Name: strPtr("Bia")})
	require.NoError(t, err)

	linked, err := s.SetProfileIdentity(ctx, first.ID, strPtr("identity-1"))
	require.NoError(t, err)
	require.True(t, linked.Linked())

	_, err = s.SetProfileIdentity(ctx, second.ID, strPtr("identity-1"))
	require.ErrorIs(t, err, ErrIdentityTaken)

	owners, err := s.LinkedIdentityIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"identity-1": first.ID}, owners)

	unlinked, err := s.SetProfileIdentity(ctx, first.ID, nil)
	require.NoError(t, err)
	require.False(t, unlinked.Linked())
}

func TestConcurrentLinksLeaveSingleHolder(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	ids := make([]int64, 4)
	for i := range ids {
		profile, err := s.CreateProfile(ctx, ProfileFields{})
		require.NoError(t, err)
		ids[i] = profile.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.SetProfileIdentity(ctx, id, strPtr("identity-race"))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrIdentityTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()
	require.Equal(t, 1, successes)
}

func TestEnsureProfileForIdentityIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	first, err := s.EnsureProfileForIdentity(ctx, "identity-2", ProfileFields{Name: strPtr("Caio")})
	require.NoError(t, err)
	again, err := s.EnsureProfileForIdentity(ctx, "identity-2", ProfileFields{Name: strPtr("Other")})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "Caio", *again.Name)
}

func TestListActivitiesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, ProfileFields{})
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO daily_data (id_user, activity_date, check_status, option) VALUES
		($1, '2026-01-01', TRUE, 'Water'),
		($1, '2026-01-03', FALSE, NULL),
		($1, '2026-01-02', TRUE, 'Walk')
	`, profile.ID)
	require.NoError(t, err)

	activities, err := s.ListActivities(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, activities, 3)
	require.Equal(t, "2026-01-03", activities[0].ActivityDate.Format("2006-01-02"))
	require.Nil(t, activities[0].Option)
	require.Equal(t, "2026-01-01", activities[2].ActivityDate.Format("2006-01-02"))

	require.NoError(t, s.DeleteProfile(ctx, profile.ID))
	activities, err = s.ListActivities(ctx, profile.ID)
	require.NoError(t, err)
	require.Empty(t, activities)
}

func TestAuthUserEmailIsCaseInsensitiveUnique(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	_, err := s.CreateAuthUser(ctx, AuthUser{ID: "u-1", Email: "ana@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = s.CreateAuthUser(ctx, AuthUser{ID: "u-2", Email: "ANA@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrEmailTaken)

	found, err := s.GetAuthUserByEmail(ctx, "Ana@Example.com")
	require.NoError(t, err)
	require.Equal(t, "u-1", found.ID)
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	var downs []string
	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			downs = append(downs, filepath.Join(migrationsDir, entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, path := range downs {
		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return err
		}
	}
	return nil
}
