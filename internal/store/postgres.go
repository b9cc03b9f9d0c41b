package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrIdentityTaken is returned when another profile already holds the
	// identity. The unique index on daily_user.auth_user_id is what
	// guarantees it, so concurrent links cannot both succeed.
	ErrIdentityTaken = errors.New("identity already linked to another profile")
	ErrEmailTaken    = errors.New("email already registered")
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const profileColumns = `id, created_at, name, title, phone, time_to_send, option, auth_user_id, is_admin`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p        Profile
		name     sql.NullString
		title    sql.NullString
		phone    sql.NullString
		sendHour sql.NullInt32
		options  sql.NullString
		identity sql.NullString
	)
	if err := row.Scan(&p.ID, &p.CreatedAt, &name, &title, &phone, &sendHour, &options, &identity, &p.IsAdmin); err != nil {
		return Profile{}, err
	}
	p.Name = nullString(name)
	p.Title = nullString(title)
	p.Phone = nullString(phone)
	p.Options = nullString(options)
	p.IdentityID = nullString(identity)
	if sendHour.Valid {
		hour := int(sendHour.Int32)
		p.SendHour = &hour
	}
	return p, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) GetProfile(ctx context.Context, id int64) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM daily_user WHERE id=$1`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) GetProfileByIdentity(ctx context.Context, identityID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM daily_user WHERE auth_user_id=$1`, identityID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by identity: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM daily_user ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// LinkedIdentityIDs maps every linked identity id to the profile holding it.
func (s *PostgresStore) LinkedIdentityIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT auth_user_id, id FROM daily_user WHERE auth_user_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list linked identities: %w", err)
	}
	defer rows.Close()

	linked := make(map[string]int64)
	for rows.Next() {
		var (
			identityID string
			profileID  int64
		)
		if err := rows.Scan(&identityID, &profileID); err != nil {
			return nil, fmt.Errorf("scan linked identity: %w", err)
		}
		linked[identityID] = profileID
	}
	return linked, rows.Err()
}

func (s *PostgresStore) CreateProfile(ctx context.Context, fields ProfileFields) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO daily_user (name, title, phone, time_to_send, option)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+profileColumns,
		fields.Name, fields.Title, fields.Phone, fields.SendHour, fields.Options,
	)
	profile, err := scanProfile(row)
	if err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, fields ProfileFields) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE daily_user
		SET name=$2, title=$3, phone=$4, time_to_send=$5, option=$6
		WHERE id=$1
		RETURNING `+profileColumns,
		id, fields.Name, fields.Title, fields.Phone, fields.SendHour, fields.Options,
	)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_user WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProfileIdentity links (or with nil, unlinks) an identity.
func (s *PostgresStore) SetProfileIdentity(ctx context.Context, id int64, identityID *string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE daily_user SET auth_user_id=$2 WHERE id=$1
		RETURNING `+profileColumns, id, identityID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Profile{}, ErrIdentityTaken
	}
	if err != nil {
		return Profile{}, fmt.Errorf("set profile identity: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) SetProfileAdmin(ctx context.Context, id int64, isAdmin bool) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE daily_user SET is_admin=$2 WHERE id=$1
		RETURNING `+profileColumns, id, isAdmin)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("set profile admin: %w", err)
	}
	return profile, nil
}

// EnsureProfileForIdentity returns the profile linked to identityID,
// creating one from fields when none exists. Safe to call repeatedly.
func (s *PostgresStore) EnsureProfileForIdentity(ctx context.Context, identityID string, fields ProfileFields) (Profile, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_user (name, title, phone, time_to_send, option, auth_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auth_user_id) DO NOTHING
	`, fields.Name, fields.Title, fields.Phone, fields.SendHour, fields.Options, identityID)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return s.GetProfileByIdentity(ctx, identityID)
}

func (s *PostgresStore) ListActivities(ctx context.Context, profileID int64) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, id_user, created_at, activity_date, check_status, option
		FROM daily_data
		WHERE id_user=$1
		ORDER BY activity_date DESC, id DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		var (
			activity Activity
			option   sql.NullString
		)
		if err := rows.Scan(&activity.ID, &activity.ProfileID, &activity.CreatedAt, &activity.ActivityDate, &activity.Completed, &option); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activity.Option = nullString(option)
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	detail := entry.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, actor_email, profile_id, action, identity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, entry.ActorID, entry.ActorEmail, entry.ProfileID, entry.Action, entry.IdentityID, string(detail), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, profileID int64, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_email, profile_id, action, identity_id, detail, created_at
		FROM audit_log
		WHERE profile_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		var (
			entry    AuditEntry
			identity sql.NullString
			detail   []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.ProfileID, &entry.Action, &identity, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.IdentityID = nullString(identity)
		entry.Detail = detail
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
