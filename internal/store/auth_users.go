package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const authUserColumns = `id, email, password_hash, created_at, email_confirmed_at, last_sign_in_at`

func scanAuthUser(row rowScanner) (AuthUser, error) {
	var (
		user      AuthUser
		confirmed sql.NullTime
		lastSeen  sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &confirmed, &lastSeen); err != nil {
		return AuthUser{}, err
	}
	if confirmed.Valid {
		at := confirmed.Time
		user.EmailConfirmedAt = &at
	}
	if lastSeen.Valid {
		at := lastSeen.Time
		user.LastSignInAt = &at
	}
	return user, nil
}

func (s *PostgresStore) CreateAuthUser(ctx context.Context, user AuthUser) (AuthUser, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_users (id, email, password_hash, email_confirmed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+authUserColumns,
		user.ID, strings.TrimSpace(user.Email), user.PasswordHash, user.EmailConfirmedAt,
	)
	created, err := scanAuthUser(row)
	if isUniqueViolation(err) {
		return AuthUser{}, ErrEmailTaken
	}
	if err != nil {
		return AuthUser{}, fmt.Errorf("create auth user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetAuthUserByID(ctx context.Context, id string) (AuthUser, error) {
	user, err := scanAuthUser(s.db.QueryRowContext(ctx, `SELECT `+authUserColumns+` FROM auth_users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return AuthUser{}, ErrNotFound
	}
	if err != nil {
		return AuthUser{}, fmt.Errorf("get auth user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetAuthUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	user, err := scanAuthUser(s.db.QueryRowContext(ctx, `SELECT `+authUserColumns+` FROM auth_users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return AuthUser{}, ErrNotFound
	}
	if err != nil {
		return AuthUser{}, fmt.Errorf("get auth user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListAuthUsers(ctx context.Context) ([]AuthUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+authUserColumns+` FROM auth_users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list auth users: %w", err)
	}
	defer rows.Close()

	users := make([]AuthUser, 0)
	for rows.Next() {
		user, err := scanAuthUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auth user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateAuthUserEmail(ctx context.Context, id, email string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE auth_users SET email=$2 WHERE id=$1`, id, strings.TrimSpace(email))
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update auth user email: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) UpdateAuthUserPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE auth_users SET password_hash=$2 WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update auth user password: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) TouchAuthUserSignIn(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE auth_users SET last_sign_in_at=$2 WHERE id=$1`, id, at); err != nil {
		return fmt.Errorf("touch auth user sign-in: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM auth_revoked_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
