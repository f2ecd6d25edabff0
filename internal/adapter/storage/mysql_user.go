package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl1809/shophub/internal/core/domain"
)

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, sql.NullString{String: u.PasswordHash, Valid: u.PasswordHash != ""},
		u.Role, u.Image, u.CreatedAt, u.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var (
		u        domain.User
		hash     sql.NullString
		verified sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, image, email_verified_at, created_at, updated_at
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &hash, &u.Role, &u.Image, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, notFound(err)
	}

	u.PasswordHash = hash.String
	if verified.Valid {
		u.EmailVerifiedAt = &verified.Time
	}
	return u, nil
}

func (m *MySQLAdapter) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE users SET email_verified_at = NOW(3), updated_at = NOW(3) WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteUser(ctx context.Context, userID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
