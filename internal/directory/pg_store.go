package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := s.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, d.specialization, d.status, d.created_at, d.updated_at
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Email, &d.Specialization, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &d, nil
}

func (s *PgStore) UpdateDoctorStatus(ctx context.Context, id uuid.UUID, status DoctorStatus) (DoctorStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous DoctorStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM doctors WHERE user_id = $1 FOR UPDATE
	`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDoctorNotFound
		}
		return "", fmt.Errorf("lock doctor: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE doctors SET status = $2, updated_at = now() WHERE user_id = $1
	`, id, status); err != nil {
		return "", fmt.Errorf("update doctor status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return previous, nil
}
