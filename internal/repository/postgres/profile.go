package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) Create(ctx context.Context, tenantID uuid.UUID, role models.Role, name, email, passwordHash string) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (tenant_id, role, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, tenant_id, role, name, email, COALESCE(avatar_url, ''), password_hash, created_at`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, tenantID, role, name, email, passwordHash).Scan(
		&p.ID,
		&p.TenantID,
		&p.Role,
		&p.Name,
		&p.Email,
		&p.AvatarURL,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, tenant_id, role, name, email, COALESCE(avatar_url, ''), password_hash, created_at
		FROM profiles
		WHERE id = $1 AND tenant_id = $2`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, userID, tenantID).Scan(
		&p.ID,
		&p.TenantID,
		&p.Role,
		&p.Name,
		&p.Email,
		&p.AvatarURL,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// GetByEmail looks up a profile by email (globally, not tenant-scoped).
// Used for login — you type your email, we find you.
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `
		SELECT id, tenant_id, role, name, email, COALESCE(avatar_url, ''), password_hash, created_at
		FROM profiles
		WHERE email = $1`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&p.ID,
		&p.TenantID,
		&p.Role,
		&p.Name,
		&p.Email,
		&p.AvatarURL,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by email: %w", err)
	}
	return &p, nil
}
