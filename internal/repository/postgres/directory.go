package postgres

import (
	"context"
	"fmt"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryStore answers the relationship queries behind audience
// resolution. Every query selects the same recipient column list and goes
// through scanRecipients, so join payloads never leak past this file.
type DirectoryStore struct {
	pool *pgxpool.Pool
}

func NewDirectoryStore(pool *pgxpool.Pool) *DirectoryStore {
	return &DirectoryStore{pool: pool}
}

const recipientColumns = `p.id, p.tenant_id, p.role, p.name, p.email, COALESCE(p.avatar_url, '')`

func (s *DirectoryStore) LinkedStudents(ctx context.Context, tenantID uuid.UUID, agentID uuid.UUID) ([]models.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + `
		FROM profiles p
		JOIN agent_students l ON l.student_id = p.id
		WHERE l.agent_id = $1 AND p.tenant_id = $2`

	rows, err := s.pool.Query(ctx, query, agentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("linked students: %w", err)
	}
	return scanRecipients(rows)
}

func (s *DirectoryStore) LinkedAgents(ctx context.Context, tenantID uuid.UUID, studentID uuid.UUID) ([]models.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + `
		FROM profiles p
		JOIN agent_students l ON l.agent_id = p.id
		WHERE l.student_id = $1 AND p.tenant_id = $2`

	rows, err := s.pool.Query(ctx, query, studentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("linked agents: %w", err)
	}
	return scanRecipients(rows)
}

func (s *DirectoryStore) UniversityContactsForStudent(ctx context.Context, tenantID uuid.UUID, studentID uuid.UUID) ([]models.Recipient, error) {
	// The one sanctioned cross-tenant edge: contacts may live under the
	// institution's own tenant, so the profiles side carries no tenant
	// predicate. The applications row that grants visibility IS
	// tenant-scoped, and only submitted applications count.
	query := `
		SELECT DISTINCT ` + recipientColumns + `
		FROM profiles p
		JOIN applications a ON a.institution_id = p.institution_id
		WHERE a.student_id = $1
		  AND a.tenant_id = $2
		  AND a.status = 'submitted'
		  AND p.role = 'university'`

	rows, err := s.pool.Query(ctx, query, studentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("university contacts for student: %w", err)
	}
	return scanRecipients(rows)
}

// SubmittedApplicants is the reverse direction of the edge above: the
// contact sees students who submitted an application to their
// institution. Applicants may belong to agency tenants, so there is no
// tenant predicate here — visibility flows through the application edge,
// and the tenant id the interface passes goes unused.
func (s *DirectoryStore) SubmittedApplicants(ctx context.Context, _ uuid.UUID, contactID uuid.UUID) ([]models.Recipient, error) {
	query := `
		SELECT DISTINCT ` + recipientColumns + `
		FROM profiles p
		JOIN applications a ON a.student_id = p.id
		JOIN profiles contact ON contact.id = $1
		WHERE a.institution_id = contact.institution_id
		  AND a.status = 'submitted'
		  AND p.role = 'student'`

	rows, err := s.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("submitted applicants: %w", err)
	}
	return scanRecipients(rows)
}

func (s *DirectoryStore) ByRoles(ctx context.Context, tenantID uuid.UUID, roles ...models.Role) ([]models.Recipient, error) {
	if len(roles) == 0 {
		return []models.Recipient{}, nil
	}

	roleStrings := make([]string, 0, len(roles))
	for _, r := range roles {
		roleStrings = append(roleStrings, string(r))
	}

	query := `
		SELECT ` + recipientColumns + `
		FROM profiles p
		WHERE p.tenant_id = $1 AND p.role = ANY($2)`

	rows, err := s.pool.Query(ctx, query, tenantID, roleStrings)
	if err != nil {
		return nil, fmt.Errorf("profiles by roles: %w", err)
	}
	return scanRecipients(rows)
}

func scanRecipients(rows pgx.Rows) ([]models.Recipient, error) {
	defer rows.Close()

	recipients := make([]models.Recipient, 0)
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(
			&r.ID,
			&r.TenantID,
			&r.Role,
			&r.Name,
			&r.Email,
			&r.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}

	return recipients, nil
}
