package audience

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Query is one resolution request. Search and Limit are optional; a zero
// Limit means unbounded.
type Query struct {
	ActorID      uuid.UUID
	ActorRole    models.Role
	TenantID     uuid.UUID
	AudienceType models.AudienceType
	Search       string
	Limit        int
}

// strategyFunc produces the raw visibility set for one role. Exclusion of
// the actor, dedup, search, ordering, and limit happen uniformly in
// Resolve — strategies only answer "who can this role see".
type strategyFunc func(ctx context.Context, r *Resolver, q Query) ([]models.Recipient, error)

// Resolver computes who an actor may message or broadcast to, as a pure
// function of (role, tenant, relationship data). It is read-only: no
// matches is an empty slice, never an error.
//
// Per-role rules live in a strategy map rather than an if/else chain —
// adding a role means registering one function, not growing a monolith.
type Resolver struct {
	directory  repository.DirectoryRepository
	strategies map[models.Role]strategyFunc
}

func NewResolver(directory repository.DirectoryRepository) *Resolver {
	r := &Resolver{directory: directory}
	r.strategies = map[models.Role]strategyFunc{
		models.RoleAgent:      resolveForAgent,
		models.RoleStudent:    resolveForStudent,
		models.RoleUniversity: resolveForUniversity,
		models.RoleStaff:      resolveForStaffAdmin,
		models.RoleAdmin:      resolveForStaffAdmin,
	}
	return r
}

// Resolve returns the ordered, deduplicated recipient set for the query.
// Post-processing order matters and is fixed:
//
//  1. role strategy (visibility rules always apply first)
//  2. drop the actor
//  3. dedup by id
//  4. search filter (substring on name/email, case-insensitive)
//  5. stable sort by (name, id) so equal inputs give equal outputs
//  6. limit truncation
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]models.Recipient, error) {
	strategy, ok := r.strategies[q.ActorRole]
	if !ok {
		return nil, fmt.Errorf("resolve audience for role %q: %w", q.ActorRole, models.ErrValidation)
	}

	resolved, err := strategy(ctx, r, q)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	resolved = lo.Filter(resolved, func(rec models.Recipient, _ int) bool {
		return rec.ID != q.ActorID
	})
	resolved = lo.UniqBy(resolved, func(rec models.Recipient) uuid.UUID {
		return rec.ID
	})

	if search := strings.TrimSpace(q.Search); search != "" {
		needle := strings.ToLower(search)
		resolved = lo.Filter(resolved, func(rec models.Recipient, _ int) bool {
			return strings.Contains(strings.ToLower(rec.Name), needle) ||
				strings.Contains(strings.ToLower(rec.Email), needle)
		})
	}

	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].Name != resolved[j].Name {
			return resolved[i].Name < resolved[j].Name
		}
		return resolved[i].ID.String() < resolved[j].ID.String()
	})

	if q.Limit > 0 && len(resolved) > q.Limit {
		resolved = resolved[:q.Limit]
	}
	return resolved, nil
}

// agent → their linked students ∪ tenant staff/admin.
func resolveForAgent(ctx context.Context, r *Resolver, q Query) ([]models.Recipient, error) {
	students, err := r.directory.LinkedStudents(ctx, q.TenantID, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("linked students: %w", err)
	}
	team, err := r.directory.ByRoles(ctx, q.TenantID, models.RoleStaff, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("tenant team: %w", err)
	}
	return append(students, team...), nil
}

// student → linked agents ∪ contacts of submitted-to institutions
// ∪ tenant staff/admin.
func resolveForStudent(ctx context.Context, r *Resolver, q Query) ([]models.Recipient, error) {
	agents, err := r.directory.LinkedAgents(ctx, q.TenantID, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("linked agents: %w", err)
	}
	contacts, err := r.directory.UniversityContactsForStudent(ctx, q.TenantID, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("university contacts: %w", err)
	}
	team, err := r.directory.ByRoles(ctx, q.TenantID, models.RoleStaff, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("tenant team: %w", err)
	}
	return append(append(agents, contacts...), team...), nil
}

// university contact → students with a submitted application to one of the
// institution's programs ∪ tenant staff/admin.
func resolveForUniversity(ctx context.Context, r *Resolver, q Query) ([]models.Recipient, error) {
	applicants, err := r.directory.SubmittedApplicants(ctx, q.TenantID, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("submitted applicants: %w", err)
	}
	team, err := r.directory.ByRoles(ctx, q.TenantID, models.RoleStaff, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("tenant team: %w", err)
	}
	return append(applicants, team...), nil
}

// staff/admin → the requested audience bucket; "all" is the union of
// every bucket.
func resolveForStaffAdmin(ctx context.Context, r *Resolver, q Query) ([]models.Recipient, error) {
	switch q.AudienceType {
	case models.AudienceStudents:
		return r.directory.ByRoles(ctx, q.TenantID, models.RoleStudent)
	case models.AudienceAgents:
		return r.directory.ByRoles(ctx, q.TenantID, models.RoleAgent)
	case models.AudienceUniversities:
		return r.directory.ByRoles(ctx, q.TenantID, models.RoleUniversity)
	case models.AudienceAll:
		return r.directory.ByRoles(ctx, q.TenantID,
			models.RoleStudent, models.RoleAgent, models.RoleUniversity,
			models.RoleStaff, models.RoleAdmin)
	default:
		return nil, fmt.Errorf("unknown audience type %q: %w", q.AudienceType, models.ErrValidation)
	}
}
