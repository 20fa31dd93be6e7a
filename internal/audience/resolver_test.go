package audience

import (
	"context"
	"testing"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeDirectory returns canned visibility buckets; which bucket a test
// fills encodes the relationship graph under test.
type fakeDirectory struct {
	linkedStudents []models.Recipient
	linkedAgents   []models.Recipient
	contacts       []models.Recipient
	applicants     []models.Recipient
	byRole         map[models.Role][]models.Recipient
}

func (f *fakeDirectory) LinkedStudents(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]models.Recipient, error) {
	return f.linkedStudents, nil
}

func (f *fakeDirectory) LinkedAgents(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]models.Recipient, error) {
	return f.linkedAgents, nil
}

func (f *fakeDirectory) UniversityContactsForStudent(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]models.Recipient, error) {
	return f.contacts, nil
}

func (f *fakeDirectory) SubmittedApplicants(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]models.Recipient, error) {
	return f.applicants, nil
}

func (f *fakeDirectory) ByRoles(_ context.Context, _ uuid.UUID, roles ...models.Role) ([]models.Recipient, error) {
	out := make([]models.Recipient, 0)
	for _, role := range roles {
		out = append(out, f.byRole[role]...)
	}
	return out, nil
}

func person(name string, role models.Role) models.Recipient {
	return models.Recipient{
		ID:    uuid.New(),
		Role:  role,
		Name:  name,
		Email: name + "@example.com",
	}
}

func TestResolver_Agent_Sees_Linked_Students_And_Tenant_Team(t *testing.T) {
	req := require.New(t)

	linked := person("Amara", models.RoleStudent)
	staff := person("Bela", models.RoleStaff)
	dir := &fakeDirectory{
		linkedStudents: []models.Recipient{linked},
		byRole: map[models.Role][]models.Recipient{
			models.RoleStaff: {staff},
		},
	}
	r := NewResolver(dir)

	// When an agent resolves their audience
	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})

	// Then linked students and the tenant team are visible, nobody else
	req.NoError(err)
	req.Len(got, 2)
	req.Equal([]models.Recipient{linked, staff}, got)
}

func TestResolver_Student_Sees_Agents_Contacts_And_Team(t *testing.T) {
	req := require.New(t)

	agent := person("Agent", models.RoleAgent)
	contact := person("Contact", models.RoleUniversity)
	admin := person("Zadmin", models.RoleAdmin)
	dir := &fakeDirectory{
		linkedAgents: []models.Recipient{agent},
		contacts:     []models.Recipient{contact},
		byRole: map[models.Role][]models.Recipient{
			models.RoleAdmin: {admin},
		},
	}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleStudent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})

	req.NoError(err)
	req.Len(got, 3)
}

func TestResolver_Actor_Is_Always_Excluded(t *testing.T) {
	req := require.New(t)

	actor := person("Self", models.RoleAgent)
	other := person("Other", models.RoleStudent)
	dir := &fakeDirectory{
		// A data quirk links the agent to themselves; the resolver must
		// still drop them.
		linkedStudents: []models.Recipient{actor, other},
	}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      actor.ID,
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})

	req.NoError(err)
	req.Len(got, 1)
	req.Equal(other.ID, got[0].ID)
}

func TestResolver_Duplicates_Across_Buckets_Collapse(t *testing.T) {
	req := require.New(t)

	// Given one person reachable through two buckets
	dual := person("Dual", models.RoleAgent)
	dir := &fakeDirectory{
		linkedAgents: []models.Recipient{dual},
		contacts:     []models.Recipient{dual},
	}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleStudent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})

	req.NoError(err)
	req.Len(got, 1)
}

func TestResolver_Search_Filters_On_Name_And_Email_Case_Insensitive(t *testing.T) {
	req := require.New(t)

	alice := person("Alice", models.RoleStudent)
	bob := person("Bob", models.RoleStudent)
	dir := &fakeDirectory{linkedStudents: []models.Recipient{alice, bob}}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
		Search:       "ALI",
	})

	req.NoError(err)
	req.Len(got, 1)
	req.Equal(alice.ID, got[0].ID)

	// Email matches too
	got, err = r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
		Search:       "bob@example",
	})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(bob.ID, got[0].ID)
}

func TestResolver_Order_Is_Deterministic_And_Limit_Truncates(t *testing.T) {
	req := require.New(t)

	c := person("Carol", models.RoleStudent)
	a := person("Alice", models.RoleStudent)
	b := person("Bob", models.RoleStudent)
	dir := &fakeDirectory{linkedStudents: []models.Recipient{c, a, b}}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})
	req.NoError(err)
	req.Equal([]string{"Alice", "Bob", "Carol"}, []string{got[0].Name, got[1].Name, got[2].Name})

	got, err = r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
		Limit:        2,
	})
	req.NoError(err)
	req.Len(got, 2)
	req.Equal("Alice", got[0].Name)
}

func TestResolver_No_Matches_Is_Empty_Not_Error(t *testing.T) {
	req := require.New(t)
	r := NewResolver(&fakeDirectory{})

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAgent,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})

	req.NoError(err)
	req.Empty(got)
	req.NotNil(got)
}

func TestResolver_Unknown_Role_And_Audience_Are_Validation_Errors(t *testing.T) {
	req := require.New(t)
	r := NewResolver(&fakeDirectory{})

	_, err := r.Resolve(context.Background(), Query{
		ActorID:   uuid.New(),
		ActorRole: models.Role("ghost"),
		TenantID:  uuid.New(),
	})
	req.ErrorIs(err, models.ErrValidation)

	_, err = r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleStaff,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceType("everyone"),
	})
	req.ErrorIs(err, models.ErrValidation)
}

func TestResolver_StaffAdmin_Audience_Buckets_Map_To_Roles(t *testing.T) {
	req := require.New(t)

	student := person("Student", models.RoleStudent)
	agent := person("Agent", models.RoleAgent)
	dir := &fakeDirectory{
		byRole: map[models.Role][]models.Recipient{
			models.RoleStudent: {student},
			models.RoleAgent:   {agent},
		},
	}
	r := NewResolver(dir)

	got, err := r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAdmin,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceStudents,
	})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(student.ID, got[0].ID)

	got, err = r.Resolve(context.Background(), Query{
		ActorID:      uuid.New(),
		ActorRole:    models.RoleAdmin,
		TenantID:     uuid.New(),
		AudienceType: models.AudienceAll,
	})
	req.NoError(err)
	req.Len(got, 2)
}
