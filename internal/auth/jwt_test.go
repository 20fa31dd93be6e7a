package auth

import (
	"testing"
	"time"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken_Round_Trip(t *testing.T) {
	req := require.New(t)

	userID := uuid.New()
	tenantID := uuid.New()

	token, err := GenerateToken(userID, tenantID, models.RoleAgent, "agent@example.com", "secret", time.Hour)
	req.NoError(err)

	claims, err := ParseToken(token, "secret")
	req.NoError(err)
	req.Equal(userID, claims.UserID)
	req.Equal(tenantID, claims.TenantID)
	req.Equal(models.RoleAgent, claims.Role)
	req.Equal("agent@example.com", claims.Email)
	req.Equal("admitflow", claims.Issuer)
}

func TestParseToken_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(uuid.New(), uuid.New(), models.RoleStudent, "s@example.com", "secret", time.Hour)
	req.NoError(err)

	_, err = ParseToken(token, "other-secret")
	req.Error(err)
}

func TestParseToken_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(uuid.New(), uuid.New(), models.RoleStudent, "s@example.com", "secret", -time.Minute)
	req.NoError(err)

	_, err = ParseToken(token, "secret")
	req.Error(err)
}

func TestParseToken_Rejects_Garbage(t *testing.T) {
	req := require.New(t)

	_, err := ParseToken("not.a.token", "secret")
	req.Error(err)
}
