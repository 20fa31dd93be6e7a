package auth

import (
	"fmt"
	"time"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload inside every JWT token.
//
// The middleware reads these back on every request — this is how the
// server knows who is calling, which tenant they belong to, and which
// role's visibility rules apply, without a database hit per request.
//
// Why embed jwt.RegisteredClaims?
//   - Standard JWT fields for free: ExpiresAt, IssuedAt, Issuer.
//   - Our custom fields (UserID, TenantID, Role, Email) sit on top.
type Claims struct {
	UserID   uuid.UUID   `json:"user_id"`
	TenantID uuid.UUID   `json:"tenant_id"`
	Role     models.Role `json:"role"`
	Email    string      `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a given user.
//
// HS256: one shared secret, symmetric, fast. Fine while a single service
// both issues and verifies tokens; RS256 would only matter with separate
// issuer/verifier services.
func GenerateToken(userID, tenantID uuid.UUID, role models.Role, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "admitflow",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies the signature, the expiry, and that the signing method is
// HMAC — rejecting "none"/RSA tokens up front closes the classic JWT
// algorithm-confusion attack.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
