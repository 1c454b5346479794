package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func testClaims(ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Email:          "ops@partner.test",
		OrganizationID: uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestVerifyToken(t *testing.T) {
	svc := NewService(nil, "test-secret", time.Hour)
	claims := testClaims(time.Hour)

	actor, orgID, err := svc.VerifyToken(signed(t, []byte("test-secret"), claims))
	require.NoError(t, err)
	require.Equal(t, claims.Email, actor.Email)
	require.Equal(t, claims.Subject, actor.ID.String())
	require.Equal(t, claims.OrganizationID, orgID.String())
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	svc := NewService(nil, "test-secret", time.Hour)

	_, _, err := svc.VerifyToken(signed(t, []byte("other-secret"), testClaims(time.Hour)))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	svc := NewService(nil, "test-secret", time.Hour)

	_, _, err := svc.VerifyToken(signed(t, []byte("test-secret"), testClaims(-time.Minute)))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := NewService(nil, "test-secret", time.Hour)

	_, _, err := svc.VerifyToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	claims := testClaims(time.Hour)
	claims.Subject = "not-a-uuid"
	_, _, err = svc.VerifyToken(signed(t, []byte("test-secret"), claims))
	require.ErrorIs(t, err, ErrInvalidToken)
}
