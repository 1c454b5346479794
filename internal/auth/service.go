// Package auth issues and verifies the service-account tokens B2B partners
// and back-office operators use against the finance API. Actor identity and
// organization scope always travel inside the token; nothing downstream
// reads them from ambient state.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-travel/meridian/internal/shared"
)

// ErrInvalidCredentials indicates an unknown client or a wrong secret.
var ErrInvalidCredentials = errors.New("invalid client credentials")

// ErrInvalidToken indicates an unparsable, expired or tampered token.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload carried by every authenticated request.
type Claims struct {
	Email          string `json:"email"`
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// Service authenticates API clients and signs access tokens.
type Service struct {
	pool   *pgxpool.Pool
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs the auth service.
func NewService(pool *pgxpool.Pool, secret string, ttl time.Duration) *Service {
	return &Service{pool: pool, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken verifies the client secret against its bcrypt hash and returns
// a signed token scoped to the client's organization.
func (s *Service) IssueToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	var actorID, orgID uuid.UUID
	var email, secretHash string
	err := s.pool.QueryRow(ctx, `SELECT id, organization_id, email, secret_hash
FROM api_clients WHERE client_id=$1 AND active`, clientID).Scan(&actorID, &orgID, &email, &secretHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(clientSecret)); err != nil {
		return "", ErrInvalidCredentials
	}
	now := s.now()
	claims := Claims{
		Email:          email,
		OrganizationID: orgID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and validates a token, returning the actor and the
// organization scope it carries.
func (s *Service) VerifyToken(tokenString string) (shared.Actor, uuid.UUID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return shared.Actor{}, uuid.Nil, ErrInvalidToken
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return shared.Actor{}, uuid.Nil, ErrInvalidToken
	}
	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		return shared.Actor{}, uuid.Nil, ErrInvalidToken
	}
	return shared.Actor{ID: actorID, Email: claims.Email}, orgID, nil
}
