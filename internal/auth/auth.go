package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles stored in profiles.role.
const (
	RoleUser       = "user"
	RoleOwner      = "facility_owner"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin is true for admins and super admins.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperAdmin
}

// HasRole reports whether the identity holds role. Admins hold every role.
func (i Identity) HasRole(role string) bool {
	return i.Role == role || i.IsAdmin()
}

// TokenValidator resolves a bearer token into an Identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, bool)
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// IssueToken signs an HS256 access token for userID.
func IssueToken(secret []byte, identity Identity, issuedAt time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("no token secret configured")
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Email: identity.Email,
		Role:  identity.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type JWTValidator struct {
	secret []byte
	now    func() time.Time
}

func NewJWTValidator(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	return &JWTValidator{secret: []byte(secret), now: time.Now}, nil
}

func (v *JWTValidator) Validate(_ context.Context, token string) (Identity, bool) {
	claims, err := v.Parse(token)
	if err != nil {
		return Identity{}, false
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, true
}

func (v *JWTValidator) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
