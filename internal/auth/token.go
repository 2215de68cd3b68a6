// Package auth issues and checks the bearer tokens presented by users, gates
// and administrators.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("insufficient role")
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGate  Role = "gate"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser || r == RoleGate
}

// Claims carries the principal id in Subject and its role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    Role
}

// Require returns ErrForbidden unless the identity has role.
func (id Identity) Require(role Role) error {
	if id.Role != role {
		return fmt.Errorf("%w: need %s, have %s", ErrForbidden, role, id.Role)
	}
	return nil
}

const issuer = "gatepass"

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

func (i *Issuer) Issue(subject string, role Role) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: role,
	})

	return token.SignedString(i.secret)
}

func (i *Issuer) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}

	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// SecretMatches compares a presented login secret in constant time.
func SecretMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

type ctxKey struct{}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
