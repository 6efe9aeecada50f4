// Package principal provides the authenticated identity passed into every
// state-changing operation. A Principal can only be obtained by verifying a
// signed bearer token, so a bare account string never stands in for
// authorization.
package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// ErrUnauthenticated is returned when an operation receives a zero Principal.
var ErrUnauthenticated = errors.New("unauthenticated")

// ID is an account identifier. It names an account but proves nothing.
type ID string

// Principal is an opaque, verified identity.
type Principal struct {
	id ID
}

// ID returns the account the principal is authenticated as.
func (p Principal) ID() ID { return p.id }

// IsZero reports whether p was never verified.
func (p Principal) IsZero() bool { return p.id == "" }

func (p Principal) String() string { return string(p.id) }

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator constructs an Authenticator. A non-positive ttl issues
// tokens valid for one hour.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given account.
func (a *Authenticator) Issue(id ID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("issue token: empty account id")
	}
	now := a.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   string(id),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the principal
// it was issued for.
func (a *Authenticator) Verify(token string) (Principal, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Principal{id: ID(claims.Subject)}, nil
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok && !p.IsZero()
}
