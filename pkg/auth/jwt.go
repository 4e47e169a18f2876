package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// Verifier issues and verifies HS256 identity tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer sets the issuer claim written and required by the Verifier.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = iss }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Issue signs a token for p valid for ttl. A zero ttl issues a token
// without expiry.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("auth: jwt secret not configured")
	}
	if p.ID == "" {
		return "", errors.New("auth: principal id required")
	}
	now := v.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Email: p.Email,
		Name:  p.Name,
		Roles: p.Roles,
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// Verify parses token and returns its principal. Any failure is reported as
// an expired-session error wrapping the cause.
func (v *Verifier) Verify(token string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, errors.New("auth: jwt secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	c := &claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, apperrors.New(apperrors.CodeSessionExpired).Wrap(err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Principal{}, apperrors.New(apperrors.CodeSessionExpired).Wrap(errors.New("invalid token"))
	}
	p := Principal{
		ID:    c.Subject,
		Email: c.Email,
		Name:  c.Name,
		Roles: c.Roles,
	}
	if c.ExpiresAt != nil {
		p.ExpiresAtUnixMs = c.ExpiresAt.UnixMilli()
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
