package auth

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// Principal represents the authenticated identity.
// Intentionally minimal: no catch-all claims map.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	Roles []string `json:"roles,omitempty"`

	ExpiresAtUnixMs int64 `json:"expires_at_unix_ms,omitempty"`
}

// Expired reports whether the principal carries an expiry in the past.
func (p Principal) Expired(now time.Time) bool {
	return p.ExpiresAtUnixMs > 0 && now.UnixMilli() >= p.ExpiresAtUnixMs
}

// Provider answers who the current user is. CurrentUser returns nil when no
// one is signed in. It must be safe for concurrent use and must not block.
type Provider interface {
	CurrentUser() *Principal
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() *Principal

// CurrentUser calls f().
func (f ProviderFunc) CurrentUser() *Principal { return f() }

// Static returns a Provider that always reports p. A nil p means anonymous.
func Static(p *Principal) Provider {
	return ProviderFunc(func() *Principal {
		if p == nil {
			return nil
		}
		cp := *p
		return &cp
	})
}

// Session holds the signed-in principal of one client.
type Session struct {
	mu        sync.RWMutex
	principal *Principal
	now       func() time.Time
}

// NewSession creates an anonymous session.
func NewSession() *Session {
	return &Session{now: time.Now}
}

// Login stores p as the current user.
func (s *Session) Login(p Principal) {
	s.mu.Lock()
	s.principal = &p
	s.mu.Unlock()
}

// Logout clears the current user.
func (s *Session) Logout() {
	s.mu.Lock()
	s.principal = nil
	s.mu.Unlock()
}

// CurrentUser returns a copy of the current principal, or nil when the
// session is anonymous or the principal has expired.
func (s *Session) CurrentUser() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return nil
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if s.principal.Expired(now()) {
		return nil
	}
	cp := *s.principal
	return &cp
}

// Require returns the current user of p or an auth-required error.
func Require(p Provider) (Principal, error) {
	if p == nil {
		return Principal{}, apperrors.New(apperrors.CodeAuthRequired)
	}
	user := p.CurrentUser()
	if user == nil || user.ID == "" {
		return Principal{}, apperrors.New(apperrors.CodeAuthRequired)
	}
	return *user, nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored on ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != ""
}
