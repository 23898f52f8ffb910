// Package session holds the bearer credential used for remote calls and
// keeps it fresh in the background.
package session

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/apex/log"
)

// DefaultRefresh is the refresh interval used when none is configured.
const DefaultRefresh = 5 * time.Minute

var (
	// ErrNoCredential is returned by sources that have nothing to offer.
	ErrNoCredential = errors.New("no credential")
	// ErrRejected is returned by sources whose issuer refused the token.
	ErrRejected = errors.New("credential rejected")
)

// Credential is a bearer token with its roles.
type Credential struct {
	Token     string    `json:"-"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the credential has a past expiry.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Source produces credentials.
type Source interface {
	Credential(ctx context.Context) (Credential, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credential, error)

func (f SourceFunc) Credential(ctx context.Context) (Credential, error) { return f(ctx) }

// Static always returns the same credential. An empty token yields
// ErrNoCredential.
type Static Credential

func (s Static) Credential(context.Context) (Credential, error) {
	if s.Token == "" {
		return Credential{}, ErrNoCredential
	}
	return Credential(s), nil
}

// Session publishes the current credential to concurrent readers.
type Session struct {
	src Source
	cur atomic.Pointer[Credential]
}

// New returns a session that refreshes from src.
func New(src Source) *Session {
	return &Session{src: src}
}

// Current returns the credential, or nil when none is held or it expired.
func (s *Session) Current() *Credential {
	c := s.cur.Load()
	if c == nil || c.Expired(time.Now()) {
		return nil
	}
	return c
}

// Bearer returns the Authorization header value, or "" without a credential.
func (s *Session) Bearer() string {
	if c := s.Current(); c != nil {
		return "Bearer " + c.Token
	}
	return ""
}

// HasRole reports whether the current credential carries role.
func (s *Session) HasRole(role string) bool {
	c := s.Current()
	return c != nil && slices.Contains(c.Roles, role)
}

// Set replaces the current credential.
func (s *Session) Set(c Credential) {
	s.cur.Store(&c)
}

// Clear drops the current credential.
func (s *Session) Clear() {
	s.cur.Store(nil)
}

// Refresh fetches a credential from the source. A rejected credential is
// dropped; on any other failure the previous one is kept until it expires.
func (s *Session) Refresh(ctx context.Context) error {
	if s.src == nil {
		return ErrNoCredential
	}
	c, err := s.src.Credential(ctx)
	if errors.Is(err, ErrRejected) {
		s.Clear()
		return err
	}
	if err != nil {
		return err
	}
	s.Set(c)
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	refresh := func() {
		err := s.Refresh(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
		case errors.Is(err, ErrRejected):
			log.WithError(err).Warn("credential rejected, continuing without one")
		case !errors.Is(err, ErrNoCredential):
			log.WithError(err).Warn("session refresh failed")
		}
	}
	refresh()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			refresh()
		}
	}
}
