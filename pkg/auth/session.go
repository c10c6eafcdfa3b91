package auth

import (
	"sync/atomic"
	"time"

	"github.com/entrhq/coursebot/pkg/browser"
)

// Session is an authenticated browser page. Only Login creates sessions.
type Session struct {
	// ID is unique per session.
	ID string

	// Generation counts the sessions created by one Authenticator, from 1.
	Generation int

	// Page is the browser page the session lives in.
	Page browser.Page

	// Established is when the login was confirmed.
	Established time.Time

	// Reused is set when the page was already logged in and no captcha was
	// solved.
	Reused bool

	invalid atomic.Bool
}

// Invalidate marks the session dead. It cannot be revived; a new Login is
// needed.
func (s *Session) Invalidate() {
	s.invalid.Store(true)
}

// Valid reports whether the session may still be used.
func (s *Session) Valid() bool {
	return s != nil && !s.invalid.Load()
}
