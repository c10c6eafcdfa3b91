// Package auth establishes logged-in sessions on the registration system.
//
// Login keeps trying until the server accepts a captcha or the context ends.
// Captcha failures, empty captcha images and rejected logins are retried
// here and never surface to the caller; navigation failures do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/coursebot/pkg/archive"
	"github.com/entrhq/coursebot/pkg/browser"
	"github.com/entrhq/coursebot/pkg/captcha"
	"github.com/entrhq/coursebot/pkg/config"
	"github.com/entrhq/coursebot/pkg/logging"
	"github.com/entrhq/coursebot/pkg/metrics"
	"github.com/entrhq/coursebot/pkg/site"
	"github.com/entrhq/coursebot/pkg/timing"
)

// CaptchaResolver turns a captcha image into a code.
type CaptchaResolver interface {
	Resolve(ctx context.Context, image []byte) (string, error)
}

// Authenticator logs a browser page in.
type Authenticator struct {
	page      browser.Page
	creds     config.Credentials
	resolver  CaptchaResolver
	archive   *archive.Archive
	endpoints site.Endpoints
	timings   timing.Timings
	sleep     timing.SleepFunc
	log       *logging.Logger
	metrics   metrics.Recorder

	state      atomic.Int32
	mu         sync.Mutex
	generation int
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithEndpoints overrides the production endpoints.
func WithEndpoints(e site.Endpoints) Option {
	return func(a *Authenticator) {
		a.endpoints = e
	}
}

// WithTimings sets the login, OCR and empty-captcha backoffs.
func WithTimings(t timing.Timings) Option {
	return func(a *Authenticator) {
		a.timings = t
	}
}

// WithSleep replaces the sleep used for backoff.
func WithSleep(fn timing.SleepFunc) Option {
	return func(a *Authenticator) {
		a.sleep = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Authenticator) {
		a.log = l.Named("auth")
	}
}

// WithMetrics sets where login attempts are counted.
func WithMetrics(m metrics.Recorder) Option {
	return func(a *Authenticator) {
		a.metrics = metrics.OrNop(m)
	}
}

// New creates an Authenticator for page.
func New(page browser.Page, creds config.Credentials, resolver CaptchaResolver, arch *archive.Archive, opts ...Option) *Authenticator {
	a := &Authenticator{
		page:      page,
		creds:     creds,
		resolver:  resolver,
		archive:   arch,
		endpoints: site.Default(),
		timings:   timing.Defaults(),
		sleep:     timing.Sleep,
		log:       logging.Nop(),
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current step of the login flow.
func (a *Authenticator) State() State {
	return State(a.state.Load())
}

func (a *Authenticator) setState(s State) {
	if prev := State(a.state.Swap(int32(s))); prev != s {
		a.log.Debugf("state %s -> %s", prev, s)
	}
}

// Login returns a live session.
//
// If the page is already on the main page the session is reused without a
// captcha. Otherwise Login loops over captcha and credential submission
// until the server redirects to the main page. It returns an error only when
// ctx ends, a navigation fails or the results directory cannot be written.
func (a *Authenticator) Login(ctx context.Context) (*Session, error) {
	a.setState(Unauthenticated)
	mainURL := a.endpoints.MainURL()

	loc, err := a.page.Goto(ctx, mainURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open main page: %w", err)
	}
	if loc == mainURL {
		a.setState(Authenticated)
		a.metrics.LoginAttempt(metrics.LoginReused)
		s := a.newSession(true)
		a.log.Infof("already logged in, reusing page as session %d", s.Generation)
		return s, nil
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			a.setState(Unauthenticated)
			return nil, err
		}

		ok, err := a.attempt(ctx, attempt)
		if err != nil {
			a.setState(Unauthenticated)
			return nil, err
		}
		if ok {
			s := a.newSession(false)
			a.log.Infof("login succeeded after %d attempt(s), session %d", attempt, s.Generation)
			return s, nil
		}
	}
}

// attempt runs one captcha and credential round trip. It reports whether
// the server accepted the login.
func (a *Authenticator) attempt(ctx context.Context, n int) (bool, error) {
	a.setState(FetchingCaptcha)

	if _, err := a.page.Goto(ctx, a.endpoints.LoginPageURL()); err != nil {
		return false, fmt.Errorf("failed to open login page: %w", err)
	}

	image, err := a.page.Fetch(ctx, a.endpoints.CaptchaURL())
	if err != nil {
		return false, fmt.Errorf("failed to fetch captcha: %w", err)
	}
	if len(image) == 0 {
		a.log.Warnf("attempt %d: captcha endpoint returned no image, retrying", n)
		a.metrics.CaptchaFailure("empty_image")
		return false, a.sleep(ctx, a.timings.EmptyCaptchaBackoff)
	}

	if err := a.archive.Stage(image); err != nil {
		return false, err
	}

	code, err := a.resolver.Resolve(ctx, image)
	if err != nil {
		a.discard()
		if errors.Is(err, captcha.ErrResolution) {
			a.log.Infof("attempt %d: fetching a new captcha", n)
			return false, nil
		}
		return false, err
	}

	a.setState(Submitting)
	a.log.Infof("attempt %d: submitting credentials with captcha %s", n, code)

	loc, err := a.page.Goto(ctx, a.endpoints.AuthURL(a.creds.Username, a.creds.Password, code))
	if err != nil {
		a.discard()
		return false, fmt.Errorf("failed to submit login: %w", err)
	}

	if loc != a.endpoints.MainURL() {
		a.metrics.LoginAttempt(metrics.LoginRejected)
		a.log.Warnf("attempt %d: login rejected with captcha %s", n, code)
		a.discard()
		return false, a.sleep(ctx, a.timings.LoginBackoff)
	}

	a.setState(Authenticated)
	a.metrics.LoginAttempt(metrics.LoginAccepted)
	if path, err := a.archive.Keep(code); err != nil {
		a.log.Warnf("could not archive accepted captcha: %v", err)
	} else {
		a.log.Debugf("accepted captcha archived at %s", path)
	}
	return true, nil
}

func (a *Authenticator) discard() {
	if err := a.archive.Discard(); err != nil {
		a.log.Warnf("%v", err)
	}
}

func (a *Authenticator) newSession(reused bool) *Session {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	return &Session{
		ID:          uuid.New().String(),
		Generation:  gen,
		Page:        a.page,
		Established: time.Now(),
		Reused:      reused,
	}
}
