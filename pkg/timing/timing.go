// Package timing holds the tunable delays shared by the login and submission
// loops, plus a context-aware sleep used everywhere a loop backs off.
package timing

import (
	"context"
	"time"
)

// Timings groups every wait the bot performs. All values are tunable because
// the registration system's behaviour differs between terms.
type Timings struct {
	// AttemptTimeout bounds one submission race before the session is
	// considered unresponsive.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" json:"attempt_timeout" validate:"gt=0s"`

	// Pacing is the pause between two submissions on a live session.
	Pacing time.Duration `yaml:"pacing" json:"pacing" validate:"gte=0s"`

	// ReauthBackoff is the pause before a new login after a failed cycle.
	ReauthBackoff time.Duration `yaml:"reauth_backoff" json:"reauth_backoff" validate:"gte=0s"`

	// LoginBackoff is the pause after the server rejected a login.
	LoginBackoff time.Duration `yaml:"login_backoff" json:"login_backoff" validate:"gte=0s"`

	// OCRBackoff is the pause after a failed captcha recognition.
	OCRBackoff time.Duration `yaml:"ocr_backoff" json:"ocr_backoff" validate:"gte=0s"`

	// Settle is the pause between a confirmed login and the first
	// navigation on the new session.
	Settle time.Duration `yaml:"settle" json:"settle" validate:"gte=0s"`

	// EmptyCaptchaBackoff is the pause after the captcha endpoint returned
	// no content.
	EmptyCaptchaBackoff time.Duration `yaml:"empty_captcha_backoff" json:"empty_captcha_backoff" validate:"gte=0s"`
}

// Defaults returns the delays the bot ships with.
func Defaults() Timings {
	return Timings{
		AttemptTimeout:      10 * time.Second,
		Pacing:              2 * time.Second,
		ReauthBackoff:       2 * time.Second,
		LoginBackoff:        10 * time.Second,
		OCRBackoff:          time.Second,
		Settle:              time.Second,
		EmptyCaptchaBackoff: time.Second,
	}
}

// Sleep blocks for d or until ctx is done. It returns ctx.Err() when the
// context ended first. A non-positive d only checks the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepFunc matches Sleep so components can swap it out in tests.
type SleepFunc func(ctx context.Context, d time.Duration) error
