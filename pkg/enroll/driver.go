package enroll

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/entrhq/coursebot/pkg/auth"
	"github.com/entrhq/coursebot/pkg/logging"
	"github.com/entrhq/coursebot/pkg/metrics"
	"github.com/entrhq/coursebot/pkg/timing"
)

// Authenticator hands out live sessions.
type Authenticator interface {
	Login(ctx context.Context) (*auth.Session, error)
}

// CycleRunner runs one submission cycle on a session.
type CycleRunner interface {
	RunCycle(ctx context.Context, s *auth.Session, pending *PendingSet) (Outcome, error)
}

// Driver alternates logins and cycles until every course is confirmed.
type Driver struct {
	auth     Authenticator
	runner   CycleRunner
	backoff  time.Duration
	sleep    timing.SleepFunc
	log      *logging.Logger
	metrics  metrics.Recorder
	sessions int
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithReauthBackoff sets the pause before logging in again.
func WithReauthBackoff(d time.Duration) DriverOption {
	return func(dr *Driver) {
		dr.backoff = d
	}
}

// WithDriverSleep replaces the sleep used for the reauth backoff.
func WithDriverSleep(fn timing.SleepFunc) DriverOption {
	return func(dr *Driver) {
		dr.sleep = fn
	}
}

// WithDriverLogger sets the logger.
func WithDriverLogger(l *logging.Logger) DriverOption {
	return func(dr *Driver) {
		dr.log = l.Named("driver")
	}
}

// WithDriverMetrics sets where failed cycles are counted.
func WithDriverMetrics(m metrics.Recorder) DriverOption {
	return func(dr *Driver) {
		dr.metrics = metrics.OrNop(m)
	}
}

// NewDriver creates a Driver.
func NewDriver(a Authenticator, r CycleRunner, opts ...DriverOption) *Driver {
	d := &Driver{
		auth:    a,
		runner:  r,
		backoff: timing.Defaults().ReauthBackoff,
		sleep:   timing.Sleep,
		log:     logging.Nop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sessions returns how many sessions the driver has used.
func (d *Driver) Sessions() int {
	return d.sessions
}

// Run loops login and cycle until pending is empty, which returns nil, or
// ctx ends, which returns ctx.Err(). Failed cycles, including panics, are
// logged and retried after the reauth backoff.
func (d *Driver) Run(ctx context.Context, pending *PendingSet) error {
	d.metrics.Pending(pending.Len())

	for !pending.Empty() {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := d.cycle(ctx, pending)
		if err == nil && outcome == OutcomeDone {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			d.metrics.Reauth("error")
			d.log.Errorf("cycle failed, logging in again in %s: %v", d.backoff, err)
		} else {
			d.log.Warnf("session lost, logging in again in %s", d.backoff)
		}
		if err := d.sleep(ctx, d.backoff); err != nil {
			return err
		}
	}

	d.log.Infof("all courses confirmed after %d session(s)", d.sessions)
	return nil
}

func (d *Driver) cycle(ctx context.Context, pending *PendingSet) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeNeedsReauth
			err = fmt.Errorf("cycle panicked: %v\n%s", r, debug.Stack())
		}
	}()

	s, err := d.auth.Login(ctx)
	if err != nil {
		return OutcomeNeedsReauth, fmt.Errorf("login failed: %w", err)
	}
	d.sessions++
	if s.Reused {
		d.log.Infof("session %d reused", s.Generation)
	} else {
		d.log.Infof("session %d established", s.Generation)
	}

	return d.runner.RunCycle(ctx, s, pending)
}
