package enroll

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/coursebot/pkg/auth"
	"github.com/entrhq/coursebot/pkg/browser/browsertest"
	"github.com/entrhq/coursebot/pkg/logging"
)

type fakeAuth struct {
	page  *browsertest.Page
	errs  []error
	calls int
}

func (f *fakeAuth) Login(context.Context) (*auth.Session, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &auth.Session{ID: "s", Generation: f.calls, Page: f.page}, nil
}

type step func(s *auth.Session, pending *PendingSet) (Outcome, error)

type scriptedRunner struct {
	steps    []step
	calls    int
	sessions []*auth.Session
}

func (r *scriptedRunner) RunCycle(_ context.Context, s *auth.Session, pending *PendingSet) (Outcome, error) {
	r.sessions = append(r.sessions, s)
	i := r.calls
	r.calls++
	if i >= len(r.steps) {
		return OutcomeNeedsReauth, errors.New("unexpected cycle")
	}
	return r.steps[i](s, pending)
}

func TestDriver_ReauthUntilDone(t *testing.T) {
	pending := twoCourses(t)
	runner := &scriptedRunner{steps: []step{
		func(s *auth.Session, p *PendingSet) (Outcome, error) {
			p.Complete("CS101", "1")
			s.Invalidate()
			return OutcomeNeedsReauth, nil
		},
		func(_ *auth.Session, _ *PendingSet) (Outcome, error) {
			return OutcomeNeedsReauth, errors.New("frame detached")
		},
		func(_ *auth.Session, p *PendingSet) (Outcome, error) {
			p.Complete("CS102", "2")
			return OutcomeDone, nil
		},
	}}
	a := &fakeAuth{page: browsertest.NewPage(nil)}
	sleeps := &pacing{}
	var logs bytes.Buffer

	d := NewDriver(a, runner,
		WithReauthBackoff(2*time.Second),
		WithDriverSleep(sleeps.sleep),
		WithDriverLogger(logging.NewWriter(&logs, "info")),
	)

	require.NoError(t, d.Run(context.Background(), pending))

	assert.True(t, pending.Empty())
	assert.Equal(t, 3, a.calls)
	assert.Equal(t, 3, d.Sessions())
	assert.Equal(t, 2, sleeps.count(2*time.Second))
	assert.Len(t, pending.Successes(), 2)
	assert.Contains(t, logs.String(), "[ERROR] [driver] cycle failed, logging in again in 2s: frame detached")
	assert.Contains(t, logs.String(), "session lost")
}

func TestDriver_LoginErrorIsRetried(t *testing.T) {
	pending := twoCourses(t)
	a := &fakeAuth{page: browsertest.NewPage(nil), errs: []error{errors.New("net::ERR_TIMED_OUT")}}
	runner := &scriptedRunner{steps: []step{
		func(_ *auth.Session, p *PendingSet) (Outcome, error) {
			p.Complete("CS101", "1")
			p.Complete("CS102", "1")
			return OutcomeDone, nil
		},
	}}
	sleeps := &pacing{}

	d := NewDriver(a, runner, WithDriverSleep(sleeps.sleep))
	require.NoError(t, d.Run(context.Background(), pending))
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, d.Sessions())
}

func TestDriver_RecoversPanic(t *testing.T) {
	pending := twoCourses(t)
	runner := &scriptedRunner{steps: []step{
		func(_ *auth.Session, _ *PendingSet) (Outcome, error) {
			panic("nil frame")
		},
		func(_ *auth.Session, p *PendingSet) (Outcome, error) {
			p.Complete("CS101", "1")
			p.Complete("CS102", "2")
			return OutcomeDone, nil
		},
	}}
	var logs bytes.Buffer

	d := NewDriver(&fakeAuth{page: browsertest.NewPage(nil)}, runner,
		WithDriverSleep((&pacing{}).sleep),
		WithDriverLogger(logging.NewWriter(&logs, "info")),
	)

	require.NoError(t, d.Run(context.Background(), pending))
	assert.Equal(t, 2, runner.calls)
	assert.Contains(t, logs.String(), "cycle panicked: nil frame")
}

func TestDriver_StopsOnCancel(t *testing.T) {
	pending := twoCourses(t)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &scriptedRunner{steps: []step{
		func(_ *auth.Session, _ *PendingSet) (Outcome, error) {
			cancel()
			return OutcomeNeedsReauth, ctx.Err()
		},
	}}

	d := NewDriver(&fakeAuth{page: browsertest.NewPage(nil)}, runner, WithDriverSleep((&pacing{}).sleep))
	err := d.Run(ctx, pending)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, pending.Len())
}

func TestDriver_EmptyPendingSkipsLogin(t *testing.T) {
	pending, err := NewPendingSet()
	require.NoError(t, err)
	a := &fakeAuth{}

	require.NoError(t, NewDriver(a, &scriptedRunner{}).Run(context.Background(), pending))
	assert.Equal(t, 0, a.calls)
}

func TestDriver_WithEngine(t *testing.T) {
	sp := newSearchPage()
	sp.onSubmit = func(n int, _ []string) {
		if n == 1 {
			sp.page.EmitResponse("https://xk.example.edu/xkYjs.vxkYjsXkbBs.do", 302)
			return
		}
		sp.page.EmitDialog("CS101 1;CS102 2;")
	}

	sleeps := &pacing{}
	e := newTestEngine(t, Config{}, sleeps, nil)
	a := &fakeAuth{page: sp.page}
	pending := twoCourses(t)

	d := NewDriver(a, e, WithDriverSleep(sleeps.sleep))
	require.NoError(t, d.Run(context.Background(), pending))

	assert.Equal(t, 2, a.calls)
	assert.True(t, pending.Empty())
	assert.Len(t, sp.submitted(), 2)
}
