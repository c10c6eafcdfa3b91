// Package enroll submits course selections on a logged-in session until
// every requested course is confirmed.
//
// An Engine runs one cycle on one session: it sweeps the pending courses,
// submits them and reads each confirmation dialog. Any sign that the
// session is gone ends the cycle with OutcomeNeedsReauth. The Driver ties
// cycles to fresh logins until the PendingSet is empty.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/coursebot/pkg/archive"
	"github.com/entrhq/coursebot/pkg/auth"
	"github.com/entrhq/coursebot/pkg/browser"
	"github.com/entrhq/coursebot/pkg/logging"
	"github.com/entrhq/coursebot/pkg/metrics"
	"github.com/entrhq/coursebot/pkg/site"
	"github.com/entrhq/coursebot/pkg/timing"
)

// ErrSessionInvalid is returned by RunCycle for a session that was already
// invalidated.
var ErrSessionInvalid = errors.New("session is no longer valid")

// Outcome is how a cycle ended.
type Outcome int

const (
	// OutcomeDone means the PendingSet is empty.
	OutcomeDone Outcome = iota + 1

	// OutcomeNeedsReauth means the session was dropped and a new login is
	// needed.
	OutcomeNeedsReauth
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeNeedsReauth:
		return "needs_reauth"
	default:
		return "unknown"
	}
}

// Submission modes.
const (
	// SubmitBulk selects every remaining section of every pending course
	// and submits once.
	SubmitBulk = "bulk"

	// SubmitSingle submits one section at a time.
	SubmitSingle = "single"
)

// DefaultIgnoreResponses matches static assets whose status says nothing
// about the session. Patterns are globs over the response URL without its
// query string.
var DefaultIgnoreResponses = []string{"*.ico", "*.css", "*.js", "*.png", "*.gif", "*.jpg", "*.woff", "*.woff2"}

// dialogBuffer bounds the dialogs queued during one attempt; extra ones are
// accepted immediately.
const dialogBuffer = 8

// Config is what an Engine submits and how.
type Config struct {
	// Term is the academic term, for example 2026-2027-1.
	Term string

	// DegreeTrack selects the degree-course search page.
	DegreeTrack bool

	// Mode is SubmitBulk or SubmitSingle. Empty means SubmitBulk.
	Mode string

	// Classifier reads confirmation dialogs. Nil means Contains.
	Classifier Classifier

	Endpoints site.Endpoints
	Timings   timing.Timings

	// IgnoreResponses lists URL globs exempt from the bad-response signal.
	// Nil means DefaultIgnoreResponses.
	IgnoreResponses []string
}

// Engine runs submission cycles.
type Engine struct {
	cfg     Config
	ignore  []glob.Glob
	archive *archive.Archive
	sleep   timing.SleepFunc
	log     *logging.Logger
	metrics metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchive enables a screenshot after every confirmation dialog.
func WithArchive(a *archive.Archive) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

// WithSleep replaces the sleep used for pacing.
func WithSleep(fn timing.SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.log = l.Named("enroll")
	}
}

// WithMetrics sets where verdicts and reauths are counted.
func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = metrics.OrNop(m)
	}
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Term == "" {
		return nil, fmt.Errorf("term is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = SubmitBulk
	case SubmitBulk, SubmitSingle:
	default:
		return nil, fmt.Errorf("unknown submit mode %q", cfg.Mode)
	}
	if cfg.Classifier == nil {
		cfg.Classifier = Contains{}
	}
	if cfg.Timings.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be positive")
	}
	if cfg.IgnoreResponses == nil {
		cfg.IgnoreResponses = DefaultIgnoreResponses
	}

	e := &Engine{
		cfg:     cfg,
		sleep:   timing.Sleep,
		log:     logging.Nop(),
		metrics: metrics.Nop{},
	}
	for _, p := range cfg.IgnoreResponses {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		e.ignore = append(e.ignore, g)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunCycle drives pending on s until it is empty or the session drops.
//
// It returns OutcomeDone with a nil error once pending is empty. Every other
// return is OutcomeNeedsReauth and leaves s invalidated; the error is nil
// when the session dropped in the expected ways (bad response, timeout) and
// set for anything unexpected. Courses confirmed before the drop stay
// confirmed.
func (e *Engine) RunCycle(ctx context.Context, s *auth.Session, pending *PendingSet) (outcome Outcome, err error) {
	if !s.Valid() {
		return OutcomeNeedsReauth, ErrSessionInvalid
	}
	if pending.Empty() {
		return OutcomeDone, nil
	}

	defer func() {
		if outcome != OutcomeDone {
			s.Invalidate()
		}
	}()

	if err := e.sleep(ctx, e.cfg.Timings.Settle); err != nil {
		return OutcomeNeedsReauth, err
	}

	if _, err := s.Page.Goto(ctx, e.cfg.Endpoints.SearchURL(e.cfg.Term, e.cfg.DegreeTrack)); err != nil {
		return OutcomeNeedsReauth, fmt.Errorf("failed to open course search: %w", err)
	}
	e.log.Infof("session %d: %d course(s) pending, %s mode", s.Generation, pending.Len(), e.cfg.Mode)

	for !pending.Empty() {
		for _, batch := range e.batches(pending) {
			batch = stillPending(pending, batch)
			if len(batch) == 0 {
				continue
			}

			sig, err := e.attempt(ctx, s, pending, batch)
			if err != nil {
				return OutcomeNeedsReauth, err
			}
			if sig != signalDialog {
				e.metrics.Reauth(sig.String())
				e.log.Warnf("session %d dropped (%s), %d course(s) pending", s.Generation, sig, pending.Len())
				return OutcomeNeedsReauth, nil
			}

			if pending.Empty() {
				break
			}
			if err := e.sleep(ctx, e.cfg.Timings.Pacing); err != nil {
				return OutcomeNeedsReauth, err
			}
		}
	}

	return OutcomeDone, nil
}

// batches splits a snapshot of pending into submissions.
func (e *Engine) batches(pending *PendingSet) [][]Selection {
	var all []Selection
	var single [][]Selection
	for _, r := range pending.Remaining() {
		for _, sel := range selectionsFor(e.cfg.Term, r) {
			all = append(all, sel)
			single = append(single, []Selection{sel})
		}
	}
	if e.cfg.Mode == SubmitSingle {
		return single
	}
	return [][]Selection{all}
}

func stillPending(pending *PendingSet, batch []Selection) []Selection {
	out := batch[:0:0]
	for _, sel := range batch {
		if pending.Pending(sel.Course) {
			out = append(out, sel)
		}
	}
	return out
}

// attempt selects batch, submits and waits for the race to resolve.
func (e *Engine) attempt(ctx context.Context, s *auth.Session, pending *PendingSet, batch []Selection) (signal, error) {
	frame, err := s.Page.Frame(e.cfg.Endpoints.ResultsFrame)
	if err != nil {
		return 0, fmt.Errorf("failed to locate results frame: %w", err)
	}

	var (
		mu      sync.Mutex
		closed  bool
		dialogs = make(chan browser.Dialog, dialogBuffer)
		bad     = make(chan browser.Response, 1)
	)
	stop := s.Page.Watch(browser.Watcher{
		Dialog: func(d browser.Dialog) {
			mu.Lock()
			defer mu.Unlock()
			if !closed {
				select {
				case dialogs <- d:
					return
				default:
				}
			}
			go func() {
				if err := d.Accept(); err != nil {
					e.log.Debugf("failed to accept overflow dialog: %v", err)
				}
			}()
		},
		Response: func(r browser.Response) {
			if r.Status == http.StatusOK || e.ignored(r.URL) {
				return
			}
			select {
			case bad <- r:
			default:
			}
		},
	})
	defer func() {
		stop()
		mu.Lock()
		closed = true
		mu.Unlock()
		e.drain(dialogs)
	}()

	for _, sel := range batch {
		if err := frame.Click(ctx, sel.Selector()); err != nil {
			e.logInventory(frame)
			return 0, fmt.Errorf("failed to select %s: %w", sel.reference(), err)
		}
	}

	// The submit click must be over before the next attempt selects
	// anything, or a late click would submit that attempt's selections.
	clickCtx, cancel := context.WithTimeout(ctx, e.cfg.Timings.AttemptTimeout)
	clicked := make(chan error, 1)
	clickDone := make(chan struct{})
	go func() {
		defer close(clickDone)
		clicked <- frame.Click(clickCtx, e.cfg.Endpoints.Submit())
	}()
	defer func() {
		cancel()
		for {
			select {
			case <-clickDone:
				return
			case d := <-dialogs:
				e.dismiss(d)
			}
		}
	}()
	e.log.Infof("submitted %s", describe(batch))

	timer := time.NewTimer(e.cfg.Timings.AttemptTimeout)
	defer timer.Stop()

	v, err := race(ctx, dialogs, bad, clicked, timer.C)
	if err != nil {
		return 0, err
	}
	if v.signal == signalClickFailed && clickCtx.Err() != nil {
		// The click gave up at the attempt deadline.
		v.signal = signalTimeout
	}

	switch v.signal {
	case signalDialog:
		e.handleDialog(s, pending, batch, v.dialog)
	case signalBadResponse:
		e.log.Warnf("server answered %d for %s", v.response.Status, v.response.URL)
	case signalTimeout:
		e.log.Warnf("no reply within %s", e.cfg.Timings.AttemptTimeout)
	case signalClickFailed:
		return v.signal, fmt.Errorf("failed to click submit: %w", v.err)
	}
	return v.signal, nil
}

func (e *Engine) handleDialog(s *auth.Session, pending *PendingSet, batch []Selection, d browser.Dialog) {
	msg := d.Message()
	e.log.Infof("submission reply: %s", msg)

	attempted := map[string]bool{}
	var courses []string
	for _, sel := range batch {
		if !attempted[sel.Course] {
			attempted[sel.Course] = true
			courses = append(courses, sel.Course)
		}
	}

	confirmed := map[string]bool{}
	for _, c := range e.cfg.Classifier.Classify(msg, batch) {
		if !attempted[c.Course] || confirmed[c.Course] {
			continue
		}
		confirmed[c.Course] = true
		if pending.Complete(c.Course, c.Section) {
			e.metrics.Submission(metrics.VerdictConfirmed)
			if c.Section != "" {
				e.log.Infof("%s section %s confirmed", c.Course, c.Section)
			} else {
				e.log.Infof("%s confirmed", c.Course)
			}
		}
	}
	for _, course := range courses {
		if !confirmed[course] {
			e.metrics.Submission(metrics.VerdictRejected)
			e.log.Infof("%s not confirmed", course)
		}
	}
	e.metrics.Pending(pending.Len())

	if err := d.Accept(); err != nil {
		e.log.Warnf("failed to accept dialog: %v", err)
	}
	if e.archive != nil {
		if err := s.Page.Screenshot(e.archive.ScreenshotPath()); err != nil {
			e.log.Warnf("screenshot failed: %v", err)
		}
	}
}

// drain accepts dialogs that were queued but never read.
func (e *Engine) drain(dialogs chan browser.Dialog) {
	for {
		select {
		case d := <-dialogs:
			e.dismiss(d)
		default:
			return
		}
	}
}

func (e *Engine) dismiss(d browser.Dialog) {
	e.log.Debugf("dismissing late dialog: %s", d.Message())
	if err := d.Accept(); err != nil {
		e.log.Debugf("failed to accept late dialog: %v", err)
	}
}

func (e *Engine) ignored(rawURL string) bool {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, g := range e.ignore {
		if g.Match(path) || g.Match(rawURL) {
			return true
		}
	}
	return false
}

func (e *Engine) logInventory(frame browser.Frame) {
	content, err := frame.Content()
	if err != nil {
		e.log.Warnf("could not read frame content: %v", err)
		return
	}
	values, err := browser.Inventory(content)
	if err != nil {
		e.log.Warnf("could not list selectable values: %v", err)
		return
	}
	if len(values) == 0 {
		e.log.Warnf("no selectable values in results frame")
		return
	}
	e.log.Warnf("selectable values in results frame: %s", strings.Join(values, " | "))
}

func describe(batch []Selection) string {
	refs := make([]string, 0, len(batch))
	for _, sel := range batch {
		refs = append(refs, sel.reference())
	}
	return strings.Join(refs, ", ")
}
