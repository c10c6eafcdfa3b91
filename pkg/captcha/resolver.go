package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/coursebot/pkg/logging"
	"github.com/entrhq/coursebot/pkg/metrics"
	"github.com/entrhq/coursebot/pkg/timing"
)

// Failure reasons recorded by the resolver.
const (
	reasonService   = "service"
	reasonTransport = "transport"
	reasonEmpty     = "empty"
)

var errEmptyResult = errors.New("empty recognition result")

// Resolver applies the retry policy around a Recognizer.
type Resolver struct {
	recognizer Recognizer
	backoff    time.Duration
	sleep      timing.SleepFunc
	log        *logging.Logger
	metrics    metrics.Recorder
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBackoff sets the pause after a failed recognition.
func WithBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.backoff = d
	}
}

// WithSleep replaces the sleep used for backoff.
func WithSleep(fn timing.SleepFunc) ResolverOption {
	return func(r *Resolver) {
		r.sleep = fn
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l *logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.log = l.Named("captcha")
	}
}

// WithMetrics sets where failures are counted.
func WithMetrics(m metrics.Recorder) ResolverOption {
	return func(r *Resolver) {
		r.metrics = metrics.OrNop(m)
	}
}

// NewResolver creates a resolver around rec.
func NewResolver(rec Recognizer, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		recognizer: rec,
		backoff:    timing.Defaults().OCRBackoff,
		sleep:      timing.Sleep,
		log:        logging.Nop(),
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve makes exactly one recognition call for image and returns the
// upper-cased code.
//
// On any failure it logs, waits for the backoff and returns an error
// wrapping ErrResolution. A cancelled context during the backoff is returned
// as is.
func (r *Resolver) Resolve(ctx context.Context, image []byte) (string, error) {
	rec, err := r.recognizer.Recognize(ctx, image)
	if err == nil && strings.TrimSpace(rec.Text) == "" {
		err = errEmptyResult
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		r.log.Warnf("captcha recognition failed: %v", err)
		r.metrics.CaptchaFailure(failureReason(err))
		if sleepErr := r.sleep(ctx, r.backoff); sleepErr != nil {
			return "", sleepErr
		}
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}

	code := strings.ToUpper(strings.TrimSpace(rec.Text))
	if rec.ID != "" {
		r.log.Infof("captcha recognized as %s (id %s)", code, rec.ID)
	} else {
		r.log.Infof("captcha recognized as %s", code)
	}
	return code, nil
}

func failureReason(err error) string {
	var svcErr *ServiceError
	switch {
	case errors.As(err, &svcErr):
		return reasonService
	case errors.Is(err, errEmptyResult):
		return reasonEmpty
	default:
		return reasonTransport
	}
}
