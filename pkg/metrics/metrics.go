// Package metrics counts login, captcha and submission events and serves
// them in the Prometheus exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives the events the bot wants counted. Components accept a
// Recorder and fall back to Nop when given nil.
type Recorder interface {
	LoginAttempt(result string)
	CaptchaFailure(reason string)
	Submission(verdict string)
	Reauth(reason string)
	Pending(n int)
}

// Login attempt results.
const (
	LoginAccepted = "accepted"
	LoginRejected = "rejected"
	LoginReused   = "reused"
)

// Submission verdicts.
const (
	VerdictConfirmed = "confirmed"
	VerdictRejected  = "rejected"
)

// Nop discards every event.
type Nop struct{}

func (Nop) LoginAttempt(string)   {}
func (Nop) CaptchaFailure(string) {}
func (Nop) Submission(string)     {}
func (Nop) Reauth(string)         {}
func (Nop) Pending(int)           {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Metrics is a Recorder backed by Prometheus collectors on a private
// registry.
type Metrics struct {
	registry        *prometheus.Registry
	loginAttempts   *prometheus.CounterVec
	captchaFailures *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	reauths         *prometheus.CounterVec
	pending         prometheus.Gauge
}

// New registers the bot's collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		captchaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "captcha_failures_total",
			Help:      "Captcha fetch or recognition failures by reason.",
		}, []string{"reason"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "submissions_total",
			Help:      "Per-course submission verdicts read from confirmation dialogs.",
		}, []string{"verdict"}),
		reauths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "reauth_total",
			Help:      "Sessions discarded by reason.",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coursebot",
			Name:      "pending_courses",
			Help:      "Courses not yet confirmed.",
		}),
	}

	m.registry.MustRegister(
		m.loginAttempts,
		m.captchaFailures,
		m.submissions,
		m.reauths,
		m.pending,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the registry for serving.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LoginAttempt(result string) {
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) CaptchaFailure(reason string) {
	m.captchaFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Submission(verdict string) {
	m.submissions.WithLabelValues(verdict).Inc()
}

func (m *Metrics) Reauth(reason string) {
	m.reauths.WithLabelValues(reason).Inc()
}

func (m *Metrics) Pending(n int) {
	m.pending.Set(float64(n))
}
