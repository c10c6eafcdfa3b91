package enroll

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// CourseRequest is one course the user wants.
//
// The extended form names a course ID and the acceptable sections in order
// of preference. The minimal form carries only Token, the raw value of the
// selection control.
type CourseRequest struct {
	ID       string   `json:"id,omitempty"`
	Sections []string `json:"sections,omitempty"`
	Token    string   `json:"token,omitempty"`
}

// Key identifies the request in a PendingSet.
func (r CourseRequest) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Token
}

// Opaque reports whether the request is in the minimal token form.
func (r CourseRequest) Opaque() bool {
	return r.ID == "" && r.Token != ""
}

func (r CourseRequest) validate() error {
	switch {
	case r.ID == "" && r.Token == "":
		return fmt.Errorf("course request needs an id or a token")
	case r.ID != "" && r.Token != "":
		return fmt.Errorf("course %s: id and token are exclusive", r.ID)
	case r.ID != "" && len(r.Sections) == 0:
		return fmt.Errorf("course %s: at least one section is required", r.ID)
	}
	for _, s := range r.Sections {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("course %s: empty section", r.ID)
		}
	}
	return nil
}

// Success records a confirmed course.
type Success struct {
	Course  string    `json:"course"`
	Section string    `json:"section,omitempty"`
	At      time.Time `json:"at"`
}

// PendingSet holds the courses not yet confirmed, in configuration order,
// and the log of confirmed ones.
//
// A course leaves the set only through Complete and can never come back.
// Section lists are never trimmed by failures.
type PendingSet struct {
	mu        sync.Mutex
	order     []string
	requests  map[string]CourseRequest
	done      map[string]bool
	successes []Success
	now       func() time.Time
}

// NewPendingSet builds a set from requests. Keys must be unique.
func NewPendingSet(requests ...CourseRequest) (*PendingSet, error) {
	p := &PendingSet{
		requests: make(map[string]CourseRequest, len(requests)),
		done:     make(map[string]bool),
		now:      time.Now,
	}
	for _, r := range requests {
		if err := r.validate(); err != nil {
			return nil, err
		}
		key := r.Key()
		if _, dup := p.requests[key]; dup {
			return nil, fmt.Errorf("course %s requested twice", key)
		}
		r.Sections = append([]string(nil), r.Sections...)
		p.requests[key] = r
		p.order = append(p.order, key)
	}
	return p, nil
}

// Empty reports whether every course has been confirmed.
func (p *PendingSet) Empty() bool {
	return p.Len() == 0
}

// Len returns the number of unconfirmed courses.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Remaining returns a copy of the unconfirmed requests in order.
func (p *PendingSet) Remaining() []CourseRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CourseRequest, 0, len(p.order))
	for _, key := range p.order {
		r := p.requests[key]
		r.Sections = append([]string(nil), r.Sections...)
		out = append(out, r)
	}
	return out
}

// Keys returns the unconfirmed course keys in order.
func (p *PendingSet) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Pending reports whether key is still unconfirmed.
func (p *PendingSet) Pending(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.requests[key]
	return ok
}

// Complete removes key and records the success. It returns false, and
// records nothing, if key is not pending.
func (p *PendingSet) Complete(key, section string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.requests[key]; !ok || p.done[key] {
		return false
	}
	delete(p.requests, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.done[key] = true
	p.successes = append(p.successes, Success{Course: key, Section: section, At: p.now()})
	return true
}

// Successes returns the success log in confirmation order.
func (p *PendingSet) Successes() []Success {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Success(nil), p.successes...)
}
