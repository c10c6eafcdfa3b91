package enroll

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/coursebot/pkg/site"
)

// Selection is one control clicked before a submit.
type Selection struct {
	// Course is the PendingSet key of the request.
	Course string

	// Section is empty for token requests.
	Section string

	// Value is the value attribute of the control.
	Value string
}

// Selector locates the control.
func (s Selection) Selector() string {
	return site.ValueSelector(s.Value)
}

// reference is how a confirmation message names the selection.
func (s Selection) reference() string {
	if s.Section == "" {
		return s.Course
	}
	return s.Course + " " + s.Section
}

func selectionsFor(term string, r CourseRequest) []Selection {
	if r.Opaque() {
		return []Selection{{Course: r.Token, Value: r.Token}}
	}
	out := make([]Selection, 0, len(r.Sections))
	for _, sec := range r.Sections {
		out = append(out, Selection{Course: r.ID, Section: sec, Value: site.SectionValue(term, r.ID, sec)})
	}
	return out
}

// Confirmation is a course the server accepted.
type Confirmation struct {
	Course  string
	Section string
}

// Classifier reads a confirmation dialog. It returns the attempted courses
// the message confirms, at most once each. It must not have side effects.
type Classifier interface {
	Classify(message string, attempted []Selection) []Confirmation
}

// Classification modes.
const (
	ModeContains = "contains"
	ModeTemplate = "template"
	ModeOmits    = "omits"
)

// NewClassifier returns the classifier for mode. template is only used by
// ModeTemplate.
func NewClassifier(mode, template string) (Classifier, error) {
	switch mode {
	case "", ModeContains:
		return Contains{}, nil
	case ModeTemplate:
		return NewTemplate(template)
	case ModeOmits:
		return Omits{}, nil
	default:
		return nil, fmt.Errorf("unknown classify mode %q", mode)
	}
}

// Contains confirms a course when the message mentions
// "{course} {section}" for one of its attempted sections, or its token, as
// a whole word.
type Contains struct{}

func (Contains) Classify(message string, attempted []Selection) []Confirmation {
	var out []Confirmation
	seen := map[string]bool{}
	for _, sel := range attempted {
		if seen[sel.Course] {
			continue
		}
		if mentions(message, sel.reference()) {
			seen[sel.Course] = true
			out = append(out, Confirmation{Course: sel.Course, Section: sel.Section})
		}
	}
	return out
}

// mentions reports whether message names ref as a whole word: "CS101 1"
// is not found in "CS101 10" nor in "XCS101 1".
func mentions(message, ref string) bool {
	if ref == "" {
		return false
	}
	for from := 0; from < len(message); {
		i := strings.Index(message[from:], ref)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(ref)
		if wordEdge(message, ref[0], start-1) && wordEdge(message, ref[len(ref)-1], end) {
			return true
		}
		from = start + 1
	}
	return false
}

// wordEdge reports whether the byte at i in s ends a word next to the
// reference byte inner. Edges only matter when inner is a letter or digit.
func wordEdge(s string, inner byte, i int) bool {
	if !isWordByte(inner) || i < 0 || i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Template confirms every attempted course when the whole message matches
// a success template.
type Template struct {
	pattern string
	g       glob.Glob
}

// NewTemplate compiles pattern as a glob. Text without wildcards is matched
// exactly.
func NewTemplate(pattern string) (*Template, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("template classifier needs a template")
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", pattern, err)
	}
	return &Template{pattern: pattern, g: g}, nil
}

func (t *Template) Classify(message string, attempted []Selection) []Confirmation {
	if !t.g.Match(strings.TrimSpace(message)) {
		return nil
	}

	var order []string
	sections := map[string][]string{}
	for _, sel := range attempted {
		if _, ok := sections[sel.Course]; !ok {
			order = append(order, sel.Course)
		}
		sections[sel.Course] = append(sections[sel.Course], sel.Section)
	}

	out := make([]Confirmation, 0, len(order))
	for _, course := range order {
		c := Confirmation{Course: course}
		// The template does not say which section won unless only one
		// was tried.
		if secs := sections[course]; len(secs) == 1 {
			c.Section = secs[0]
		}
		out = append(out, c)
	}
	return out
}

// Omits treats the message as a list of failed selections: a course is
// confirmed when one of its attempted sections is not mentioned.
type Omits struct{}

func (Omits) Classify(message string, attempted []Selection) []Confirmation {
	var out []Confirmation
	seen := map[string]bool{}
	for _, sel := range attempted {
		if seen[sel.Course] {
			continue
		}
		if !mentions(message, sel.reference()) {
			seen[sel.Course] = true
			out = append(out, Confirmation{Course: sel.Course, Section: sel.Section})
		}
	}
	return out
}

func (t *Template) String() string {
	return t.pattern
}
