// Package archive owns the results directory: staged captcha images, the
// images of captchas that led to a login, submission screenshots and the
// end-of-run summary.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// File names inside the results directory.
const (
	ScratchName    = "captcha.jpg"
	ScreenshotName = "screenshot.png"
	SummaryName    = "summary.json"
)

// DefaultDir is the results directory used when none is configured.
const DefaultDir = "results"

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Archive writes run artifacts under one directory.
type Archive struct {
	dir string
}

// New returns an archive rooted at dir, creating the directory.
func New(dir string) (*Archive, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Dir returns the results directory.
func (a *Archive) Dir() string {
	return a.dir
}

// ScratchPath is where the captcha being solved is staged.
func (a *Archive) ScratchPath() string {
	return filepath.Join(a.dir, ScratchName)
}

// ScreenshotPath is overwritten after every confirmation dialog.
func (a *Archive) ScreenshotPath() string {
	return filepath.Join(a.dir, ScreenshotName)
}

// Stage writes a captcha image to the scratch file, replacing the previous
// one.
func (a *Archive) Stage(image []byte) error {
	if err := writeAtomic(a.ScratchPath(), image); err != nil {
		return fmt.Errorf("failed to stage captcha: %w", err)
	}
	return nil
}

// Keep moves the staged image to {code}.jpg and returns the new path.
func (a *Archive) Keep(code string) (string, error) {
	if !codePattern.MatchString(code) {
		return "", fmt.Errorf("invalid captcha code %q", code)
	}
	dst := filepath.Join(a.dir, code+".jpg")
	if err := os.Rename(a.ScratchPath(), dst); err != nil {
		return "", fmt.Errorf("failed to archive captcha: %w", err)
	}
	return dst, nil
}

// Discard removes the staged image. A missing file is not an error.
func (a *Archive) Discard() error {
	if err := os.Remove(a.ScratchPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard captcha: %w", err)
	}
	return nil
}

// Summary describes a finished run.
type Summary struct {
	RunID     string       `json:"run_id"`
	Status    string       `json:"status"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
	Duration  string       `json:"duration"`
	Sessions  int          `json:"sessions"`
	Successes []Enrollment `json:"successes"`
	Pending   []string     `json:"pending"`
	Error     string       `json:"error,omitempty"`
}

// Enrollment is one confirmed course.
type Enrollment struct {
	Course  string    `json:"course"`
	Section string    `json:"section,omitempty"`
	At      time.Time `json:"at"`
}

// WriteSummary writes summary.json.
func (a *Archive) WriteSummary(s Summary) error {
	if s.Duration == "" && !s.Finished.IsZero() {
		s.Duration = s.Finished.Sub(s.Started).Round(time.Millisecond).String()
	}
	if s.Successes == nil {
		s.Successes = []Enrollment{}
	}
	if s.Pending == nil {
		s.Pending = []string{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := writeAtomic(filepath.Join(a.dir, SummaryName), data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
