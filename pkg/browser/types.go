package browser

import (
	"context"
	"errors"
	"time"
)

// ErrFrameNotFound is returned by Page.Frame when no frame has the name.
var ErrFrameNotFound = errors.New("frame not found")

// Page is the browser surface the bot needs.
type Page interface {
	// Goto navigates and returns the location the page ended up at, after
	// redirects.
	Goto(ctx context.Context, url string) (string, error)

	// Fetch navigates to url and returns the response body. A nil body with a
	// nil error means the navigation produced no response.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// Frame returns the frame with the given name; empty name is the main
	// frame.
	Frame(name string) (Frame, error)

	// Watch routes dialog and response events to w until stop is called.
	// stop is idempotent.
	Watch(w Watcher) (stop func())

	// Screenshot writes a PNG of the page to path.
	Screenshot(path string) error
}

// Frame is a document inside a page.
type Frame interface {
	// Click waits for the selector to match and clicks it. The wait ends
	// no later than the context deadline.
	Click(ctx context.Context, selector string) error

	// Content returns the frame's serialized HTML.
	Content() (string, error)
}

// Dialog is a JavaScript alert, confirm or prompt raised by the page.
type Dialog interface {
	Message() string
	Accept() error
}

// Response is a network response observed by the page.
type Response struct {
	URL    string
	Status int
}

// Watcher receives page events. Callbacks run on the browser's event
// goroutine and must not block.
type Watcher struct {
	Dialog   func(Dialog)
	Response func(Response)
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width" validate:"gte=0"`
	Height int `yaml:"height" json:"height" validate:"gte=0"`
}

// Options configures the browser.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless" json:"headless"`

	// Viewport sets the initial viewport size
	Viewport Viewport `yaml:"viewport" json:"viewport"`

	// Timeout is the default timeout for navigation and element waits
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0s"`

	// SkipInstall skips downloading the Playwright driver and browsers
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// Default values for browser options
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// DefaultOptions returns headless Chromium with the default viewport.
func DefaultOptions() Options {
	return Options{
		Headless: true,
		Viewport: Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Timeout:  DefaultTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Viewport.Width == 0 || o.Viewport.Height == 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
