package browser

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/coursebot/pkg/logging"
)

// Launcher owns the Playwright driver and the single Chromium page of a run.
type Launcher struct {
	mu          sync.Mutex
	log         *logging.Logger
	playwright  *playwright.Playwright
	browser     playwright.Browser
	context     playwright.BrowserContext
	page        *PlaywrightPage
	initialized bool
}

// NewLauncher creates a launcher. Initialize must be called before Open.
func NewLauncher(log *logging.Logger) *Launcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Launcher{log: log}
}

// Initialize installs (unless skipped) and starts the Playwright driver.
func (l *Launcher) Initialize(opts Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with the log
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !opts.SkipInstall {
		l.log.Infof("installing playwright driver and chromium")
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Open launches Chromium and returns its page. Calling Open again returns
// the same page.
func (l *Launcher) Open(opts Options) (*PlaywrightPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, fmt.Errorf("launcher not initialized")
	}
	if l.page != nil {
		return l.page, nil
	}

	opts = opts.withDefaults()

	browser, err := l.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(millis(opts.Timeout))
	page.SetDefaultNavigationTimeout(millis(opts.Timeout))

	l.browser = browser
	l.context = context
	l.page = newPlaywrightPage(page, opts.Timeout, l.log)

	l.log.Infof("browser ready (headless=%t, viewport=%dx%d)", opts.Headless, opts.Viewport.Width, opts.Viewport.Height)
	return l.page, nil
}

// Shutdown closes the browser and stops Playwright.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.page != nil {
		_ = l.page.page.Close() // Ignore errors, continue cleanup
		l.page = nil
	}
	if l.context != nil {
		_ = l.context.Close() // Ignore errors, continue cleanup
		l.context = nil
	}
	if l.browser != nil {
		_ = l.browser.Close() // Ignore errors, continue cleanup
		l.browser = nil
	}

	if l.initialized && l.playwright != nil {
		if err := l.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		l.initialized = false
	}

	return nil
}
