package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/coursebot/pkg/logging"
)

// PlaywrightPage implements Page on a Playwright page.
type PlaywrightPage struct {
	page    playwright.Page
	hub     *hub
	timeout time.Duration
}

func newPlaywrightPage(page playwright.Page, timeout time.Duration, log *logging.Logger) *PlaywrightPage {
	p := &PlaywrightPage{
		page:    page,
		hub:     newHub(log),
		timeout: timeout,
	}

	page.OnDialog(func(d playwright.Dialog) {
		p.hub.dialog(playwrightDialog{d})
	})
	page.OnResponse(func(r playwright.Response) {
		p.hub.response(Response{URL: r.URL(), Status: r.Status()})
	})

	return p
}

// Goto navigates the page and returns the final URL.
func (p *PlaywrightPage) Goto(ctx context.Context, url string) (string, error) {
	if _, err := p.navigate(ctx, url); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

// Fetch navigates to url and returns the response body.
func (p *PlaywrightPage) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := p.navigate(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func (p *PlaywrightPage) navigate(ctx context.Context, url string) (playwright.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	waitUntil := playwright.WaitUntilState("load")
	timeout := millis(p.timeout)

	type result struct {
		resp playwright.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := p.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: &waitUntil,
			Timeout:   &timeout,
		})
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("navigation failed: %w", r.err)
		}
		return r.resp, nil
	}
}

// Frame returns the named frame, or the main frame for an empty name.
func (p *PlaywrightPage) Frame(name string) (Frame, error) {
	if name == "" {
		return &playwrightFrame{frame: p.page.MainFrame(), timeout: p.timeout}, nil
	}

	frame := p.page.Frame(playwright.PageFrameOptions{Name: &name})
	if frame == nil {
		return nil, fmt.Errorf("%w: %q", ErrFrameNotFound, name)
	}
	return &playwrightFrame{frame: frame, timeout: p.timeout}, nil
}

// Watch routes page events to w until the returned function is called.
func (p *PlaywrightPage) Watch(w Watcher) func() {
	return p.hub.watch(w)
}

// Screenshot captures the full page to path.
func (p *PlaywrightPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// URL returns the current page URL.
func (p *PlaywrightPage) URL() string {
	return p.page.URL()
}

type playwrightFrame struct {
	frame   playwright.Frame
	timeout time.Duration
}

func (f *playwrightFrame) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := millis(clickTimeout(ctx, f.timeout))
	if err := f.frame.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

// clickTimeout bounds a click by the context deadline. Playwright cannot be
// interrupted once the click is waiting for its element.
func clickTimeout(ctx context.Context, limit time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	left := time.Until(deadline)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	if limit <= 0 || left < limit {
		return left
	}
	return limit
}

func (f *playwrightFrame) Content() (string, error) {
	content, err := f.frame.Content()
	if err != nil {
		return "", fmt.Errorf("frame content failed: %w", err)
	}
	return content, nil
}

type playwrightDialog struct {
	d playwright.Dialog
}

func (d playwrightDialog) Message() string { return d.d.Message() }

func (d playwrightDialog) Accept() error { return d.d.Accept() }
