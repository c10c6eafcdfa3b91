// Package browsertest provides a scriptable in-memory browser.Page.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/entrhq/coursebot/pkg/browser"
)

// Page is a fake browser.Page. Zero value is usable: Goto lands on the
// requested URL and Fetch returns no content.
type Page struct {
	// GotoFunc decides where a navigation lands.
	GotoFunc func(url string) (string, error)

	// FetchFunc returns the body for a fetched URL.
	FetchFunc func(url string) ([]byte, error)

	mu          sync.Mutex
	frames      map[string]*Frame
	visits      []string
	screenshots []string
	watcher     *browser.Watcher
	seq         uint64
	stray       []*Dialog
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a page whose main frame is the given frame, or a fresh one
// when nil.
func NewPage(main *Frame) *Page {
	if main == nil {
		main = &Frame{}
	}
	return &Page{frames: map[string]*Frame{"": main}}
}

// AddFrame registers a named frame.
func (p *Page) AddFrame(name string, f *Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[string]*Frame{}
	}
	p.frames[name] = f
}

// Goto records the visit and resolves it through GotoFunc.
func (p *Page) Goto(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.record(url)
	if p.GotoFunc != nil {
		return p.GotoFunc(url)
	}
	return url, nil
}

// Fetch records the visit and resolves it through FetchFunc.
func (p *Page) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.record(url)
	if p.FetchFunc != nil {
		return p.FetchFunc(url)
	}
	return nil, nil
}

func (p *Page) record(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, url)
}

// Visits returns every URL passed to Goto or Fetch, in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Frame returns a registered frame.
func (p *Page) Frame(name string) (browser.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", browser.ErrFrameNotFound, name)
	}
	return f, nil
}

// Watch installs w as the only watcher.
func (p *Page) Watch(w browser.Watcher) func() {
	p.mu.Lock()
	p.seq++
	id := p.seq
	p.watcher = &w
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.seq == id {
				p.watcher = nil
			}
		})
	}
}

// Watching reports whether a watcher is installed.
func (p *Page) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watcher != nil
}

// EmitDialog raises a dialog. Without a watcher the dialog is accepted
// immediately, as the real page does.
func (p *Page) EmitDialog(message string) *Dialog {
	d := &Dialog{message: message}
	p.Raise(d)
	return d
}

// Raise delivers d the way EmitDialog does.
func (p *Page) Raise(d *Dialog) {
	p.mu.Lock()
	w := p.watcher
	if w == nil || w.Dialog == nil {
		p.stray = append(p.stray, d)
	}
	p.mu.Unlock()

	if w != nil && w.Dialog != nil {
		w.Dialog(d)
	} else {
		_ = d.Accept()
	}
}

// EmitResponse reports a network response.
func (p *Page) EmitResponse(url string, status int) {
	p.mu.Lock()
	w := p.watcher
	p.mu.Unlock()

	if w != nil && w.Response != nil {
		w.Response(browser.Response{URL: url, Status: status})
	}
}

// Stray returns dialogs raised while nobody was watching.
func (p *Page) Stray() []*Dialog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Dialog(nil), p.stray...)
}

// Screenshot writes an empty file to path and records it.
func (p *Page) Screenshot(path string) error {
	p.mu.Lock()
	p.screenshots = append(p.screenshots, path)
	p.mu.Unlock()
	return os.WriteFile(path, nil, 0600)
}

// Screenshots returns every screenshot path taken.
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// Frame is a fake browser.Frame.
type Frame struct {
	// ClickFunc runs on every click. A nil ClickFunc accepts every click.
	ClickFunc func(selector string) error

	// ClickContextFunc, when set, runs instead of ClickFunc and receives
	// the click's context.
	ClickContextFunc func(ctx context.Context, selector string) error

	// HTML is returned by Content.
	HTML string

	mu     sync.Mutex
	clicks []string
}

var _ browser.Frame = (*Frame)(nil)

// Click records the selector and delegates to ClickFunc.
func (f *Frame) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.clicks = append(f.clicks, selector)
	fn := f.ClickFunc
	ctxFn := f.ClickContextFunc
	f.mu.Unlock()

	if ctxFn != nil {
		return ctxFn(ctx, selector)
	}
	if fn != nil {
		return fn(selector)
	}
	return nil
}

// Content returns HTML.
func (f *Frame) Content() (string, error) {
	return f.HTML, nil
}

// Clicks returns every clicked selector, in order.
func (f *Frame) Clicks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

// Dialog is a fake browser.Dialog.
type Dialog struct {
	message  string
	err      error
	accepted atomic.Int32
}

var _ browser.Dialog = (*Dialog)(nil)

// NewDialog returns a dialog carrying message.
func NewDialog(message string) *Dialog {
	return &Dialog{message: message}
}

// NewFailingDialog returns a dialog whose Accept records the call and
// returns err.
func NewFailingDialog(message string, err error) *Dialog {
	return &Dialog{message: message, err: err}
}

// Message returns the dialog text.
func (d *Dialog) Message() string { return d.message }

// Accept records the acceptance.
func (d *Dialog) Accept() error {
	d.accepted.Add(1)
	return d.err
}

// Accepted returns how many times Accept was called.
func (d *Dialog) Accepted() int {
	return int(d.accepted.Load())
}
