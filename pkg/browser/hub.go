package browser

import (
	"sync"

	"github.com/entrhq/coursebot/pkg/logging"
)

// hub fans page events out to the current watcher.
type hub struct {
	mu      sync.Mutex
	current *Watcher
	seq     uint64
	log     *logging.Logger
}

func newHub(log *logging.Logger) *hub {
	if log == nil {
		log = logging.Nop()
	}
	return &hub{log: log}
}

// watch installs w, replacing any previous watcher.
func (h *hub) watch(w Watcher) func() {
	h.mu.Lock()
	h.seq++
	id := h.seq
	h.current = &w
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			// A newer watcher may already have replaced this one.
			if h.seq == id {
				h.current = nil
			}
		})
	}
}

func (h *hub) watcher() *Watcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *hub) dialog(d Dialog) {
	if w := h.watcher(); w != nil && w.Dialog != nil {
		w.Dialog(d)
		return
	}

	h.log.Warnf("unexpected dialog accepted: %s", d.Message())
	go func() {
		if err := d.Accept(); err != nil {
			h.log.Debugf("accepting unexpected dialog failed: %v", err)
		}
	}()
}

func (h *hub) response(r Response) {
	if w := h.watcher(); w != nil && w.Response != nil {
		w.Response(r)
	}
}
