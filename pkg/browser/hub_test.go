package browser

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDialog struct {
	msg      string
	accepted atomic.Int32
}

func (d *stubDialog) Message() string { return d.msg }

func (d *stubDialog) Accept() error {
	d.accepted.Add(1)
	return nil
}

func TestHub_RoutesToWatcher(t *testing.T) {
	h := newHub(nil)

	var dialogs []string
	var statuses []int
	stop := h.watch(Watcher{
		Dialog:   func(d Dialog) { dialogs = append(dialogs, d.Message()) },
		Response: func(r Response) { statuses = append(statuses, r.Status) },
	})

	d := &stubDialog{msg: "ok"}
	h.dialog(d)
	h.response(Response{URL: "https://x/submit", Status: 500})

	assert.Equal(t, []string{"ok"}, dialogs)
	assert.Equal(t, []int{500}, statuses)
	assert.Equal(t, int32(0), d.accepted.Load(), "watcher owns the dialog")

	stop()
	stop()
	assert.Nil(t, h.watcher())
}

func TestHub_AcceptsUnwatchedDialogs(t *testing.T) {
	h := newHub(nil)

	d := &stubDialog{msg: "late"}
	h.dialog(d)
	h.response(Response{Status: 500})

	require.Eventually(t, func() bool { return d.accepted.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_StaleStopKeepsNewerWatcher(t *testing.T) {
	h := newHub(nil)

	stopOld := h.watch(Watcher{})
	var got int
	h.watch(Watcher{Response: func(Response) { got++ }})

	stopOld()
	h.response(Response{Status: 404})
	assert.Equal(t, 1, got)
}
