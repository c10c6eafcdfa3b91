package enroll

import (
	"context"
	"time"

	"github.com/entrhq/coursebot/pkg/browser"
)

// signal is what ended an attempt.
type signal int

const (
	signalDialog signal = iota + 1
	signalBadResponse
	signalTimeout
	signalClickFailed
)

func (s signal) String() string {
	switch s {
	case signalDialog:
		return "dialog"
	case signalBadResponse:
		return "bad_response"
	case signalTimeout:
		return "timeout"
	case signalClickFailed:
		return "click_failed"
	default:
		return "none"
	}
}

// verdict is the resolved race.
type verdict struct {
	signal   signal
	dialog   browser.Dialog
	response browser.Response
	err      error
}

// race waits for the first of a dialog, a bad response, the timeout or a
// failed submit click. When several are ready together the winner is
// bad response, then dialog, then click failure, then timeout.
//
// A cancelled ctx returns its error with a zero verdict.
func race(ctx context.Context, dialogs <-chan browser.Dialog, bad <-chan browser.Response, clicked <-chan error, timeout <-chan time.Time) (verdict, error) {
	for {
		if v, ok := ready(dialogs, bad); ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return verdict{}, ctx.Err()
		case r := <-bad:
			return verdict{signal: signalBadResponse, response: r}, nil
		case d := <-dialogs:
			select {
			case r := <-bad:
				// Lost to a bad response that arrived alongside.
				_ = d.Accept()
				return verdict{signal: signalBadResponse, response: r}, nil
			default:
			}
			return verdict{signal: signalDialog, dialog: d}, nil
		case err := <-clicked:
			if err == nil {
				// Submit went through; keep waiting for its effect.
				clicked = nil
				continue
			}
			if v, ok := ready(dialogs, bad); ok {
				return v, nil
			}
			return verdict{signal: signalClickFailed, err: err}, nil
		case <-timeout:
			if v, ok := ready(dialogs, bad); ok {
				return v, nil
			}
			return verdict{signal: signalTimeout}, nil
		}
	}
}

// ready returns an already queued bad response or dialog, in that order.
func ready(dialogs <-chan browser.Dialog, bad <-chan browser.Response) (verdict, bool) {
	select {
	case r := <-bad:
		return verdict{signal: signalBadResponse, response: r}, true
	default:
	}
	select {
	case d := <-dialogs:
		return verdict{signal: signalDialog, dialog: d}, true
	default:
	}
	return verdict{}, false
}
