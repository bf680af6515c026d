package window

import (
	"github.com/BurntSushi/xgbutil/icccm"
)

// Hints are the window-manager attributes of the keyboard window
type Hints struct {
	Title       string
	KeepAbove   bool
	SkipTaskbar bool
	SkipPager   bool
	AcceptFocus bool
}

// wmStates returns the _NET_WM_STATE atoms to add for h
func wmStates(h Hints) []string {
	states := make([]string, 0, 3)
	if h.KeepAbove {
		states = append(states, "_NET_WM_STATE_ABOVE")
	}
	if h.SkipTaskbar {
		states = append(states, "_NET_WM_STATE_SKIP_TASKBAR")
	}
	if h.SkipPager {
		states = append(states, "_NET_WM_STATE_SKIP_PAGER")
	}
	return states
}

// inputHints merges the focus and urgency policy into existing WM_HINTS.
// existing may be nil when the client never set any.
func inputHints(existing *icccm.Hints, acceptFocus bool) *icccm.Hints {
	h := &icccm.Hints{}
	if existing != nil {
		*h = *existing
	}

	h.Flags |= icccm.HintInput
	if acceptFocus {
		h.Input = 1
	} else {
		h.Input = 0
	}
	h.Flags &^= icccm.HintUrgency
	return h
}
