package window

import (
	"errors"

	"github.com/BurntSushi/xgb/xproto"
)

// ErrWindowNotFound is returned when no client window matches a WM_CLASS
var ErrWindowNotFound = errors.New("window not found")

// Display is the part of the display server the injector needs.
// X11Backend is the only implementation; tests use fakes.
type Display interface {
	// Root returns the root window of the default screen
	Root() xproto.Window

	// InputFocus returns the window currently holding input focus
	InputFocus() (xproto.Window, error)

	// Keycode resolves a single character to a keycode via the server's symbol table
	Keycode(sym rune) (xproto.Keycode, error)

	// SendEvent sends a raw 32-byte event to dest
	SendEvent(dest xproto.Window, mask uint32, event []byte) error

	// Sync blocks until the server has processed all requests
	Sync()
}

// Info describes a client window
type Info struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Class string `json:"class"`
	PID   int    `json:"pid"`
}
