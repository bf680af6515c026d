package window

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/osk/internal/logger"
)

var (
	// ErrNoKeycode means the server's keyboard mapping has no key for a symbol
	ErrNoKeycode = errors.New("no keycode for symbol")
	// ErrNoFocus means no window currently holds input focus
	ErrNoFocus = errors.New("no window has input focus")
)

// Special values GetInputFocus may report instead of a window
const (
	focusNone        xproto.Window = 0
	focusPointerRoot xproto.Window = 1
)

// Injector synthesizes key taps addressed to the focused window
type Injector struct {
	display Display
}

// NewInjector creates an injector on top of d
func NewInjector(d Display) *Injector {
	return &Injector{display: d}
}

// Tap sends a press/release pair for sym to the window holding input focus.
// No modifier state is applied.
func (i *Injector) Tap(sym rune) error {
	log := logger.WithComponent("injector")

	code, err := i.display.Keycode(sym)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", sym, err)
	}

	focus, err := i.display.InputFocus()
	if err != nil {
		return fmt.Errorf("failed to get input focus: %w", err)
	}

	root := i.display.Root()
	switch focus {
	case focusNone:
		return ErrNoFocus
	case focusPointerRoot:
		focus = root
	}

	press, release := keyEvents(code, root, focus, 0)
	if err := i.display.SendEvent(focus, xproto.EventMaskKeyPress, press); err != nil {
		return fmt.Errorf("failed to send key press: %w", err)
	}
	if err := i.display.SendEvent(focus, xproto.EventMaskKeyRelease, release); err != nil {
		return fmt.Errorf("failed to send key release: %w", err)
	}
	i.display.Sync()

	log.Debug().
		Str("symbol", string(sym)).
		Uint8("keycode", uint8(code)).
		Uint32("window", uint32(focus)).
		Msg("Sent key tap")
	return nil
}

// keyEvents builds the wire form of a synthetic press and release
func keyEvents(code xproto.Keycode, root, win xproto.Window, state uint16) (press, release []byte) {
	evt := xproto.KeyPressEvent{
		Detail:     code,
		Time:       xproto.TimeCurrentTime,
		Root:       root,
		Event:      win,
		Child:      xproto.WindowNone,
		RootX:      0,
		RootY:      0,
		EventX:     0,
		EventY:     0,
		State:      state,
		SameScreen: true,
	}

	press = evt.Bytes()
	press[0] = xproto.KeyPress

	// KeyReleaseEvent shares the press layout, only the event code differs
	release = xproto.KeyReleaseEvent(evt).Bytes()
	release[0] = xproto.KeyRelease
	return press, release
}
