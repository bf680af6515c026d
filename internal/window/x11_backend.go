package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/bryanchriswhite/osk/internal/logger"
)

const findPollInterval = 100 * time.Millisecond

// X11Backend implements Display on top of an X11 connection
type X11Backend struct {
	xu   *xgbutil.XUtil
	conn *xgb.Conn
	root xproto.Window
}

// Connect opens the display named by $DISPLAY
func Connect() (*X11Backend, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// loads the keysym tables StrToKeycodes reads
	keybind.Initialize(xu)

	return &X11Backend{
		xu:   xu,
		conn: xu.Conn(),
		root: xu.RootWin(),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Root returns the root window
func (b *X11Backend) Root() xproto.Window {
	return b.root
}

// InputFocus returns the window currently holding input focus
func (b *X11Backend) InputFocus() (xproto.Window, error) {
	reply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Focus, nil
}

// Keycode resolves sym through the keysym name table first, then through the
// character's keysym in the live keyboard mapping
func (b *X11Backend) Keycode(sym rune) (xproto.Keycode, error) {
	if codes := keybind.StrToKeycodes(b.xu, string(sym)); len(codes) > 0 {
		return codes[0], nil
	}

	keysym := KeysymForRune(sym)
	if keysym == 0 {
		return 0, ErrNoKeycode
	}

	setup := xproto.Setup(b.conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(b.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get keyboard mapping: %w", err)
	}

	code, ok := findKeycode(setup.MinKeycode, int(reply.KeysymsPerKeycode), reply.Keysyms, keysym)
	if !ok {
		return 0, ErrNoKeycode
	}
	return code, nil
}

// SendEvent sends a synthetic event to dest, propagating up the tree
func (b *X11Backend) SendEvent(dest xproto.Window, mask uint32, event []byte) error {
	return xproto.SendEventChecked(b.conn, true, dest, mask, string(event)).Check()
}

// Sync flushes the connection and waits for the server to catch up
func (b *X11Backend) Sync() {
	b.conn.Sync()
}

// FindWindow waits up to timeout for a client window whose WM_CLASS instance
// or class equals class
func (b *X11Backend) FindWindow(class string, timeout time.Duration) (xproto.Window, error) {
	log := logger.WithComponent("x11-backend")
	deadline := time.Now().Add(timeout)

	for {
		for _, win := range b.clients() {
			wc, err := icccm.WmClassGet(b.xu, win)
			if err != nil {
				continue
			}
			if strings.EqualFold(wc.Class, class) || strings.EqualFold(wc.Instance, class) {
				log.Debug().
					Uint32("window", uint32(win)).
					Str("class", class).
					Msg("Found window")
				return win, nil
			}
		}

		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: class %q", ErrWindowNotFound, class)
		}
		time.Sleep(findPollInterval)
	}
}

// clients lists managed windows from _NET_CLIENT_LIST. Without EWMH it walks
// the root's children, looking one level into frames added by reparenting
// window managers.
func (b *X11Backend) clients() []xproto.Window {
	if wins, err := ewmh.ClientListGet(b.xu); err == nil && len(wins) > 0 {
		return wins
	}

	hasClass := func(win xproto.Window) bool {
		_, err := icccm.WmClassGet(b.xu, win)
		return err == nil
	}
	return unframe(b.children(b.root), hasClass, b.children)
}

func (b *X11Backend) children(win xproto.Window) []xproto.Window {
	tree, err := xproto.QueryTree(b.conn, win).Reply()
	if err != nil {
		return nil
	}
	return tree.Children
}

// unframe keeps top-level windows that carry WM_CLASS and replaces the rest
// (window manager frames) with their children
func unframe(top []xproto.Window, hasClass func(xproto.Window) bool, children func(xproto.Window) []xproto.Window) []xproto.Window {
	var out []xproto.Window
	for _, win := range top {
		if hasClass(win) {
			out = append(out, win)
			continue
		}
		out = append(out, children(win)...)
	}
	return out
}

// Window returns a handle for decorating win
func (b *X11Backend) Window(win xproto.Window) *Handle {
	return &Handle{backend: b, id: win}
}

// Describe reports title, class, and PID of win
func (b *X11Backend) Describe(win xproto.Window) (*Info, error) {
	if win == focusNone || win == focusPointerRoot {
		return nil, ErrNoFocus
	}

	info := &Info{ID: uint32(win)}

	if title, err := ewmh.WmNameGet(b.xu, win); err == nil && title != "" {
		info.Title = title
	} else if title, err := icccm.WmNameGet(b.xu, win); err == nil {
		info.Title = title
	}

	if wc, err := icccm.WmClassGet(b.xu, win); err == nil {
		info.Class = wc.Class
		if info.Class == "" {
			info.Class = wc.Instance
		}
	}

	if pid, err := ewmh.WmPidGet(b.xu, win); err == nil {
		info.PID = int(pid)
	}

	return info, nil
}

// Handle decorates a single top-level window
type Handle struct {
	backend *X11Backend
	id      xproto.Window
}

// ID returns the X window id
func (h *Handle) ID() xproto.Window {
	return h.id
}

// ApplyHints sets the taskbar, pager, stacking, urgency, and focus policy of
// the window. The window is expected to be mapped already, so _NET_WM_STATE
// changes go through client messages to the window manager.
func (h *Handle) ApplyHints(hints Hints) error {
	log := logger.WithComponent("x11-backend")
	xu := h.backend.xu

	existing, err := icccm.WmHintsGet(xu, h.id)
	if err != nil {
		existing = nil
	}
	if err := icccm.WmHintsSet(xu, h.id, inputHints(existing, hints.AcceptFocus)); err != nil {
		return fmt.Errorf("failed to set WM_HINTS: %w", err)
	}

	for _, state := range wmStates(hints) {
		if err := ewmh.WmStateReq(xu, h.id, ewmh.StateAdd, state); err != nil {
			return fmt.Errorf("failed to request %s: %w", state, err)
		}
	}

	if hints.Title != "" {
		if err := h.SetTitle(hints.Title); err != nil {
			log.Warn().Err(err).Msg("Failed to set window title")
		}
	}

	h.backend.Sync()
	log.Info().
		Uint32("window", uint32(h.id)).
		Strs("states", wmStates(hints)).
		Bool("accept_focus", hints.AcceptFocus).
		Msg("Applied window hints")
	return nil
}

// SetTitle sets both the EWMH and the ICCCM window name
func (h *Handle) SetTitle(title string) error {
	if err := ewmh.WmNameSet(h.backend.xu, h.id, title); err != nil {
		return err
	}
	return icccm.WmNameSet(h.backend.xu, h.id, title)
}

// Present asks the window manager to raise and show the window
func (h *Handle) Present() error {
	return ewmh.ActiveWindowReq(h.backend.xu, h.id)
}
