package window

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	dest  xproto.Window
	mask  uint32
	event []byte
}

type fakeDisplay struct {
	root     xproto.Window
	focus    xproto.Window
	focusErr error
	keycodes map[rune]xproto.Keycode
	sendErr  error
	sent     []sentEvent
	syncs    int
}

func (d *fakeDisplay) Root() xproto.Window { return d.root }

func (d *fakeDisplay) InputFocus() (xproto.Window, error) { return d.focus, d.focusErr }

func (d *fakeDisplay) Keycode(sym rune) (xproto.Keycode, error) {
	code, ok := d.keycodes[sym]
	if !ok {
		return 0, ErrNoKeycode
	}
	return code, nil
}

func (d *fakeDisplay) SendEvent(dest xproto.Window, mask uint32, event []byte) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, sentEvent{dest: dest, mask: mask, event: event})
	return nil
}

func (d *fakeDisplay) Sync() { d.syncs++ }

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		root:     0x100,
		focus:    0x2a00007,
		keycodes: map[rune]xproto.Keycode{'a': 38, 'b': 56},
	}
}

func TestTapSendsPressThenRelease(t *testing.T) {
	d := newFakeDisplay()
	require.NoError(t, NewInjector(d).Tap('a'))

	require.Len(t, d.sent, 2)
	assert.Equal(t, 1, d.syncs)

	press := xproto.KeyPressEventNew(d.sent[0].event).(xproto.KeyPressEvent)
	release := xproto.KeyPressEventNew(d.sent[1].event).(xproto.KeyPressEvent)

	assert.Equal(t, byte(xproto.KeyPress), d.sent[0].event[0])
	assert.Equal(t, byte(xproto.KeyRelease), d.sent[1].event[0])
	assert.Equal(t, uint32(xproto.EventMaskKeyPress), d.sent[0].mask)
	assert.Equal(t, uint32(xproto.EventMaskKeyRelease), d.sent[1].mask)

	for i, ev := range []xproto.KeyPressEvent{press, release} {
		assert.Equal(t, d.focus, d.sent[i].dest)
		assert.Equal(t, xproto.Keycode(38), ev.Detail)
		assert.Equal(t, d.focus, ev.Event)
		assert.Equal(t, d.root, ev.Root)
		assert.Equal(t, xproto.Window(xproto.WindowNone), ev.Child)
		assert.Equal(t, uint16(0), ev.State)
		assert.Equal(t, xproto.Timestamp(xproto.TimeCurrentTime), ev.Time)
	}
}

func TestTapFollowsFocusAtTapTime(t *testing.T) {
	d := newFakeDisplay()
	inj := NewInjector(d)

	require.NoError(t, inj.Tap('a'))
	d.focus = 0x3c00001
	require.NoError(t, inj.Tap('b'))

	require.Len(t, d.sent, 4)
	assert.Equal(t, xproto.Window(0x2a00007), d.sent[0].dest)
	assert.Equal(t, xproto.Window(0x3c00001), d.sent[2].dest)
	assert.Equal(t, xproto.Window(0x3c00001), d.sent[3].dest)
}

func TestTapPointerRootTargetsRoot(t *testing.T) {
	d := newFakeDisplay()
	d.focus = focusPointerRoot
	require.NoError(t, NewInjector(d).Tap('a'))

	require.Len(t, d.sent, 2)
	assert.Equal(t, d.root, d.sent[0].dest)
}

func TestTapErrors(t *testing.T) {
	t.Run("unknown symbol", func(t *testing.T) {
		d := newFakeDisplay()
		err := NewInjector(d).Tap('z')
		assert.ErrorIs(t, err, ErrNoKeycode)
		assert.Empty(t, d.sent)
	})

	t.Run("no focus", func(t *testing.T) {
		d := newFakeDisplay()
		d.focus = focusNone
		assert.ErrorIs(t, NewInjector(d).Tap('a'), ErrNoFocus)
		assert.Empty(t, d.sent)
	})

	t.Run("focus query fails", func(t *testing.T) {
		d := newFakeDisplay()
		d.focusErr = errors.New("connection reset")
		assert.Error(t, NewInjector(d).Tap('a'))
		assert.Empty(t, d.sent)
	})

	t.Run("send fails", func(t *testing.T) {
		d := newFakeDisplay()
		d.sendErr = errors.New("BadWindow")
		assert.Error(t, NewInjector(d).Tap('a'))
		assert.Equal(t, 0, d.syncs)
	})
}

func TestKeysymForRune(t *testing.T) {
	tests := []struct {
		r    rune
		want xproto.Keysym
	}{
		{'a', 0x61},
		{'A', 0x41},
		{' ', 0x20},
		{'~', 0x7e},
		{'é', 0xe9},
		{'\n', keysymReturn},
		{'\b', keysymBackSpace},
		{'\t', keysymTab},
		{'€', 0x010020ac},
		{'ก', 0x01000e01},
		{0x01, 0},
		{0x85, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KeysymForRune(tt.r), "rune %U", tt.r)
	}
}

func TestFindKeycode(t *testing.T) {
	// two keysyms per keycode, starting at keycode 8
	keysyms := []xproto.Keysym{
		0, 0, // 8
		0x61, 0x41, // 9: a A
		0x62, 0x42, // 10: b B
	}

	code, ok := findKeycode(8, 2, keysyms, 0x41)
	require.True(t, ok)
	assert.Equal(t, xproto.Keycode(9), code)

	code, ok = findKeycode(8, 2, keysyms, 0x62)
	require.True(t, ok)
	assert.Equal(t, xproto.Keycode(10), code)

	_, ok = findKeycode(8, 2, keysyms, 0x63)
	assert.False(t, ok)

	_, ok = findKeycode(8, 2, keysyms, 0)
	assert.False(t, ok)
}

func TestWMStates(t *testing.T) {
	all := wmStates(Hints{KeepAbove: true, SkipTaskbar: true, SkipPager: true})
	assert.Equal(t, []string{
		"_NET_WM_STATE_ABOVE",
		"_NET_WM_STATE_SKIP_TASKBAR",
		"_NET_WM_STATE_SKIP_PAGER",
	}, all)

	assert.Empty(t, wmStates(Hints{}))
}

func TestInputHints(t *testing.T) {
	h := inputHints(nil, false)
	assert.NotZero(t, h.Flags&icccm.HintInput)
	assert.Equal(t, uint(0), h.Input)

	existing := &icccm.Hints{Flags: icccm.HintUrgency | icccm.HintState, InitialState: uint(icccm.StateNormal), Input: 1}
	h = inputHints(existing, false)
	assert.Zero(t, h.Flags&icccm.HintUrgency)
	assert.NotZero(t, h.Flags&icccm.HintState)
	assert.Equal(t, uint(0), h.Input)
	assert.Equal(t, uint(icccm.StateNormal), h.InitialState)
	// the caller's hints are left alone
	assert.Equal(t, uint(1), existing.Input)

	assert.Equal(t, uint(1), inputHints(nil, true).Input)
}

func TestUnframeLooksInsideFrames(t *testing.T) {
	classed := map[xproto.Window]bool{0x400001: true, 0x600003: true}
	tree := map[xproto.Window][]xproto.Window{
		0x200000: {0x600003},           // frame around the keyboard
		0x200010: {0x200011, 0x200012}, // frame whose children carry no class yet
	}

	got := unframe(
		[]xproto.Window{0x400001, 0x200000, 0x200010},
		func(w xproto.Window) bool { return classed[w] },
		func(w xproto.Window) []xproto.Window { return tree[w] },
	)
	assert.Equal(t, []xproto.Window{0x400001, 0x600003, 0x200011, 0x200012}, got)
}
