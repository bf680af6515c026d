package inputmethod

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	args   []interface{}
}

type fakeObject struct {
	calls *[]call
	err   error
}

func (o *fakeObject) Call(method string, args ...interface{}) error {
	*o.calls = append(*o.calls, call{method: method, args: args})
	return o.err
}

type fakeBus struct {
	owned   map[string]bool
	hasErr  error
	calls   []call
	callErr error
	objects int
	watched []string
	changes chan OwnerChange
}

func newFakeBus() *fakeBus {
	return &fakeBus{owned: map[string]bool{}, changes: make(chan OwnerChange, 4)}
}

func (b *fakeBus) NameHasOwner(name string) (bool, error) {
	return b.owned[name], b.hasErr
}

func (b *fakeBus) Object(name string, path dbus.ObjectPath) Caller {
	b.objects++
	return &fakeObject{calls: &b.calls, err: b.callErr}
}

func (b *fakeBus) WatchOwner(name string) (<-chan OwnerChange, error) {
	b.watched = append(b.watched, name)
	return b.changes, nil
}

func (b *fakeBus) Close() error { return nil }

var keyman = Service{
	Name:      "com.Keyman",
	Path:      "/com/Keyman/IBus",
	Interface: "com.Keyman",
	Method:    "SendText",
}

func TestNewTrackerInitialState(t *testing.T) {
	t.Run("unowned", func(t *testing.T) {
		tr, err := NewTracker(newFakeBus(), keyman)
		require.NoError(t, err)
		assert.False(t, tr.Active())
		assert.Equal(t, Disconnected, tr.State())
	})

	t.Run("owned", func(t *testing.T) {
		bus := newFakeBus()
		bus.owned["com.Keyman"] = true
		tr, err := NewTracker(bus, keyman)
		require.NoError(t, err)
		assert.True(t, tr.Active())
		assert.Equal(t, Connected, tr.State())
		assert.Equal(t, 1, bus.objects)
	})

	t.Run("bus error", func(t *testing.T) {
		bus := newFakeBus()
		bus.hasErr = errors.New("no session bus")
		_, err := NewTracker(bus, keyman)
		assert.Error(t, err)
	})
}

func TestHandleOwnerChanged(t *testing.T) {
	bus := newFakeBus()
	tr, err := NewTracker(bus, keyman)
	require.NoError(t, err)

	// other names never move the state
	assert.False(t, tr.HandleOwnerChanged(OwnerChange{Name: "org.example.Other", NewOwner: ":1.9"}))
	assert.Equal(t, Disconnected, tr.State())

	assert.True(t, tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", OldOwner: "", NewOwner: ":1.42"}))
	assert.Equal(t, Connected, tr.State())

	assert.False(t, tr.HandleOwnerChanged(OwnerChange{Name: "org.example.Other", OldOwner: ":1.9", NewOwner: ""}))
	assert.Equal(t, Connected, tr.State())

	// hand-over keeps the service reachable and refreshes the handle
	before := bus.objects
	assert.False(t, tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", OldOwner: ":1.42", NewOwner: ":1.43"}))
	assert.Equal(t, Connected, tr.State())
	assert.Equal(t, before+1, bus.objects)

	assert.True(t, tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", OldOwner: ":1.43", NewOwner: ""}))
	assert.Equal(t, Disconnected, tr.State())
}

func TestHandOverFromInitialOwnerStaysConnected(t *testing.T) {
	bus := newFakeBus()
	bus.owned["com.Keyman"] = true
	tr, err := NewTracker(bus, keyman)
	require.NoError(t, err)
	require.Equal(t, Connected, tr.State())

	tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", OldOwner: ":1.42", NewOwner: ":1.43"})
	assert.Equal(t, Connected, tr.State())
	require.NoError(t, tr.SendText("still here"))
}

func TestSendText(t *testing.T) {
	bus := newFakeBus()
	tr, err := NewTracker(bus, keyman)
	require.NoError(t, err)

	assert.ErrorIs(t, tr.SendText("hello"), ErrNotActive)
	assert.Empty(t, bus.calls)

	tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", NewOwner: ":1.42"})
	require.NoError(t, tr.SendText("hello"))
	require.Len(t, bus.calls, 1)
	assert.Equal(t, "com.Keyman.SendText", bus.calls[0].method)
	assert.Equal(t, []interface{}{"hello"}, bus.calls[0].args)

	bus.callErr = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	tr.HandleOwnerChanged(OwnerChange{Name: "com.Keyman", OldOwner: ":1.42", NewOwner: ":1.50"})
	assert.Error(t, tr.SendText("again"))
}

func TestParseOwnerChange(t *testing.T) {
	change, ok := parseOwnerChange(&dbus.Signal{
		Name: nameOwnerChanged,
		Body: []interface{}{"com.Keyman", "", ":1.42"},
	})
	require.True(t, ok)
	assert.Equal(t, OwnerChange{Name: "com.Keyman", OldOwner: "", NewOwner: ":1.42"}, change)

	_, ok = parseOwnerChange(&dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired", Body: []interface{}{"x"}})
	assert.False(t, ok)

	_, ok = parseOwnerChange(&dbus.Signal{Name: nameOwnerChanged, Body: []interface{}{"com.Keyman", 1, ""}})
	assert.False(t, ok)

	_, ok = parseOwnerChange(nil)
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}
