// Package inputmethod tracks whether the text-insertion service is present on
// the session bus and forwards text to it.
//
// The Tracker holds no locks. Its state is meant to be owned by a single event
// loop that applies OwnerChange values and reads Active from the same
// goroutine.
package inputmethod

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/godbus/dbus/v5"
)

// ErrNotActive is returned by SendText while the service has no owner
var ErrNotActive = errors.New("input method not active")

// Service identifies the remote text service
type Service struct {
	Name      string
	Path      dbus.ObjectPath
	Interface string
	Method    string
}

// State is the connection state of the service
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Tracker caches the service handle while the service name is owned
type Tracker struct {
	bus     Bus
	service Service
	proxy   Caller
}

// NewTracker asks the bus whether the service currently has an owner and
// caches a handle if so. Subscribe with Bus.WatchOwner before calling it so
// that no change is missed between the query and the subscription.
func NewTracker(bus Bus, service Service) (*Tracker, error) {
	owned, err := bus.NameHasOwner(service.Name)
	if err != nil {
		return nil, err
	}

	t := &Tracker{bus: bus, service: service}
	t.setConnection(owned)

	logger.WithComponent("inputmethod").Info().
		Str("service", service.Name).
		Stringer("state", t.State()).
		Msg("Input method initial state")
	return t, nil
}

// Active reports whether the service is registered
func (t *Tracker) Active() bool {
	return t.proxy != nil
}

// State returns the connection state
func (t *Tracker) State() State {
	if t.Active() {
		return Connected
	}
	return Disconnected
}

// HandleOwnerChanged applies a NameOwnerChanged notification. Notifications
// for other names are ignored. It reports whether the state changed.
// A hand-over from one owner to another stays Connected with a fresh handle.
func (t *Tracker) HandleOwnerChanged(change OwnerChange) bool {
	if change.Name != t.service.Name {
		return false
	}

	before := t.State()
	// Appearing (old owner empty) or handing over keeps a live owner.
	// Only an empty new owner means the service went away.
	t.setConnection(change.NewOwner != "")

	logger.WithComponent("inputmethod").Info().
		Str("service", change.Name).
		Str("old_owner", change.OldOwner).
		Str("new_owner", change.NewOwner).
		Stringer("state", t.State()).
		Msg("Input method ownership changed")
	return before != t.State()
}

// SendText forwards text to the service
func (t *Tracker) SendText(text string) error {
	if t.proxy == nil {
		return ErrNotActive
	}
	method := t.service.Interface + "." + t.service.Method
	if err := t.proxy.Call(method, text); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

func (t *Tracker) setConnection(active bool) {
	if active {
		t.proxy = t.bus.Object(t.service.Name, t.service.Path)
	} else {
		t.proxy = nil
	}
}
