package inputmethod

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Bus daemon D-Bus constants
const (
	busDaemonName      = "org.freedesktop.DBus"
	busDaemonPath      = "/org/freedesktop/DBus"
	busDaemonInterface = "org.freedesktop.DBus"
	nameOwnerChanged   = busDaemonInterface + ".NameOwnerChanged"
)

// OwnerChange is one NameOwnerChanged notification
type OwnerChange struct {
	Name     string
	OldOwner string
	NewOwner string
}

// Caller invokes methods on one remote object
type Caller interface {
	Call(method string, args ...interface{}) error
}

// Bus is the part of the session bus the tracker uses
type Bus interface {
	// NameHasOwner asks the bus daemon whether name is currently owned
	NameHasOwner(name string) (bool, error)

	// Object returns a handle for the object at path owned by name
	Object(name string, path dbus.ObjectPath) Caller

	// WatchOwner subscribes to ownership changes of name
	WatchOwner(name string) (<-chan OwnerChange, error)

	Close() error
}

// SessionBus implements Bus on a private session bus connection
type SessionBus struct {
	conn      *dbus.Conn
	signals   chan *dbus.Signal
	once      sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// ConnectSessionBus opens a private connection to the session bus
func ConnectSessionBus() (*SessionBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &SessionBus{conn: conn, done: make(chan struct{})}, nil
}

// NameHasOwner calls org.freedesktop.DBus.NameHasOwner
func (b *SessionBus) NameHasOwner(name string) (bool, error) {
	var owned bool
	err := b.conn.Object(busDaemonName, busDaemonPath).
		Call(busDaemonInterface+".NameHasOwner", 0, name).
		Store(&owned)
	if err != nil {
		return false, fmt.Errorf("NameHasOwner(%s) failed: %w", name, err)
	}
	return owned, nil
}

// Object returns a handle for the object at path owned by name
func (b *SessionBus) Object(name string, path dbus.ObjectPath) Caller {
	return &busObject{obj: b.conn.Object(name, path)}
}

// WatchOwner adds a match rule for NameOwnerChanged with arg0=name and pumps
// matching signals into the returned channel until Close
func (b *SessionBus) WatchOwner(name string) (<-chan OwnerChange, error) {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(busDaemonName),
		dbus.WithMatchObjectPath(busDaemonPath),
		dbus.WithMatchInterface(busDaemonInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, name),
	); err != nil {
		return nil, fmt.Errorf("failed to add NameOwnerChanged match: %w", err)
	}

	b.once.Do(func() {
		b.signals = make(chan *dbus.Signal, 16)
		b.conn.Signal(b.signals)
	})

	out := make(chan OwnerChange, 16)
	go pumpOwnerChanges(b.signals, out, b.done)

	return out, nil
}

// Close ends the WatchOwner pumps and closes the connection
func (b *SessionBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return b.conn.Close()
}

// pumpOwnerChanges forwards parsed signals to out until in closes or done is
// closed. A consumer that stopped reading cannot block it past done.
func pumpOwnerChanges(in <-chan *dbus.Signal, out chan<- OwnerChange, done <-chan struct{}) {
	log := logger.WithComponent("session-bus")
	defer close(out)

	for {
		var sig *dbus.Signal
		var ok bool
		select {
		case sig, ok = <-in:
			if !ok {
				return
			}
		case <-done:
			return
		}

		change, ok := parseOwnerChange(sig)
		if !ok {
			continue
		}
		log.Debug().
			Str("name", change.Name).
			Str("old_owner", change.OldOwner).
			Str("new_owner", change.NewOwner).
			Msg("NameOwnerChanged")

		select {
		case out <- change:
		case <-done:
			return
		}
	}
}

// parseOwnerChange extracts the (name, old, new) body of a NameOwnerChanged signal
func parseOwnerChange(sig *dbus.Signal) (OwnerChange, bool) {
	if sig == nil || sig.Name != nameOwnerChanged || len(sig.Body) < 3 {
		return OwnerChange{}, false
	}
	name, ok1 := sig.Body[0].(string)
	oldOwner, ok2 := sig.Body[1].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return OwnerChange{}, false
	}
	return OwnerChange{Name: name, OldOwner: oldOwner, NewOwner: newOwner}, true
}

type busObject struct {
	obj dbus.BusObject
}

func (o *busObject) Call(method string, args ...interface{}) error {
	return o.obj.Call(method, 0, args...).Err
}
