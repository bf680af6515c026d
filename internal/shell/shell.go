// Package shell is the on-screen keyboard's event loop.
//
// Every hook runs on the goroutine that called Run. Producers (the web
// surface, the websocket channel, the session bus, the layout watcher) only
// send into channels, so the hooks share state without locks.
package shell

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/osk/internal/inputmethod"
	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/bryanchriswhite/osk/internal/message"
	"github.com/bryanchriswhite/osk/internal/webview"
	"github.com/rs/zerolog"
)

// KeyInjector synthesizes a key tap on the focused window
type KeyInjector interface {
	Tap(sym rune) error
}

// TextService forwards text to the input method
type TextService interface {
	Active() bool
	SendText(text string) error
	HandleOwnerChanged(change inputmethod.OwnerChange) bool
}

// View is the web surface rendering the keyboard
type View interface {
	Navigations() <-chan webview.NavigationRequest
	Messages() <-chan message.Message
	Titles() <-chan string
	Done() <-chan struct{}
	Resolve(req webview.NavigationRequest, d webview.Decision)
	Reload()
}

// Titler sets the keyboard window title
type Titler interface {
	SetTitle(title string) error
}

// Options wires a Shell. Text, Window, External, Owners, and LayoutChanges
// may be nil.
type Options struct {
	Keys   KeyInjector
	Text   TextService
	View   View
	Window Titler

	// External carries taps that arrive outside the view, e.g. the websocket
	External <-chan message.Message
	// Owners carries NameOwnerChanged notifications for the text service
	Owners <-chan inputmethod.OwnerChange
	// LayoutChanges fires when a custom layout file changes on disk
	LayoutChanges <-chan struct{}
}

// Shell dispatches surface events to the key and text paths
type Shell struct {
	keys     KeyInjector
	text     TextService
	view     View
	window   Titler
	external <-chan message.Message
	owners   <-chan inputmethod.OwnerChange
	layout   <-chan struct{}
	log      *zerolog.Logger
}

// New creates a shell
func New(opts Options) *Shell {
	return &Shell{
		keys:     opts.Keys,
		text:     opts.Text,
		view:     opts.View,
		window:   opts.Window,
		external: opts.External,
		owners:   opts.Owners,
		layout:   opts.LayoutChanges,
		log:      logger.WithComponent("shell"),
	}
}

// Run processes events until the view is destroyed or ctx is cancelled.
// Destruction of the view is a normal exit and returns nil.
func (s *Shell) Run(ctx context.Context) error {
	s.log.Info().Bool("text_service", s.text != nil).Msg("Event loop started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Event loop cancelled")
			return nil

		case <-s.view.Done():
			s.OnDestroyed()
			return nil

		case req := <-s.view.Navigations():
			s.view.Resolve(req, s.OnNavigate(req))

		case m := <-s.view.Messages():
			s.OnMessage(m)

		case m, ok := <-s.external:
			if !ok {
				s.external = nil
				continue
			}
			s.OnMessage(m)

		case title := <-s.view.Titles():
			s.OnTitleChanged(title)

		case change, ok := <-s.owners:
			if !ok {
				s.log.Warn().Msg("Session bus subscription ended")
				s.owners = nil
				continue
			}
			s.OnOwnershipChanged(change)

		case _, ok := <-s.layout:
			if !ok {
				s.layout = nil
				continue
			}
			s.OnLayoutChanged()
		}
	}
}

// OnNavigate allows every navigation; the keyboard page may load anything
func (s *Shell) OnNavigate(req webview.NavigationRequest) webview.Decision {
	s.log.Debug().Str("url", req.URL).Msg("Navigation allowed")
	return webview.Use
}

// OnMessage handles one tap. Bare strings are typed as a key; objects with a
// text field go to the input method when it is active and are dropped
// otherwise. Malformed payloads are logged and ignored.
func (s *Shell) OnMessage(m message.Message) {
	log := s.log.With().Str("source", string(m.Source)).Logger()
	log.Info().Str("payload", m.Payload).Msg("Button clicked")

	tap, err := message.DecodeMessage(m)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring tap")
		return
	}

	switch tap.Kind {
	case message.KindKey:
		if err := s.keys.Tap(tap.Key); err != nil {
			log.Error().Err(err).Str("key", string(tap.Key)).Msg("Failed to send key")
		}

	case message.KindText:
		if err := s.sendText(tap.Text); err != nil {
			if errors.Is(err, inputmethod.ErrNotActive) {
				log.Warn().Msg("Input method not active, dropping text")
				return
			}
			log.Error().Err(err).Msg("Failed to send text")
		}
	}
}

func (s *Shell) sendText(text string) error {
	if s.text == nil || !s.text.Active() {
		return inputmethod.ErrNotActive
	}
	return s.text.SendText(text)
}

// OnTitleChanged mirrors the page title onto the keyboard window
func (s *Shell) OnTitleChanged(title string) {
	if s.window == nil {
		return
	}
	if err := s.window.SetTitle(title); err != nil {
		s.log.Warn().Err(err).Str("title", title).Msg("Failed to set window title")
	}
}

// OnOwnershipChanged applies a bus ownership notification
func (s *Shell) OnOwnershipChanged(change inputmethod.OwnerChange) {
	if s.text == nil {
		return
	}
	s.text.HandleOwnerChanged(change)
}

// OnLayoutChanged reloads the page after the layout file changed
func (s *Shell) OnLayoutChanged() {
	s.log.Info().Msg("Reloading keyboard layout")
	s.view.Reload()
}

// OnDestroyed runs once when the window is gone
func (s *Shell) OnDestroyed() {
	s.log.Info().Msg("Keyboard window destroyed, stopping")
}
