// Package webview renders the keyboard page in a Chromium app window driven
// over the DevTools protocol.
//
// The surface only produces events: navigation requests, page messages,
// title changes, and its own destruction. Decisions about them are made by
// the consumer, which answers navigations through Resolve.
package webview

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/bryanchriswhite/osk/internal/keyboard"
	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/bryanchriswhite/osk/internal/message"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const eventBuffer = 64

// Decision is the answer to a navigation request
type Decision int

const (
	// Use lets the navigation proceed
	Use Decision = iota
	// Ignore blocks it
	Ignore
)

func (d Decision) String() string {
	if d == Ignore {
		return "ignore"
	}
	return "use"
}

// NavigationRequest is a paused document request awaiting a Decision
type NavigationRequest struct {
	ID  string
	URL string
}

// Options configures the browser process and window
type Options struct {
	Width  int
	Height int
	// Class becomes the WM_CLASS of the app window
	Class       string
	ExecPath    string
	UserDataDir string
	// AllowFileAccess lets file:// pages read other file:// URLs
	AllowFileAccess bool
	Debug           bool
}

// allocatorOptions builds the Chromium command line
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("app", "about:blank"),
		chromedp.Flag("class", opts.Class),
		chromedp.Flag("disable-popup-blocking", false),
		chromedp.WindowSize(opts.Width, opts.Height),
	)

	if opts.AllowFileAccess {
		allocOpts = append(allocOpts,
			chromedp.Flag("allow-file-access-from-files", true),
			chromedp.Flag("allow-universal-access-from-files", true),
		)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	// The app window must be the only page target, so drop the trailing
	// about:blank tab the allocator appends.
	allocOpts = append(allocOpts, chromedp.ModifyCmdFunc(func(cmd *exec.Cmd) {
		cmd.Args = stripBlankTab(cmd.Args)
	}))
	return allocOpts
}

func stripBlankTab(args []string) []string {
	out := args[:0]
	for i, a := range args {
		if i > 0 && a == "about:blank" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Surface is a running keyboard window
type Surface struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         *zerolog.Logger

	navigations chan NavigationRequest
	messages    chan message.Message
	titles      chan string
	done        chan struct{}
	doneOnce    sync.Once
}

// Launch starts Chromium, registers the message channel, installs the bridge
// script, and intercepts document navigations. The window shows about:blank
// until Load is called.
func Launch(ctx context.Context, opts Options) (*Surface, error) {
	log := logger.WithComponent("webview")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(logger.Printf(log, zerolog.InfoLevel)),
		chromedp.WithErrorf(logger.Printf(log, zerolog.ErrorLevel)),
	}
	if opts.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Printf(log, zerolog.DebugLevel)))
	}
	tabCtx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Surface{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		log:         log,
		navigations: make(chan NavigationRequest, eventBuffer),
		messages:    make(chan message.Message, eventBuffer),
		titles:      make(chan string, eventBuffer),
		done:        make(chan struct{}),
	}

	chromedp.ListenTarget(tabCtx, s.onTargetEvent)

	if err := chromedp.Run(tabCtx, s.setup()...); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start web surface: %w", err)
	}

	go func() {
		<-tabCtx.Done()
		s.markDone()
	}()

	log.Info().
		Str("class", opts.Class).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Bool("file_access", opts.AllowFileAccess).
		Msg("Web surface started")
	return s, nil
}

// setup is run once on the app window's target
func (s *Surface) setup() []chromedp.Action {
	return []chromedp.Action{
		emulation.SetScriptExecutionDisabled(false),
		runtime.AddBinding(message.Channel),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(keyboard.Bridge()).Do(ctx)
			return err
		}),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeDocument,
			RequestStage: fetch.RequestStageRequest,
		}}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return browser.GrantPermissions([]browser.PermissionType{
				browser.PermissionTypeClipboardReadWrite,
				browser.PermissionTypeClipboardSanitizedWrite,
			}).Do(cdp.WithExecutor(ctx, c.Browser))
		}),
	}
}

// onTargetEvent runs on chromedp's event goroutine and only forwards
func (s *Surface) onTargetEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name != message.Channel {
			return
		}
		s.forwardMessage(message.Message{
			Channel: ev.Name,
			Payload: ev.Payload,
			Source:  message.SourceSurface,
		})

	case *fetch.EventRequestPaused:
		req := NavigationRequest{ID: string(ev.RequestID)}
		if ev.Request != nil {
			req.URL = ev.Request.URL
		}
		select {
		case s.navigations <- req:
		case <-s.done:
		}

	case *page.EventLoadEventFired:
		go s.readTitle()

	case *inspector.EventDetached:
		s.log.Info().Msg("Web surface closed")
		s.markDone()
	}
}

func (s *Surface) forwardMessage(m message.Message) {
	select {
	case s.messages <- m:
	case <-s.done:
	}
}

func (s *Surface) readTitle() {
	var title string
	if err := chromedp.Run(s.ctx, chromedp.Title(&title)); err != nil {
		s.log.Debug().Err(err).Msg("Failed to read page title")
		return
	}
	if title == "" {
		return
	}
	select {
	case s.titles <- title:
	case <-s.done:
	}
}

func (s *Surface) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Navigations delivers paused document requests
func (s *Surface) Navigations() <-chan NavigationRequest {
	return s.navigations
}

// Messages delivers posts on the button channel
func (s *Surface) Messages() <-chan message.Message {
	return s.messages
}

// Titles delivers the page title after each load
func (s *Surface) Titles() <-chan string {
	return s.titles
}

// Done is closed when the window or browser goes away
func (s *Surface) Done() <-chan struct{} {
	return s.done
}

// Resolve answers a paused navigation without blocking the caller
func (s *Surface) Resolve(req NavigationRequest, d Decision) {
	id := fetch.RequestID(req.ID)
	var action chromedp.Action = fetch.ContinueRequest(id)
	if d == Ignore {
		action = fetch.FailRequest(id, network.ErrorReasonBlockedByClient)
	}
	go s.run("resolve navigation", action)
}

// Load starts navigating to url without waiting for it to finish
func (s *Surface) Load(url string) {
	s.log.Info().Str("url", url).Msg("Loading keyboard page")
	go s.run("navigate", chromedp.Navigate(url))
}

// Reload reloads the current page without waiting for it to finish
func (s *Surface) Reload() {
	go s.run("reload", chromedp.Reload())
}

func (s *Surface) run(what string, actions ...chromedp.Action) {
	if err := chromedp.Run(s.ctx, actions...); err != nil && s.ctx.Err() == nil {
		s.log.Warn().Err(err).Msgf("Web surface %s failed", what)
	}
}

// Close shuts the browser down
func (s *Surface) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	s.markDone()
	return err
}
