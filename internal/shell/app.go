package shell

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/osk/internal/api"
	"github.com/bryanchriswhite/osk/internal/config"
	"github.com/bryanchriswhite/osk/internal/inputmethod"
	"github.com/bryanchriswhite/osk/internal/keyboard"
	"github.com/bryanchriswhite/osk/internal/layout"
	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/bryanchriswhite/osk/internal/webview"
	"github.com/bryanchriswhite/osk/internal/window"
	"github.com/godbus/dbus/v5"
)

// App is a fully wired keyboard: X connection, session bus, page server,
// web surface, and the shell that ties them together
type App struct {
	shell   *Shell
	x       *window.X11Backend
	bus     *inputmethod.SessionBus
	server  *api.Server
	surface *webview.Surface
	watcher *layout.Watcher
	handle  *window.Handle
	pageURL string
}

// Build constructs the UI. Any error here is fatal: the keyboard cannot run
// without its display, its surface, or (when enabled) its session bus.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	log := logger.WithComponent("app")
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	log.Info().Msg("Connecting to X11 server...")
	app.x, err = window.Connect()
	if err != nil {
		return nil, err
	}

	var (
		tracker *inputmethod.Tracker
		owners  <-chan inputmethod.OwnerChange
	)
	if cfg.InputMethod.Enabled {
		log.Info().Msg("Connecting to session bus...")
		if app.bus, err = inputmethod.ConnectSessionBus(); err != nil {
			return nil, err
		}
		// subscribe before the initial query so no change falls in between
		if owners, err = app.bus.WatchOwner(cfg.InputMethod.Name); err != nil {
			return nil, err
		}
		tracker, err = inputmethod.NewTracker(app.bus, inputmethod.Service{
			Name:      cfg.InputMethod.Name,
			Path:      dbus.ObjectPath(cfg.InputMethod.Path),
			Interface: cfg.InputMethod.Interface,
			Method:    cfg.InputMethod.Method,
		})
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("Input method disabled, taps are sent as raw key events only")
	}

	app.server = api.NewServer()
	baseURL, err := app.server.Start(cfg.Server.Listen)
	if err != nil {
		return nil, err
	}
	app.pageURL = baseURL
	if cfg.Page.Path != "" {
		if app.pageURL, err = keyboard.FileURL(cfg.Page.Path); err != nil {
			return nil, fmt.Errorf("invalid keyboard page: %w", err)
		}
	}

	log.Info().Msg("Starting web surface...")
	app.surface, err = webview.Launch(ctx, webview.Options{
		Width:           cfg.Window.Width,
		Height:          cfg.Window.Height,
		Class:           cfg.Window.Class,
		ExecPath:        cfg.Browser.ExecPath,
		UserDataDir:     cfg.Browser.UserDataDir,
		AllowFileAccess: cfg.FileAccessAllowed(),
		Debug:           cfg.Browser.Debug,
	})
	if err != nil {
		return nil, err
	}

	win, err := app.x.FindWindow(cfg.Window.Class, cfg.Browser.WindowTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to find keyboard window: %w", err)
	}
	app.handle = app.x.Window(win)
	if err := app.handle.ApplyHints(window.Hints{
		Title:       cfg.Window.Title,
		KeepAbove:   cfg.Window.KeepAbove,
		SkipTaskbar: cfg.Window.SkipTaskbar,
		SkipPager:   cfg.Window.SkipPager,
		AcceptFocus: cfg.Window.AcceptFocus,
	}); err != nil {
		return nil, err
	}

	var layoutChanges <-chan struct{}
	if cfg.Page.Path != "" && cfg.Page.Watch {
		if app.watcher, err = layout.New(cfg.Page.Path, layout.DefaultDebounce); err != nil {
			return nil, err
		}
		layoutChanges = app.watcher.Changes()
	}

	opts := Options{
		Keys:          window.NewInjector(app.x),
		View:          app.surface,
		Window:        app.handle,
		External:      app.server.Messages(),
		Owners:        owners,
		LayoutChanges: layoutChanges,
	}
	// a nil *Tracker must not become a non-nil interface
	if tracker != nil {
		opts.Text = tracker
	}
	app.shell = New(opts)

	return app, nil
}

// Run activates the window, starts loading the keyboard page, and runs the
// event loop until the window is closed or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	if err := a.handle.Present(); err != nil {
		logger.WithComponent("app").Warn().Err(err).Msg("Failed to present keyboard window")
	}
	a.surface.Load(a.pageURL)
	return a.shell.Run(ctx)
}

// Close releases everything Build acquired, in reverse order
func (a *App) Close() {
	log := logger.WithComponent("app")

	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.surface != nil {
		if err := a.surface.Close(); err != nil {
			log.Debug().Err(err).Msg("Web surface close")
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.server.Shutdown(ctx)
		cancel()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.x != nil {
		a.x.Close()
	}
}
