// Package layout watches a custom keyboard layout file so the page can be
// reloaded while the layout is being edited.
package layout

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events editors produce on save
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a single file
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration

	changes chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// New watches path. The parent directory is watched so that editors which
// replace the file on save are still seen.
func New(path string, debounce time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		debounce:  debounce,
		changes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.eventLoop()
	return w, nil
}

// Changes delivers at most one pending notification at a time
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops watching
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	log := logger.WithComponent("layout")

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Layout file event")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info().Str("path", w.path).Msg("Layout changed")
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Layout watcher error")
		}
	}
}
