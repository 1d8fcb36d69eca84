// Package watcher re-triggers clustering when an input file changes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events an editor or copy produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher monitors an input file, or every *.csv in a directory, and calls
// onChange once writes settle. It watches the parent directory so that files
// replaced by rename or recreated after deletion are still seen.
type Watcher struct {
	targetPath string // File or directory whose contents trigger onChange
	watchPath  string // Directory actually watched
	dirMode    bool   // Target is a directory of CSV files
	onChange   func(path string)
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	runMu      sync.Mutex // Held across onChange so callbacks never overlap
	running    bool
	debounce   time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a Watcher for targetPath. If targetPath is an existing
// directory, any *.csv inside it counts as the target.
func New(targetPath string, onChange func(path string), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	target := filepath.Clean(targetPath)
	w := &Watcher{
		targetPath: target,
		watchPath:  filepath.Dir(target),
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   DefaultDebounce,
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		w.dirMode = true
		w.watchPath = target
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching for changes. A Watcher whose Start fails releases
// its fsnotify handle and cannot be started again.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.cancel()
		if cerr := w.watcher.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Closing watcher after failed start")
		}
		return err
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

// addWatch adds the watched directory to the watch list.
func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.watchPath); err != nil {
		return err
	}
	return w.watcher.Add(w.watchPath)
}

// matches reports whether an event path is one of our targets.
func (w *Watcher) matches(path string) bool {
	if w.dirMode {
		return filepath.Dir(path) == w.watchPath && strings.EqualFold(filepath.Ext(path), ".csv")
	}
	return path == w.targetPath
}

// watchLoop is the main event loop. Events are collected per path and
// flushed once no new event arrived for the debounce period, so each changed
// file triggers onChange once per burst.
func (w *Watcher) watchLoop() {
	var (
		debounceTimer *time.Timer
		pending       = make(map[string]struct{})
		mu            sync.Mutex
	)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		mu.Unlock()

		sort.Strings(paths)
		for _, p := range paths {
			w.handleChange(p)
		}
	}

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			eventPath := filepath.Clean(event.Name)
			if !w.matches(eventPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			log.Debug().Str("path", eventPath).Str("op", event.Op.String()).Msg("Input changed")
			mu.Lock()
			pending[eventPath] = struct{}{}
			mu.Unlock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, flush)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handleChange calls onChange unless the watcher has been stopped or the
// file is gone (a rename away from the target). Calls are serialized, so a
// burst that lands while a slow callback runs waits for it.
func (w *Watcher) handleChange(path string) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Debug().Str("path", path).Msg("Changed input no longer exists, skipping")
		return
	}

	log.Info().Str("path", path).Msg("Triggering change callback")
	if w.onChange != nil {
		w.onChange(path)
	}
}
