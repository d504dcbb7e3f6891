// Package watch re-runs diagnostics when the module catalog changes on
// disk. It watches the module list, every module folder's manifest and Go
// sources, debounces rapid editor saves, and hands each fresh report to a
// callback. Manual refreshes share any in-flight run instead of stacking a
// second pipeline behind it.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"modhub/internal/config"
	"modhub/internal/diagnostics"
)

// DefaultDebounce is how long a changed path must stay quiet before it
// triggers a rerun.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Root is the workspace root; "." when empty.
	Root string
	// Settings skips the settings load when provided.
	Settings *config.Settings
	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// OnReport receives every completed run, the initial one included.
	OnReport func(*diagnostics.Report)
	// OnError receives run failures (an unreadable module list, mostly).
	OnError func(error)
	// Logger receives watcher activity; nil means silent.
	Logger *zap.Logger
}

// Stats tracks watcher activity for debugging.
type Stats struct {
	Events    int
	Runs      int
	Errors    int
	LastEvent time.Time
	LastPath  string
}

// Watcher owns an fsnotify watcher and a diagnostics pipeline.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	pipeline    *diagnostics.Pipeline
	root        string
	modulesDir  string
	listPath    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onReport    func(*diagnostics.Report)
	onError     func(error)
	group       singleflight.Group
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
	log         *zap.Logger
}

// New builds a watcher for the workspace at opts.Root.
func New(opts Options) (*Watcher, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	settings := opts.Settings
	if settings == nil {
		loaded, err := config.LoadSettings(root)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	pipeline, err := diagnostics.New(diagnostics.Options{
		Root:     root,
		Settings: settings,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Watcher{
		watcher:     fsw,
		pipeline:    pipeline,
		root:        root,
		modulesDir:  config.ResolvePath(root, settings.ModulesRoot),
		listPath:    config.ResolvePath(root, settings.ModuleList),
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		onReport:    opts.OnReport,
		onError:     opts.OnError,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		log:         log,
	}, nil
}

// Start runs one initial diagnostic pass, registers the watches and spawns
// the event loop. It is non-blocking and a no-op when already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the root for the module list and the modules dir plus every
	// module folder; fsnotify does not recurse.
	if err := w.watcher.Add(w.root); err != nil {
		w.log.Warn("cannot watch workspace root", zap.String("path", w.root), zap.Error(err))
	}
	if err := w.watcher.Add(w.modulesDir); err != nil {
		w.log.Warn("cannot watch modules dir", zap.String("path", w.modulesDir), zap.Error(err))
	}
	if dirs, err := os.ReadDir(w.modulesDir); err == nil {
		for _, d := range dirs {
			if d.IsDir() {
				_ = w.watcher.Add(filepath.Join(w.modulesDir, d.Name()))
			}
		}
	}

	w.deliver(ctx)
	go w.run(ctx)
	return nil
}

// Stop halts the event loop and closes the underlying watcher. Safe to
// call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Warn("closing watcher", zap.Error(err))
	}
}

// Rerun triggers one diagnostic run. Concurrent callers share a single
// in-flight run and its result.
func (w *Watcher) Rerun(ctx context.Context) (*diagnostics.Report, error) {
	v, err, _ := w.group.Do("diagnostics", func() (interface{}, error) {
		return w.pipeline.Run(ctx)
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.stats.Runs++
	w.mu.Unlock()
	return v.(*diagnostics.Report), nil
}

// GetStats returns a snapshot of watcher activity.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is live.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// relevant reports whether a change to name can affect diagnostics.
func (w *Watcher) relevant(name string) bool {
	if name == w.listPath {
		return true
	}
	base := filepath.Base(name)
	return base == "manifest.json" || strings.HasSuffix(base, ".go")
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// A new module folder needs its own watch before its files can be
	// seen; the folder's appearance also warrants a rerun.
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.modulesDir {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
			w.mark(event.Name)
			return
		}
	}

	if !w.relevant(event.Name) {
		return
	}
	w.mark(event.Name)
}

func (w *Watcher) mark(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEvent = time.Now()
	w.stats.LastPath = name
	w.debounceMap[name] = time.Now()
}

// processSettled triggers one rerun once every changed path has been quiet
// for the debounce window. A burst of saves across many files still costs
// a single pipeline run.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	if len(w.debounceMap) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, eventTime := range w.debounceMap {
		if now.Sub(eventTime) < w.debounceDur {
			w.mu.Unlock()
			return
		}
	}
	w.debounceMap = make(map[string]time.Time)
	w.mu.Unlock()

	w.deliver(ctx)
}

func (w *Watcher) deliver(ctx context.Context) {
	report, err := w.Rerun(ctx)
	if err != nil {
		w.log.Warn("diagnostics run failed", zap.Error(err))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if w.onReport != nil {
		w.onReport(report)
	}
}
