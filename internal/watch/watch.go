// Package watch ingests documents dropped into a directory. Create and write
// events are debounced per file so a PDF still being copied is ingested
// once, after it settles.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Ingester is satisfied by *trigger.Handler.
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) trigger.IngestResponse
}

// Config configures a Watcher.
type Config struct {
	Dir string
	// Debounce is how long a file must be quiet before it is ingested.
	Debounce time.Duration
	// Extensions lists the lower-case suffixes to ingest (default .pdf).
	Extensions []string
	// InitialScan ingests files already present when Run starts.
	InitialScan bool
	Recursive   bool
	// IgnoreFile names gitignore-style rules at the root of Dir
	// (default .ragdignore). It is re-read when it changes.
	IgnoreFile string
}

// Result reports one ingestion attempt.
type Result struct {
	Path     string
	Response trigger.IngestResponse
}

// Watcher ingests matching files under Dir.
type Watcher struct {
	cfg      Config
	ingester Ingester
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
	ignore   *ignore.Matcher
	results  chan Result

	// pending maps a path to its last event time; owned by Run.
	pending map[string]time.Time
}

// New validates cfg and creates the underlying fsnotify watcher.
func New(cfg Config, ingester Ingester, logger *logging.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory: %s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	for i, ext := range cfg.Extensions {
		cfg.Extensions[i] = strings.ToLower(ext)
	}
	if cfg.IgnoreFile == "" {
		cfg.IgnoreFile = ignore.DefaultFile
	}
	rules, err := ignore.Load(cfg.Dir, cfg.IgnoreFile)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.Named("watch"),
		watcher:  fw,
		ignore:   rules,
		results:  make(chan Result, 16),
		pending:  make(map[string]time.Time),
	}, nil
}

// Results delivers one Result per ingestion. Results are dropped when the
// channel is full.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Run watches until ctx is done. Ingestions run one at a time on the
// calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addDirs(); err != nil {
		return err
	}
	w.logger.Info(ctx, "watching directory",
		zap.String("dir", w.cfg.Dir),
		zap.Strings("extensions", w.cfg.Extensions),
		zap.Int("ignore_rules", w.ignore.Len()),
		zap.Duration("debounce", w.cfg.Debounce))

	if w.cfg.InitialScan {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}

	tick := time.NewTicker(w.tickInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) tickInterval() time.Duration {
	d := w.cfg.Debounce / 4
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func (w *Watcher) addDirs() error {
	if !w.cfg.Recursive {
		return w.watcher.Add(w.cfg.Dir)
	}
	return filepath.WalkDir(w.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.cfg.Dir && w.skipDir(path) {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) scan(ctx context.Context) error {
	var paths []string
	err := filepath.WalkDir(w.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.cfg.Dir && (!w.cfg.Recursive || w.skipDir(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	for _, p := range paths {
		if ctx.Err() != nil {
			return nil
		}
		w.ingest(ctx, p)
	}
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.isIgnoreFile(event.Name) {
		w.reloadIgnore(ctx)
		return
	}
	switch {
	case event.Has(fsnotify.Create):
		if w.cfg.Recursive {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.skipDir(event.Name) {
				if err := w.watcher.Add(event.Name); err != nil {
					w.logger.Warn(ctx, "watching new directory failed", zap.String("dir", event.Name), zap.Error(err))
				}
				return
			}
		}
		fallthrough
	case event.Has(fsnotify.Write):
		if w.matches(event.Name) {
			w.pending[event.Name] = time.Now()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	}
}

// flush ingests every pending file that has been quiet for Debounce.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.cfg.Debounce {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)
	for _, path := range ready {
		delete(w.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		w.ingest(ctx, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	resp := w.ingester.Ingest(ctx, rag.IngestRequest{PDFPath: path, SourceID: w.sourceID(path)})
	if resp.Failed() {
		w.logger.Warn(ctx, "watched file ingest failed",
			zap.String("path", path),
			zap.String("error_kind", resp.ErrorKind),
			zap.String("error", resp.Error))
	} else if resp.Ingested != nil {
		w.logger.Info(ctx, "watched file ingested", zap.String("path", path), zap.Int("chunks", *resp.Ingested))
	}

	select {
	case w.results <- Result{Path: path, Response: resp}:
	default:
	}
}

// sourceID is the path relative to the watched directory, so ids stay stable
// when the directory itself moves.
func (w *Watcher) sourceID(path string) string {
	rel, err := filepath.Rel(w.cfg.Dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if hidden(base) {
		return false
	}
	if !slices.Contains(w.cfg.Extensions, strings.ToLower(filepath.Ext(base))) {
		return false
	}
	return !w.ignore.Match(w.sourceID(path), false)
}

func (w *Watcher) skipDir(path string) bool {
	return hidden(filepath.Base(path)) || w.ignore.Match(w.sourceID(path), true)
}

func (w *Watcher) isIgnoreFile(path string) bool {
	return filepath.Clean(path) == filepath.Join(w.cfg.Dir, w.cfg.IgnoreFile)
}

// reloadIgnore swaps in the current rules. A file that fails to parse keeps
// the previous rules.
func (w *Watcher) reloadIgnore(ctx context.Context) {
	rules, err := ignore.Load(w.cfg.Dir, w.cfg.IgnoreFile)
	if err != nil {
		w.logger.Warn(ctx, "ignore rules not reloaded", zap.Error(err))
		return
	}
	w.ignore = rules
	for path := range w.pending {
		if !w.matches(path) {
			delete(w.pending, path)
		}
	}
	w.logger.Info(ctx, "ignore rules reloaded", zap.Int("rules", rules.Len()))
}

// hidden reports dotfiles and editor or partial-download temporaries.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") || strings.HasSuffix(name, ".part")
}
