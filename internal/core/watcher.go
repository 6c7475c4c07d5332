package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Inbox subdirectories that processed files are moved into.
const (
	InboxImported = "Imported"
	InboxFailed   = "Failed"
)

// DefaultSettleDelay is how long a dropped file must stay unchanged before
// it is imported.
const DefaultSettleDelay = 2 * time.Second

// InboxConfig configures the inbox watcher.
type InboxConfig struct {
	Dir     string        // Root; one subdirectory per importer key
	Settle  time.Duration // Quiet period after the last write event
	Options ImportOptions // Options for every inbox run
}

// InboxWatcher imports files dropped into <Dir>/<importer>/ and moves them
// to Imported/ or Failed/ once their run ends. Failed rows are written next
// to the file in Failed/.
type InboxWatcher struct {
	svc *Service
	cfg InboxConfig

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewInboxWatcher creates the importer subdirectories under cfg.Dir.
func NewInboxWatcher(svc *Service, cfg InboxConfig) (*InboxWatcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettleDelay
	}
	for _, imp := range svc.Importers() {
		for _, sub := range []string{"", InboxImported, InboxFailed} {
			if err := os.MkdirAll(filepath.Join(cfg.Dir, imp.Key, sub), 0o750); err != nil {
				return nil, fmt.Errorf("create inbox: %w", err)
			}
		}
	}
	return &InboxWatcher{
		svc:     svc,
		cfg:     cfg,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches the inbox until ctx is cancelled, then waits for in-flight
// inbox runs to finish. Files already present are imported on start.
func (w *InboxWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, imp := range w.svc.Importers() {
		dir := filepath.Join(w.cfg.Dir, imp.Key)
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		slog.Info("watching inbox", "dir", dir, "importer", imp.Key)
		w.scan(ctx, imp.Key, dir)
	}

	defer w.wait()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			key, ok := w.importerFor(event.Name)
			if !ok {
				continue
			}
			w.schedule(ctx, key, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("inbox watcher error", "error", err)
		}
	}
}

func (w *InboxWatcher) scan(ctx context.Context, key, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("read inbox", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() && !ignoredInboxFile(e.Name()) {
			w.schedule(ctx, key, filepath.Join(dir, e.Name()))
		}
	}
}

// importerFor returns the importer owning a file directly inside its inbox.
func (w *InboxWatcher) importerFor(path string) (string, bool) {
	if ignoredInboxFile(filepath.Base(path)) {
		return "", false
	}
	rel, err := filepath.Rel(w.cfg.Dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", false
	}
	if _, ok := Get(parts[0]); !ok {
		return "", false
	}
	return parts[0], true
}

// ignoredInboxFile skips hidden files and office lock files.
func ignoredInboxFile(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}

// schedule (re)starts the settle timer for path. A timer whose callback has
// already fired is replaced rather than re-armed, so each wg.Add(1) is matched
// by exactly one callback.
func (w *InboxWatcher) schedule(ctx context.Context, key, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.cfg.Settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.cfg.Settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.process(ctx, key, path)
		}
	})
	w.pending[path] = t
}

// wait stops pending timers and waits for started runs.
func (w *InboxWatcher) wait() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *InboxWatcher) process(ctx context.Context, key, path string) {
	log := slog.With("importer", key, "file", filepath.Base(path))

	if _, err := os.Stat(path); err != nil {
		return
	}

	id, err := w.svc.StartImportFile(ctx, key, path, w.cfg.Options)
	if err != nil {
		log.Warn("inbox import not started", "error", err)
		w.move(path, InboxFailed, log)
		return
	}
	log.Info("inbox import started", "run_id", id)

	// Runs continue through shutdown, so wait without ctx.
	rec, err := w.svc.Result(context.WithoutCancel(ctx), id)
	if err != nil {
		log.Error("inbox import result", "run_id", id, "error", err)
		w.move(path, InboxFailed, log)
		return
	}

	switch rec.Status {
	case StatusFailed, StatusAborted:
		w.move(path, InboxFailed, log)
	default:
		w.move(path, InboxImported, log)
	}

	if rec.Summary != nil && rec.Summary.Failed > 0 {
		w.writeFailedRows(ctx, id, filepath.Dir(path), log)
	}
}

func (w *InboxWatcher) move(path, sub string, log *slog.Logger) {
	dst := filepath.Join(filepath.Dir(path), sub, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		dst = fmt.Sprintf("%s_%s%s", strings.TrimSuffix(dst, ext), time.Now().UTC().Format("20060102T150405"), ext)
	}
	if err := os.Rename(path, dst); err != nil {
		log.Error("move inbox file", "to", dst, "error", err)
	}
}

func (w *InboxWatcher) writeFailedRows(ctx context.Context, id, dir string, log *slog.Logger) {
	report, err := w.svc.FailedRows(ctx, id)
	if err != nil {
		log.Warn("failed rows report", "run_id", id, "error", err)
		return
	}

	f, err := os.Create(filepath.Join(dir, InboxFailed, report.FileName))
	if err != nil {
		log.Error("create failed rows report", "error", err)
		return
	}
	defer f.Close()

	if err := report.WriteTo(f); err != nil {
		log.Error("write failed rows report", "error", err)
	}
}
