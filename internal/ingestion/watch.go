package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// DefaultDebounce is how long the watcher waits after the last change
// before triggering a re-ingest.
const DefaultDebounce = 2 * time.Second

// Watcher triggers a callback when a corpus source changes on disk. A file
// target is watched through its parent directory so editors that replace
// the file by rename are still seen. A directory target is watched
// recursively and only document files (see DocExtensions) count.
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   string
	isDir    bool
	debounce time.Duration
}

// NewWatcher registers the watches for target. Events that arrive before
// Run is called are buffered.
func NewWatcher(target string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("ingestion: watch %s: %w", target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ingestion: watch %s: %w", target, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingestion: create watcher: %w", err)
	}
	w := &Watcher{watcher: fw, target: abs, isDir: info.IsDir(), debounce: debounce}

	if !w.isDir {
		err = fw.Add(filepath.Dir(abs))
	} else {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return fw.Add(p)
		})
	}
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("ingestion: watch %s: %w", target, err)
	}
	return w, nil
}

// Run blocks until ctx is done, calling onChange once per burst of
// relevant events. onChange runs on the watcher goroutine, so bursts that
// arrive while it is running are coalesced into the next call. Errors from
// onChange are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	log := logging.FromContext(ctx).With("target", w.target)
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	log.Info("ingestion: watching for changes", "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if w.isDir && ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(ev.Name); err != nil {
						log.Warn("ingestion: cannot watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			log.Debug("ingestion: change detected", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info("ingestion: source changed, re-ingesting")
			if err := onChange(ctx); err != nil {
				log.Error("ingestion: re-ingest failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("ingestion: watcher error", "error", err)
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if !w.isDir {
		return name == w.target
	}
	if IsDocFile(name) {
		return true
	}
	// New subdirectories must be picked up so their files get watched.
	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(name)
		return err == nil && info.IsDir()
	}
	return false
}
