package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes to schema files. Bursts of events are collapsed
// into one callback per debounce window.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(paths []string)
	debounce time.Duration
	logger   *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

type WatchOption func(*Watcher)

func WithDebounce(d time.Duration) WatchOption   { return func(w *Watcher) { w.debounce = d } }
func WithWatchLogger(l *zap.Logger) WatchOption { return func(w *Watcher) { w.logger = l } }

// NewWatcher watches the given files and directories. Files are watched
// through their parent directory so that editors replacing files are seen.
func NewWatcher(paths []string, onChange func(paths []string), opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		if !info.IsDir() {
			dirs[filepath.Dir(p)] = struct{}{}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				dirs[path] = struct{}{}
			}
			return nil
		})
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run dispatches change notifications until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 && w.onChange != nil {
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			w.onChange(paths)
			pending = make(map[string]struct{})
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".graphql" {
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = w.watcher.Add(event.Name)
					}
				}
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("schema watcher error", zap.Error(err))
		case <-timerC:
			flush()
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
