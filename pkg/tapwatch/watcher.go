package tapwatch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the default debounce interval for file watch events.
const DefaultWatchDebounce = 500 * time.Millisecond

// configWatcher calls reload after the configuration file settles.
type configWatcher struct {
	watcher  *fsnotify.Watcher
	absPath  string
	debounce time.Duration
	reload   func() error
	onError  func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// watchConfig starts watching path. The directory is watched rather than
// the file so that editors replacing the file by rename are noticed.
func watchConfig(path string, debounce time.Duration, reload func() error, onError func(error)) (*configWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw := &configWatcher{
		watcher:  w,
		absPath:  absPath,
		debounce: debounce,
		reload:   reload,
		onError:  onError,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go cw.loop(ctx)
	return cw, nil
}

// Stop ends watching and waits for the loop to exit. Safe to call twice.
func (cw *configWatcher) Stop() {
	cw.cancel()
	<-cw.done
}

// relevant reports whether ev touches the watched file in a way that can
// change its content.
func (cw *configWatcher) relevant(ev fsnotify.Event) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != cw.absPath {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (cw *configWatcher) loop(ctx context.Context) {
	defer close(cw.done)
	defer cw.watcher.Close()

	timer := time.NewTimer(cw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if cw.relevant(ev) {
				timer.Reset(cw.debounce)
			}

		case <-timer.C:
			if err := cw.reload(); err != nil && cw.onError != nil {
				cw.onError(err)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.onError != nil {
				cw.onError(err)
			}
		}
	}
}
