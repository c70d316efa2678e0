package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// Event is delivered on every observed config change: the reloaded file
// and its per-service warnings, or Err when the reload failed.
type Event struct {
	File  *File
	Warns []error
	Err   error
}

// CleanupFunc stops a watch and releases its resources
type CleanupFunc func() error

// debounceWindow coalesces the event bursts editors produce on save
const debounceWindow = 250 * time.Millisecond

// Watch reloads the config whenever it changes and delivers the result on
// the returned channel. The parent directory is watched rather than the
// file itself, since editors typically replace the file by rename. The
// channel is closed by the cleanup function or when ctx is canceled.
func Watch(ctx context.Context, path string) (<-chan Event, CleanupFunc, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	ch := make(chan Event, 1)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	var mu sync.Mutex
	var debouncer *time.Timer

	reload := func() {
		if sctx.IsStopping() {
			return
		}
		f, warns, err := Load(path)
		select {
		case ch <- Event{File: f, Warns: warns, Err: err}:
		case <-sctx.Stopping():
		}
	}

	base := filepath.Base(path)
	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		})

		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(debounceWindow, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					select {
					case ch <- Event{Err: err}:
					case <-sctx.Stopping():
						return nil
					}
				}
			}
		}
	})

	return ch, cleanup, nil
}
