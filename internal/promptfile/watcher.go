// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package promptfile

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/promptlab/internal/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher reloads a prompt file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*File, error)
	watcher  *fsnotify.Watcher
	log      *logger.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher creates a watcher for path. onChange receives the reloaded
// file, or the error if it no longer parses.
func NewWatcher(path string, debounce time.Duration, onChange func(*File, error), log *logger.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		log:      log.With("file", abs),
	}, nil
}

// Start watches the file's directory, since editors often replace the file
// rather than write it in place.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

// processEvents reloads the file once events for it have been quiet for the
// debounce interval.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)

		case <-timer.C:
			f, err := Load(w.path)
			if err != nil {
				w.log.Warn("reload failed", "error", err)
			} else {
				w.log.Info("prompt file reloaded", "messages", len(f.Template))
			}
			w.onChange(f, err)
		}
	}
}
