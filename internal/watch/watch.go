// Package watch implements --watch mode (SPEC_FULL.md's supplemented
// feature): re-running the compile/retain/validate/execute pipeline whenever
// a definition file in the corpus directory changes. Not part of the
// distilled specification; a natural addition for a task runner, grounded on
// the two retrieval-pack repos that use fsnotify for this exact purpose.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce absorbs the burst of events a single save can produce (most
// editors write-then-rename, firing two or three fsnotify events per save).
const debounce = 150 * time.Millisecond

// Run invokes fn once immediately, then again every time a *.yaml/*.yml file
// under dir changes, until ctx is cancelled. Errors returned by fn are
// discarded and do not end the watch loop, so fn reports its own failures
// before returning.
func Run(ctx context.Context, dir string, fn func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	_ = fn()

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionFile(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case pending <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case <-pending:
			_ = fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
