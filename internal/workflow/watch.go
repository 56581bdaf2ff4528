package workflow

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events editors produce when
// saving a file.
const debounceWindow = 250 * time.Millisecond

// Watch monitors a workflow file and invokes onChange with the reloaded
// file after each modification. Invalid edits are logged and skipped; the
// previous definition stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*File)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that rename-and-replace
	// would otherwise drop the watch after the first save.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			f, err := LoadFile(path)
			if err != nil {
				log.Printf("[workflow] reload of %s failed, keeping previous definition: %v", path, err)
				continue
			}
			log.Printf("[workflow] reloaded %s (%d tasks)", path, len(f.Tasks))
			onChange(f)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[workflow] watch error: %v", err)
		}
	}
}
