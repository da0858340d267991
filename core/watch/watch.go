// Package watch turns file system activity below a schema directory into
// debounced rebuild triggers.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last change before a
// trigger fires.
const DefaultDebounce = 200 * time.Millisecond

// Trigger receives the changed paths of one debounce window, sorted.
type Trigger func(ctx context.Context, changed []string)

// Watcher watches a directory tree for schema changes.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   zerolog.Logger
	notify   chan string
	ready    chan struct{}
}

// New creates a watcher for the tree below root.
func New(root string, debounce time.Duration, logger zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		notify:   make(chan string, 16),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the tree is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Notify injects a change that did not come from the schema tree, e.g. a
// configuration reload. It never blocks; excess notifications are merged.
func (w *Watcher) Notify(reason string) {
	select {
	case w.notify <- reason:
	default:
	}
}

// Run watches until ctx is done. It must be called once. trigger runs on the watcher goroutine, so
// changes arriving during a rebuild are collected into the next window.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root, nil); err != nil {
		return err
	}
	w.logger.Info().Str("dir", w.root).Msg("watching schemas for changes")
	close(w.ready)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	schedule := func(path string) {
		pending[path] = true
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && isDir(event.Name) {
				// files may land in the directory before it is watched
				if err := w.addTree(fw, event.Name, schedule); err != nil {
					w.logger.Error().Err(err).Str("dir", event.Name).Msg("watch new directory")
				}
				continue
			}
			if !strings.HasSuffix(event.Name, ".proto") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("schema changed")
			schedule(event.Name)

		case reason := <-w.notify:
			schedule(reason)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			trigger(ctx, changed)
		}
	}
}

// addTree watches dir and every directory below it, passing schema files
// found on the way to found when it is set. fsnotify is not recursive.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, found func(string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if found != nil && strings.HasSuffix(path, ".proto") {
				found(path)
			}
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
