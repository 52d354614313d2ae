package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher watches catalog sources and re-parses them on change.
type Watcher struct {
	logger  zerolog.Logger
	parser  *Parser
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a catalog watcher that parses with the given parser.
func NewWatcher(logger zerolog.Logger, parser *Parser) *Watcher {
	return &Watcher{
		logger: logger.With().Str("component", "catalog-watcher").Logger(),
		parser: parser,
	}
}

// Watch starts watching the given catalog sources. On change the sources are
// re-parsed and reloadFn is called with the fresh catalog. Watching stops
// when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, sources []string, reloadFn func(*ParsedCatalog) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("Failed to stat source for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(source); err != nil {
				w.logger.Warn().Err(err).Str("path", source).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(source); err != nil {
				w.logger.Warn().Err(err).Str("path", source).Msg("Failed to watch file")
			}
		}
	}

	go w.processEvents(ctx, sources, reloadFn)

	w.logger.Info().
		Int("sources", len(sources)).
		Msg("Started watching catalog sources")

	return nil
}

func (w *Watcher) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context, sources []string, reloadFn func(*ParsedCatalog) error) {
	for {
		select {
		case <-ctx.Done():
			if w.watcher != nil {
				_ = w.watcher.Close()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".cue") {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Catalog file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(reloadDebounce, func() {
				if err := w.reload(sources, reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload catalog")
				}
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(sources []string, reloadFn func(*ParsedCatalog) error) error {
	w.logger.Info().Msg("Reloading catalog...")

	catalog, err := w.parser.Parse(sources)
	if err != nil {
		return fmt.Errorf("failed to reparse catalog: %w", err)
	}

	if len(catalog.Errors) > 0 {
		// Keep the last good catalog in place when the new one is broken.
		for _, verr := range catalog.Errors {
			w.logger.Warn().
				Str("file", verr.File).
				Int("line", verr.Line).
				Msg(verr.Message)
		}
		return fmt.Errorf("catalog has %d validation errors", len(catalog.Errors))
	}

	if err := reloadFn(catalog); err != nil {
		return fmt.Errorf("failed to apply reloaded catalog: %w", err)
	}

	w.logger.Info().
		Int("units", len(catalog.Units)).
		Msg("Catalog reloaded successfully")

	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
