// internal/bundle/watch.go
package bundle

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Bundle hot reload.
 *
 * Watches the bundle's parent directory rather than the file itself: editors
 * and config management replace files by rename, which drops a watch on the
 * old inode. Events for other files in the directory are ignored.
 *
 * Bursts of events (truncate + write + chmod) are collapsed by a debounce
 * timer; the reload runs once the file has been quiet for the interval. A
 * bundle that fails to parse is logged and skipped, so a half-saved file never
 * replaces a working rule set.
 */

// DefaultDebounce is the quiet period before a changed bundle is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a bundle file when it changes.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the bundle at path.
func NewWatcher(path string, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bundle path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		logger:   logger.With().Str("component", "bundle-watcher").Str("path", abs).Logger(),
		watcher:  fw,
	}, nil
}

// Run blocks until ctx is cancelled, calling onChange with every successfully
// parsed new version of the bundle. An onChange error is logged; watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func([]*types.Rule) error) error {
	w.logger.Info().Dur("debounce", w.debounce).Msg("bundle watcher started")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("bundle watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("bundle event")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("bundle watcher error")
		}
	}
}

func (w *Watcher) reload(onChange func([]*types.Rule) error) {
	rules, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("bundle reload failed, keeping current rules")
		return
	}
	if err := onChange(rules); err != nil {
		w.logger.Error().Err(err).Msg("bundle rejected, keeping current rules")
		return
	}
	w.logger.Info().Int("rules", len(rules)).Msg("bundle reloaded")
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
