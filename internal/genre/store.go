// SPDX-License-Identifier: MIT

package genre

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/aethradio/aether/internal/log"
)

// Store holds the current catalog snapshot with hot reloading from the
// YAML file. Readers always see a complete, validated snapshot.
type Store struct {
	mu      sync.RWMutex
	current *Catalog
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewStore loads the catalog once and wraps it for concurrent access. A
// missing or unreadable file yields an empty catalog instead of an error:
// the resolver degrades to its fallback queries (catalog misconfiguration
// must not keep the daemon down).
func NewStore(path string) *Store {
	logger := xlog.WithComponent("genre")
	cat, err := Load(path)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "genre.catalog_load_failed").
			Str("path", path).
			Msg("starting with an empty genre catalog")
		cat = FromMap(nil)
	} else {
		logger.Info().
			Str("event", "genre.catalog_loaded").
			Str("path", path).
			Int("genres", cat.Len()).
			Msg("genre catalog loaded")
	}
	return &Store{current: cat, path: path, logger: logger}
}

// NewStoreWith wraps an in-memory catalog; used by tests and dry runs.
func NewStoreWith(cat *Catalog) *Store {
	return &Store{current: cat, logger: xlog.WithComponent("genre")}
}

// Catalog returns the current snapshot.
func (s *Store) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the catalog file. On failure the old snapshot is kept.
func (s *Store) Reload() error {
	cat, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = cat
	s.mu.Unlock()
	s.logger.Info().
		Str("event", "genre.catalog_reloaded").
		Int("genres", cat.Len()).
		Msg("genre catalog reloaded")
	return nil
}

// StartWatcher watches the catalog file and reloads it on change. A no-op
// when the store was built from an in-memory catalog.
func (s *Store) StartWatcher(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("genre: create watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("genre: watch catalog: %w", err)
	}
	s.watcher = watcher
	s.logger.Info().
		Str("event", "genre.watcher_started").
		Str("path", s.path).
		Msg("watching genre catalog for changes")

	go s.watchLoop(ctx)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	// Debounce rapid editor save sequences into one reload.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := s.Reload(); err != nil {
						s.logger.Error().
							Err(err).
							Str("event", "genre.reload_failed").
							Msg("catalog reload failed, keeping previous snapshot")
					}
				})
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().
				Err(err).
				Str("event", "genre.watcher_error").
				Msg("catalog watcher error")
		}
	}
}
