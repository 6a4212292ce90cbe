package blackout

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// DefaultRefreshInterval is how often a file source re-reads its file
// when no change notification arrives.
const DefaultRefreshInterval = 5 * time.Minute

// Source provides the blackout snapshot the filter reads.
// Implementations return read-only slices that callers must not mutate.
type Source interface {
	Blackouts() []*Blackout
}

// StaticSource is a fixed blackout set, mainly for tests.
type StaticSource []*Blackout

// Static builds a StaticSource in match order.
func Static(blackouts ...*Blackout) StaticSource {
	sortBlackouts(blackouts)
	return blackouts
}

func (s StaticSource) Blackouts() []*Blackout { return s }

// Filter decides whether incoming events fall inside an active window.
type Filter struct {
	source Source
}

// NewFilter creates a filter reading windows from the given source.
func NewFilter(source Source) *Filter {
	return &Filter{source: source}
}

// IsSuppressed reports whether any active window matches the event,
// together with the id of the first matching window. Multiple matches
// do not compound; the first suffices.
func (f *Filter) IsSuppressed(ev *models.Event, now time.Time) (bool, string) {
	for _, b := range f.source.Blackouts() {
		if b.Matches(ev, now) {
			return true, b.ID
		}
	}
	return false, ""
}

// FileSource serves blackouts from a YAML file as a read-only
// snapshot, refreshed on an interval and immediately on file change. A
// file that fails to load keeps the previous snapshot in place.
type FileSource struct {
	path     string
	interval time.Duration

	mu      sync.RWMutex
	current []*Blackout
}

// NewFileSource loads the initial snapshot from path. A non-positive
// interval falls back to DefaultRefreshInterval.
func NewFileSource(path string, interval time.Duration) (*FileSource, error) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s := &FileSource{path: path, interval: interval}
	blackouts, err := LoadBlackoutsFromFile(path)
	if err != nil {
		return nil, err
	}
	s.current = blackouts
	return s, nil
}

// Blackouts returns the current snapshot in match order.
func (s *FileSource) Blackouts() []*Blackout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the file and swaps the snapshot. On error the
// previous snapshot stays active.
func (s *FileSource) Reload() error {
	blackouts, err := LoadBlackoutsFromFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = blackouts
	s.mu.Unlock()
	return nil
}

// Run refreshes the snapshot until the context is canceled. The parent
// directory is watched rather than the file itself so atomic
// rename-into-place updates are seen.
func (s *FileSource) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				log.Printf("blackout: refresh %s: %v", s.path, err)
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				log.Printf("blackout: reload %s: %v", s.path, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("blackout: watcher: %v", err)
		}
	}
}
