package correlation

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultRefreshInterval is how often a file source re-reads its file
// when no change notification arrives.
const DefaultRefreshInterval = 5 * time.Minute

// PatternSource provides the pattern snapshot classification reads.
// Implementations return read-only slices that callers must not mutate.
type PatternSource interface {
	Patterns() []*Pattern
}

// StaticSource is a fixed pattern set, mainly for tests.
type StaticSource []*Pattern

// Static builds a StaticSource in evaluation order.
func Static(patterns ...*Pattern) StaticSource {
	sortPatterns(patterns)
	return patterns
}

func (s StaticSource) Patterns() []*Pattern { return s }

// FileSource serves patterns from a YAML file as a read-only snapshot.
// The snapshot refreshes on an interval and immediately when the file
// changes on disk. A file that fails to load keeps the previous
// snapshot in place.
type FileSource struct {
	path     string
	interval time.Duration

	mu      sync.RWMutex
	current []*Pattern
}

// NewFileSource loads the initial snapshot from path. A non-positive
// interval falls back to DefaultRefreshInterval.
func NewFileSource(path string, interval time.Duration) (*FileSource, error) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s := &FileSource{path: path, interval: interval}
	patterns, err := LoadPatternsFromFile(path)
	if err != nil {
		return nil, err
	}
	s.current = patterns
	return s, nil
}

// Patterns returns the current snapshot in evaluation order.
func (s *FileSource) Patterns() []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the file and swaps the snapshot. On error the
// previous snapshot stays active.
func (s *FileSource) Reload() error {
	patterns, err := LoadPatternsFromFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = patterns
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
				log.Printf("correlation: refresh %s: %v", s.path, err)
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
				log.Printf("correlation: reload %s: %v", s.path, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("correlation: watcher: %v", err)
		}
	}
}
