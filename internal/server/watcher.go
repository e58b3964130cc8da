package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"framecut/internal/probe"

	"github.com/fsnotify/fsnotify"
)

// importGuard suppresses duplicate create events for the same path inside a
// configurable window. Some platforms emit several create/write bursts while
// a file is still being copied into the media folder; without the guard each
// burst would race an import.
type importGuard struct {
	mu     sync.Mutex
	recent map[string]time.Time
	window time.Duration
}

func newImportGuard(window time.Duration) *importGuard {
	return &importGuard{
		recent: make(map[string]time.Time),
		window: window,
	}
}

// allow reports whether an import for the path may proceed and records the
// attempt. Stale entries are pruned opportunistically.
func (g *importGuard) allow(path string) bool {
	if g.window <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if last, seen := g.recent[path]; seen && now.Sub(last) < g.window {
		return false
	}
	for p, t := range g.recent {
		if now.Sub(t) >= g.window {
			delete(g.recent, p)
		}
	}
	g.recent[path] = now
	return true
}

// startFileWatcher initializes fsnotify watcher for recursive media dir monitoring.
func (s *EditorServer) startFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Start monitoring in a goroutine
	go s.watchFiles()

	err = s.addDirectoryToWatcher(s.config.Media.LibraryPath)
	if err != nil {
		return err
	}

	s.logger.WithField("library_path", s.config.Media.LibraryPath).Info("Media folder watcher started")
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to watcher.
func (s *EditorServer) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return s.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events.
func (s *EditorServer) watchFiles() {
	defer s.watcher.Close()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFileEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("Media watcher error")
		}
	}
}

// handleFileEvent applies filtering & delegates creation/removal actions.
func (s *EditorServer) handleFileEvent(event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isMediaFile := probe.IsMediaFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isMediaFile:
		if !s.guard.allow(event.Name) {
			s.logger.WithField("file_path", event.Name).Debug("Duplicate create event suppressed")
			return
		}
		// Dispatch new file processing asynchronously
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // Ensure file is fully written
			s.handleNewFile(name)
		}(event.Name)

	case event.Has(fsnotify.Remove) && isMediaFile:
		go s.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		// Check if it's a new directory
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.watcher.Add(event.Name)
			s.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

// handleNewFile imports a newly dropped media file and probes its metadata.
func (s *EditorServer) handleNewFile(filePath string) {
	s.logger.WithField("file_path", filePath).Info("New media file detected")

	if _, err := s.library.GetByPath(filePath); err == nil {
		s.logger.WithField("file_path", filePath).Debug("Source already in library")
		return
	}

	info, err := os.Stat(filePath)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Error("Cannot stat new media file")
		return
	}

	clip := s.library.Import(filePath, filepath.Base(filePath), info.Size())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.prober.Probe(ctx, filePath)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Warn("Probe failed for new media file")
	} else {
		s.attachMetadata(clip.ID, result)
	}

	if stored, err := s.library.Get(clip.ID); err == nil {
		if err := s.db.UpsertSourceClip(stored); err != nil {
			s.logger.WithError(err).WithField("source_id", clip.ID).Error("Failed to persist new source clip")
		}
	}
}

// handleRemovedFile drops the library source for a deleted media file,
// cascading to sequence clips and composite tracks through the library hook.
func (s *EditorServer) handleRemovedFile(filePath string) {
	s.logger.WithField("file_path", filePath).Info("Media file removed")

	s.prober.Invalidate(filePath)

	if err := s.library.RemoveByPath(filePath); err != nil {
		s.logger.WithField("file_path", filePath).Debug("Removed file was not in library")
		return
	}

	s.logger.WithField("file_path", filePath).Info("Removed source from library")
}

// stopFileWatcher closes the watcher (idempotent).
func (s *EditorServer) stopFileWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
