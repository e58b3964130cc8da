// Package library holds imported source clips independent of any timeline.
// Timeline clips and composite tracks reference sources by id; removing a
// source cascades to its dependents through registered hooks rather than
// path-string scans.
package library

import (
	"errors"
	"sync"
	"time"

	"framecut/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrSourceNotFound is returned when an operation targets a source id that
// is no longer in the library. Async metadata callbacks racing with removal
// should treat it as a no-op.
var ErrSourceNotFound = errors.New("library: source clip not found")

// CascadeFunc is invoked with a source id when that source is removed.
// Engines register one to drop their dependent clips and tracks.
type CascadeFunc func(sourceID string)

// Library is the media library: a pure metadata/reference store over
// imported files. Media bytes and handles live with the native shell.
type Library struct {
	mu        sync.RWMutex
	clips     map[string]models.SourceClip
	order     []string // insertion order for stable listings
	byPath    map[string]string
	cascades  []CascadeFunc
	listeners []chan []models.SourceClip
	logger    *logrus.Logger
}

// NewLibrary creates an empty media library
func NewLibrary(logger *logrus.Logger) *Library {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Library{
		clips:     make(map[string]models.SourceClip),
		byPath:    make(map[string]string),
		logger:    logger,
		listeners: make([]chan []models.SourceClip, 0),
	}
}

// OnRemove registers a cascade hook fired whenever a source is removed.
// Hooks run outside the library lock.
func (l *Library) OnRemove(fn CascadeFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cascades = append(l.cascades, fn)
}

// Import adds a media file to the library. Importing a path that is already
// present returns the existing entry, so watcher events and manual imports
// can race safely.
func (l *Library) Import(path, name string, fileSize int64) models.SourceClip {
	l.mu.Lock()

	if id, exists := l.byPath[path]; exists {
		clip := l.clips[id]
		l.mu.Unlock()
		return clip
	}

	clip := models.SourceClip{
		ID:        uuid.New().String(),
		Path:      path,
		Name:      name,
		FileSize:  fileSize,
		CreatedAt: time.Now(),
	}
	l.clips[clip.ID] = clip
	l.order = append(l.order, clip.ID)
	l.byPath[path] = clip.ID
	l.notifyLocked()
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"source_id": clip.ID,
		"name":      name,
	}).Info("Source clip imported")
	return clip
}

// AttachMetadata records probed duration and resolution for a source.
// Idempotent; arriving after the source was removed is a logged no-op.
func (l *Library) AttachMetadata(id string, durationSeconds float64, res *models.Resolution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	clip, exists := l.clips[id]
	if !exists {
		l.logger.WithField("source_id", id).Debug("Metadata arrived for removed source, ignoring")
		return ErrSourceNotFound
	}
	clip.Duration = &durationSeconds
	clip.Resolution = res
	l.clips[id] = clip
	l.notifyLocked()
	return nil
}

// AttachHandle records the opaque streamable handle for a source once the
// byte-fetch completes. Idempotent and removal-safe like AttachMetadata.
func (l *Library) AttachHandle(id, handle string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	clip, exists := l.clips[id]
	if !exists {
		l.logger.WithField("source_id", id).Debug("Handle arrived for removed source, ignoring")
		return ErrSourceNotFound
	}
	clip.MediaHandle = handle
	l.clips[id] = clip
	l.notifyLocked()
	return nil
}

// Remove deletes a source and fires every registered cascade hook so
// dependent sequence clips and composite tracks are dropped with it.
func (l *Library) Remove(id string) error {
	l.mu.Lock()

	clip, exists := l.clips[id]
	if !exists {
		l.mu.Unlock()
		l.logger.WithField("source_id", id).Debug("Remove for unknown source, ignoring")
		return ErrSourceNotFound
	}
	delete(l.clips, id)
	delete(l.byPath, clip.Path)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	cascades := make([]CascadeFunc, len(l.cascades))
	copy(cascades, l.cascades)
	l.notifyLocked()
	l.mu.Unlock()

	for _, fn := range cascades {
		fn(id)
	}

	l.logger.WithFields(logrus.Fields{
		"source_id": id,
		"name":      clip.Name,
	}).Info("Source clip removed")
	return nil
}

// RemoveByPath deletes the source imported from the given path, if any.
// Used by the media folder watcher when files disappear from disk.
func (l *Library) RemoveByPath(path string) error {
	l.mu.RLock()
	id, exists := l.byPath[path]
	l.mu.RUnlock()

	if !exists {
		return ErrSourceNotFound
	}
	return l.Remove(id)
}

// Get returns the source clip with the given id
func (l *Library) Get(id string) (models.SourceClip, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	clip, exists := l.clips[id]
	if !exists {
		return models.SourceClip{}, ErrSourceNotFound
	}
	return clip, nil
}

// GetByPath returns the source clip imported from the given path
func (l *Library) GetByPath(path string) (models.SourceClip, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, exists := l.byPath[path]
	if !exists {
		return models.SourceClip{}, ErrSourceNotFound
	}
	return l.clips[id], nil
}

// Clips returns all source clips in import order
func (l *Library) Clips() []models.SourceClip {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Count returns the number of imported sources
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clips)
}

// Replace swaps in a persisted clip list, rebuilding the path index
func (l *Library) Replace(clips []models.SourceClip) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clips = make(map[string]models.SourceClip, len(clips))
	l.byPath = make(map[string]string, len(clips))
	l.order = l.order[:0]
	for _, c := range clips {
		l.clips[c.ID] = c
		l.byPath[c.Path] = c.ID
		l.order = append(l.order, c.ID)
	}
	l.notifyLocked()
}

// Subscribe adds a listener that receives a library snapshot on every change
func (l *Library) Subscribe() <-chan []models.SourceClip {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan []models.SourceClip, 10)
	l.listeners = append(l.listeners, ch)
	return ch
}

// Unsubscribe removes a listener registered with Subscribe
func (l *Library) Unsubscribe(ch <-chan []models.SourceClip) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, listener := range l.listeners {
		if listener == ch {
			close(listener)
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			break
		}
	}
}

func (l *Library) snapshotLocked() []models.SourceClip {
	out := make([]models.SourceClip, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.clips[id])
	}
	return out
}

func (l *Library) notifyLocked() {
	snapshot := l.snapshotLocked()
	for i := 0; i < len(l.listeners); i++ {
		select {
		case l.listeners[i] <- snapshot:
		default:
			close(l.listeners[i])
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			i--
		}
	}
}
