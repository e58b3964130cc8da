package composite

import (
	"errors"
	"sort"
	"sync"
	"time"

	"framecut/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrTrackNotFound is returned when an operation targets a track id that is
// no longer part of the composite. Async callers should treat it as a no-op.
var ErrTrackNotFound = errors.New("composite: track not found")

// trackStaggerPx is the vertical offset applied to each newly added track so
// stacked tracks don't land exactly on top of each other.
const trackStaggerPx = 50

// Engine owns the set of simultaneously-playing tracks. Tracks are ordered
// by depth: a track's ZIndex always equals its index in the list, so paint
// order is never ambiguous. All mutations serialize behind the mutex and
// emit a full state snapshot to subscribers.
type Engine struct {
	mu        sync.RWMutex
	state     models.CompositeState
	listeners []chan models.CompositeState
	logger    *logrus.Logger
}

// NewEngine creates an empty composite engine
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Engine{
		logger:    logger,
		listeners: make([]chan models.CompositeState, 0),
	}
}

// State returns a snapshot of the full composite state
func (e *Engine) State() models.CompositeState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// GetTrack returns the track with the given id
func (e *Engine) GetTrack(id string) (models.Track, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.indexOfLocked(id); i >= 0 {
		return e.state.Tracks[i], nil
	}
	return models.Track{}, ErrTrackNotFound
}

// AddTrack appends a new track wrapping the given clip. New tracks are
// staggered down the canvas, placed on top of the stack and auto-selected.
func (e *Engine) AddTrack(sourceID string, clip models.ClipData) models.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	index := len(e.state.Tracks)
	track := models.Track{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Clip:      clip,
		Position:  models.Position{X: 0, Y: float64(trackStaggerPx * index)},
		Volume:    1.0,
		Opacity:   1.0,
		ZIndex:    index,
		Visible:   true,
		OffsetMs:  0,
		Duration:  clip.DurationMs,
		CreatedAt: time.Now(),
	}
	e.state.Tracks = append(e.state.Tracks, track)
	e.state.SelectedTrackID = track.ID
	e.notifyLocked()

	e.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"name":     clip.Name,
		"z_index":  index,
	}).Info("Track added to composite")
	return track
}

// RemoveTrack deletes a track. If it was selected, selection falls back to
// the new bottom track; if it was solo, solo clears.
func (e *Engine) RemoveTrack(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		e.logger.WithField("track_id", id).Debug("Remove for unknown track, ignoring")
		return ErrTrackNotFound
	}
	e.removeAtLocked(i)
	e.notifyLocked()

	e.logger.WithField("track_id", id).Info("Track removed from composite")
	return nil
}

// RemoveBySource deletes every track wrapping the given library source.
// Used by the library's cascade when a source clip is deleted.
func (e *Engine) RemoveBySource(sourceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for i := len(e.state.Tracks) - 1; i >= 0; i-- {
		if e.state.Tracks[i].SourceID == sourceID {
			e.removeAtLocked(i)
			removed++
		}
	}
	if removed > 0 {
		e.notifyLocked()
		e.logger.WithFields(logrus.Fields{
			"source_id": sourceID,
			"removed":   removed,
		}).Info("Cascaded source removal to composite")
	}
	return removed
}

// removeAtLocked removes the track at index i, repairs selection and solo,
// and restores the dense z-index invariant.
func (e *Engine) removeAtLocked(i int) {
	removed := e.state.Tracks[i]
	e.state.Tracks = append(e.state.Tracks[:i], e.state.Tracks[i+1:]...)
	e.reindexLocked()

	if e.state.SelectedTrackID == removed.ID {
		if len(e.state.Tracks) > 0 {
			e.state.SelectedTrackID = e.state.Tracks[0].ID
		} else {
			e.state.SelectedTrackID = ""
		}
	}
	if e.state.SoloTrackID == removed.ID {
		e.state.SoloTrackID = ""
	}
}

// ReorderTrack moves a track to a new depth and reassigns every track's
// ZIndex to its array index, keeping z-order a dense permutation.
func (e *Engine) ReorderTrack(id string, newIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return ErrTrackNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(e.state.Tracks) {
		newIndex = len(e.state.Tracks) - 1
	}
	if newIndex == i {
		return nil
	}

	track := e.state.Tracks[i]
	e.state.Tracks = append(e.state.Tracks[:i], e.state.Tracks[i+1:]...)
	e.state.Tracks = append(e.state.Tracks[:newIndex], append([]models.Track{track}, e.state.Tracks[newIndex:]...)...)
	e.reindexLocked()
	e.notifyLocked()
	return nil
}

// SetPosition moves a track on the canvas
func (e *Engine) SetPosition(id string, pos models.Position) error {
	return e.updateTrack(id, func(t *models.Track) { t.Position = pos })
}

// SetVolume sets a track's volume, clamped to [0, 1]
func (e *Engine) SetVolume(id string, volume float64) error {
	return e.updateTrack(id, func(t *models.Track) { t.Volume = clamp01(volume) })
}

// SetOpacity sets a track's opacity, clamped to [0, 1]
func (e *Engine) SetOpacity(id string, opacity float64) error {
	return e.updateTrack(id, func(t *models.Track) { t.Opacity = clamp01(opacity) })
}

// SetOffset sets a track's start delay in ms, clamped to >= 0
func (e *Engine) SetOffset(id string, offsetMs int64) error {
	return e.updateTrack(id, func(t *models.Track) {
		if offsetMs < 0 {
			offsetMs = 0
		}
		t.OffsetMs = offsetMs
	})
}

// SetDuration overrides a track's playable length in ms, clamped to >= 0
func (e *Engine) SetDuration(id string, durationMs int64) error {
	return e.updateTrack(id, func(t *models.Track) {
		if durationMs < 0 {
			durationMs = 0
		}
		t.Duration = durationMs
	})
}

// ToggleVisibility flips a track's visibility. Hidden tracks are excluded
// from paint order, audio and resource loading, not just blanked.
func (e *Engine) ToggleVisibility(id string) error {
	return e.updateTrack(id, func(t *models.Track) { t.Visible = !t.Visible })
}

// SelectTrack marks a track as selected
func (e *Engine) SelectTrack(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexOfLocked(id) < 0 {
		return ErrTrackNotFound
	}
	e.state.SelectedTrackID = id
	e.notifyLocked()
	return nil
}

// ToggleSolo makes a track the exclusive audio source, or clears solo if the
// same track is already solo.
func (e *Engine) ToggleSolo(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexOfLocked(id) < 0 {
		return ErrTrackNotFound
	}
	if e.state.SoloTrackID == id {
		e.state.SoloTrackID = ""
	} else {
		e.state.SoloTrackID = id
	}
	e.notifyLocked()
	return nil
}

// SetCurrentTime updates the shared composite clock in ms
func (e *Engine) SetCurrentTime(ms int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ms < 0 {
		ms = 0
	}
	e.state.CurrentTimeMs = ms
	e.notifyLocked()
}

// SetPlaying updates the shared composite play flag
func (e *Engine) SetPlaying(playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Playing = playing
	e.notifyLocked()
}

// TotalDurationMs returns the composite length: the latest end time over all
// tracks, honoring per-track offsets.
func (e *Engine) TotalDurationMs() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var max int64
	for _, t := range e.state.Tracks {
		if end := t.EndMs(); end > max {
			max = end
		}
	}
	return max
}

// VisibleTracksSorted returns the visible tracks in paint order: lowest
// z-index first, topmost last. This is the authoritative render order.
func (e *Engine) VisibleTracksSorted() []models.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Track, 0, len(e.state.Tracks))
	for _, t := range e.state.Tracks {
		if t.Visible {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex < out[j].ZIndex })
	return out
}

// HitTestOrder returns visible tracks front-to-back, the order position
// based hit testing must probe them in.
func (e *Engine) HitTestOrder() []models.Track {
	tracks := e.VisibleTracksSorted()
	for i, j := 0, len(tracks)-1; i < j; i, j = i+1, j-1 {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
	return tracks
}

// LoadOrder ranks tracks for staged resource loading: the selected track
// first, then the remaining visible tracks, hidden tracks never. The order
// only affects loading, not playback or paint.
func (e *Engine) LoadOrder() []models.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Track, 0, len(e.state.Tracks))
	if i := e.indexOfLocked(e.state.SelectedTrackID); i >= 0 && e.state.Tracks[i].Visible {
		out = append(out, e.state.Tracks[i])
	}
	for _, t := range e.state.Tracks {
		if !t.Visible || t.ID == e.state.SelectedTrackID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ActiveAt returns the visible tracks whose span covers the given composite
// time, in paint order.
func (e *Engine) ActiveAt(ms int64) []models.Track {
	tracks := e.VisibleTracksSorted()
	out := tracks[:0]
	for _, t := range tracks {
		if ms >= t.OffsetMs && ms < t.EndMs() {
			out = append(out, t)
		}
	}
	return out
}

// Replace swaps in a persisted track list, restoring the dense z-index
// invariant rather than trusting stored indices.
func (e *Engine) Replace(tracks []models.Track, selectedID, soloID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Tracks = make([]models.Track, len(tracks))
	copy(e.state.Tracks, tracks)
	sort.SliceStable(e.state.Tracks, func(i, j int) bool {
		return e.state.Tracks[i].ZIndex < e.state.Tracks[j].ZIndex
	})
	e.reindexLocked()

	e.state.SelectedTrackID = ""
	if e.indexOfLocked(selectedID) >= 0 {
		e.state.SelectedTrackID = selectedID
	}
	e.state.SoloTrackID = ""
	if e.indexOfLocked(soloID) >= 0 {
		e.state.SoloTrackID = soloID
	}
	e.notifyLocked()
}

// Subscribe adds a listener that receives a state snapshot after every
// mutation. Slow listeners are dropped rather than blocking mutators.
func (e *Engine) Subscribe() <-chan models.CompositeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan models.CompositeState, 10)
	e.listeners = append(e.listeners, ch)
	return ch
}

// Unsubscribe removes a listener registered with Subscribe
func (e *Engine) Unsubscribe(ch <-chan models.CompositeState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, listener := range e.listeners {
		if listener == ch {
			close(listener)
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			break
		}
	}
}

func (e *Engine) updateTrack(id string, apply func(*models.Track)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		e.logger.WithField("track_id", id).Debug("Property update for unknown track, ignoring")
		return ErrTrackNotFound
	}
	track := e.state.Tracks[i]
	apply(&track)
	e.state.Tracks[i] = track
	e.notifyLocked()
	return nil
}

// reindexLocked reassigns every track's ZIndex to its array index
func (e *Engine) reindexLocked() {
	for i := range e.state.Tracks {
		e.state.Tracks[i].ZIndex = i
	}
}

func (e *Engine) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range e.state.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) snapshotLocked() models.CompositeState {
	out := e.state
	out.Tracks = make([]models.Track, len(e.state.Tracks))
	copy(out.Tracks, e.state.Tracks)
	return out
}

func (e *Engine) notifyLocked() {
	snapshot := e.snapshotLocked()
	for i := 0; i < len(e.listeners); i++ {
		select {
		case e.listeners[i] <- snapshot:
		default:
			close(e.listeners[i])
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			i--
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
