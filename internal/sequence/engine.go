package sequence

import (
	"errors"
	"fmt"
	"sync"

	"framecut/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MinTrimSpan is the smallest playable span a clip may be trimmed or split
// down to, in seconds. Trim and split requests that would produce a shorter
// span are rejected with state unchanged.
const MinTrimSpan = 0.1

var (
	// ErrClipNotFound is returned when an operation targets a clip id that is
	// no longer in the sequence. Callers racing with removal should treat it
	// as a no-op, not a failure.
	ErrClipNotFound = errors.New("sequence: clip not found")

	// ErrTrimTooShort is returned when a trim update would leave less than
	// MinTrimSpan of playable media.
	ErrTrimTooShort = errors.New("sequence: trimmed span below minimum")

	// ErrSplitNearBoundary is returned when a split point falls within
	// MinTrimSpan of either trim edge.
	ErrSplitNearBoundary = errors.New("sequence: split point too close to trim boundary")

	// ErrMetadataPending is returned for operations that need the clip's
	// duration before probing has completed.
	ErrMetadataPending = errors.New("sequence: clip metadata not yet available")
)

// Engine owns the ordered list of clips on the main timeline. All mutations
// are serialized behind its mutex and recompute every clip's derived start
// time before returning, so readers always observe a consistent timeline.
type Engine struct {
	mu        sync.RWMutex
	clips     []models.SequenceClip
	listeners []chan []models.SequenceClip
	logger    *logrus.Logger
}

// NewEngine creates an empty sequence engine
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Engine{
		logger:    logger,
		listeners: make([]chan []models.SequenceClip, 0),
	}
}

// Clips returns a snapshot of the timeline in playback order
func (e *Engine) Clips() []models.SequenceClip {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Get returns the clip with the given id
func (e *Engine) Get(id string) (models.SequenceClip, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.indexOfLocked(id); i >= 0 {
		return e.clips[i], nil
	}
	return models.SequenceClip{}, ErrClipNotFound
}

// Len returns the number of clips on the timeline
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clips)
}

// TotalDuration returns the trimmed length of the whole sequence in seconds
func (e *Engine) TotalDuration() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total float64
	for _, c := range e.clips {
		total += c.TrimmedDuration()
	}
	return total
}

// AddClip appends a clip referencing the given library source. Duration and
// trim window stay zero until UpdateMetadata arrives from the prober.
func (e *Engine) AddClip(sourceID, sourcePath, name string) (models.SequenceClip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clip := models.SequenceClip{
		ID:         uuid.New().String(),
		SourceID:   sourceID,
		SourcePath: sourcePath,
		Name:       name,
	}
	e.clips = append(e.clips, clip)
	e.recomputeStartTimesLocked()
	e.notifyLocked()

	e.logger.WithFields(logrus.Fields{
		"clip_id": clip.ID,
		"name":    name,
	}).Info("Clip added to sequence")
	return e.clips[len(e.clips)-1], nil
}

// UpdateMetadata attaches probed duration and resolution to a clip and opens
// its trim window to the full media length if it was never trimmed. Safe to
// call more than once and after the clip was removed.
func (e *Engine) UpdateMetadata(id string, duration float64, res *models.Resolution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		e.logger.WithField("clip_id", id).Debug("Metadata arrived for removed clip, ignoring")
		return ErrClipNotFound
	}
	if duration <= 0 {
		return fmt.Errorf("sequence: invalid duration %f for clip %s", duration, id)
	}

	clip := e.clips[i]
	clip.Duration = duration
	clip.Resolution = res
	if clip.TrimEnd == 0 {
		clip.TrimStart = 0
		clip.TrimEnd = duration
	}
	e.clips[i] = clip
	e.recomputeStartTimesLocked()
	e.notifyLocked()
	return nil
}

// UpdateTrim moves a clip's trim window. Start is clamped to [0, duration],
// end to [start, duration]; the update is rejected with ErrTrimTooShort if
// the clamped span would fall below MinTrimSpan.
func (e *Engine) UpdateTrim(id string, start, end float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		e.logger.WithField("clip_id", id).Warn("Trim update for unknown clip")
		return ErrClipNotFound
	}
	clip := e.clips[i]
	if clip.Duration <= 0 {
		return ErrMetadataPending
	}

	start = clamp(start, 0, clip.Duration)
	end = clamp(end, start, clip.Duration)
	if end-start < MinTrimSpan {
		return ErrTrimTooShort
	}

	clip.TrimStart = start
	clip.TrimEnd = end
	e.clips[i] = clip
	e.recomputeStartTimesLocked()
	e.notifyLocked()
	return nil
}

// ResetTrim restores a clip's trim window to the full media length
func (e *Engine) ResetTrim(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return ErrClipNotFound
	}
	clip := e.clips[i]
	if clip.Duration <= 0 {
		return ErrMetadataPending
	}
	clip.TrimStart = 0
	clip.TrimEnd = clip.Duration
	e.clips[i] = clip
	e.recomputeStartTimesLocked()
	e.notifyLocked()
	return nil
}

// Remove deletes a clip from the timeline
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		e.logger.WithField("clip_id", id).Debug("Remove for unknown clip, ignoring")
		return ErrClipNotFound
	}
	e.clips = append(e.clips[:i], e.clips[i+1:]...)
	e.recomputeStartTimesLocked()
	e.notifyLocked()

	e.logger.WithField("clip_id", id).Info("Clip removed from sequence")
	return nil
}

// RemoveBySource deletes every clip referencing the given library source.
// Used by the library's cascade when a source clip is deleted.
func (e *Engine) RemoveBySource(sourceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.clips[:0]
	removed := 0
	for _, c := range e.clips {
		if c.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	e.clips = kept
	if removed > 0 {
		e.recomputeStartTimesLocked()
		e.notifyLocked()
		e.logger.WithFields(logrus.Fields{
			"source_id": sourceID,
			"removed":   removed,
		}).Info("Cascaded source removal to sequence")
	}
	return removed
}

// Reorder moves a clip to a new index, shifting its neighbors. The index is
// clamped to the valid range. Callers are responsible for resetting the
// playhead if it no longer falls inside any clip afterwards.
func (e *Engine) Reorder(id string, newIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return ErrClipNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(e.clips) {
		newIndex = len(e.clips) - 1
	}
	if newIndex == i {
		return nil
	}

	clip := e.clips[i]
	e.clips = append(e.clips[:i], e.clips[i+1:]...)
	e.clips = append(e.clips[:newIndex], append([]models.SequenceClip{clip}, e.clips[newIndex:]...)...)
	e.recomputeStartTimesLocked()
	e.notifyLocked()
	return nil
}

// InsertAtTime duplicates the given clip under a fresh id and inserts the
// copy before the first clip whose current start time exceeds dropTime
// (append if none). The original clip, typically a library entry dragged
// onto the timeline, is untouched.
func (e *Engine) InsertAtTime(clip models.SequenceClip, dropTime float64) (models.SequenceClip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	copied := clip
	copied.ID = uuid.New().String()

	index := len(e.clips)
	for i, c := range e.clips {
		if c.StartTime > dropTime {
			index = i
			break
		}
	}

	e.clips = append(e.clips[:index], append([]models.SequenceClip{copied}, e.clips[index:]...)...)
	e.recomputeStartTimesLocked()
	e.notifyLocked()

	e.logger.WithFields(logrus.Fields{
		"clip_id":   copied.ID,
		"drop_time": dropTime,
		"index":     index,
	}).Info("Clip inserted at time")
	return e.clips[index], nil
}

// SplitAt divides the clip owning the given sequence-space time into two
// contiguous clips sharing the same source. The replacement is applied as a
// single list transaction, so observers never see a half-split timeline.
// Returns the two resulting clips in playback order.
func (e *Engine) SplitAt(id string, splitTime float64) (models.SequenceClip, models.SequenceClip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return models.SequenceClip{}, models.SequenceClip{}, ErrClipNotFound
	}
	clip := e.clips[i]
	splitPoint, err := splitPointFor(clip, splitTime)
	if err != nil {
		return models.SequenceClip{}, models.SequenceClip{}, err
	}

	first := clip
	first.ID = uuid.New().String()
	first.TrimEnd = splitPoint

	second := clip
	second.ID = uuid.New().String()
	second.TrimStart = splitPoint

	e.clips = append(e.clips[:i], append([]models.SequenceClip{first, second}, e.clips[i+1:]...)...)
	e.recomputeStartTimesLocked()
	e.notifyLocked()

	e.logger.WithFields(logrus.Fields{
		"clip_id":     id,
		"split_point": splitPoint,
		"first_id":    first.ID,
		"second_id":   second.ID,
	}).Info("Clip split")
	return e.clips[i], e.clips[i+1], nil
}

// ValidateSplit checks whether a split at the given sequence time would
// succeed, without mutating the timeline. Used by the split job runner
// before it kicks off backend precomputation.
func (e *Engine) ValidateSplit(id string, splitTime float64) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return 0, ErrClipNotFound
	}
	return splitPointFor(e.clips[i], splitTime)
}

// splitPointFor converts a sequence-space time into original-media time for
// the clip and validates the boundary distance rule.
func splitPointFor(clip models.SequenceClip, splitTime float64) (float64, error) {
	if clip.Duration <= 0 {
		return 0, ErrMetadataPending
	}
	localTime := splitTime - clip.StartTime
	splitPoint := clip.TrimStart + localTime
	if splitPoint-clip.TrimStart < MinTrimSpan || clip.TrimEnd-splitPoint < MinTrimSpan {
		return 0, ErrSplitNearBoundary
	}
	return splitPoint, nil
}

// ClipAt returns the clip whose span contains the given sequence time. Times
// past the end of the timeline resolve to the last clip so queries at the
// theoretical end degrade gracefully instead of returning nothing.
func (e *Engine) ClipAt(t float64) (models.SequenceClip, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.clips) == 0 {
		return models.SequenceClip{}, false
	}
	for _, c := range e.clips {
		if t >= c.StartTime && t < c.StartTime+c.TrimmedDuration() {
			return c, true
		}
	}
	return e.clips[len(e.clips)-1], true
}

// NextAfter returns the clip following the given one, if any
func (e *Engine) NextAfter(id string) (models.SequenceClip, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.indexOfLocked(id)
	if i < 0 || i+1 >= len(e.clips) {
		return models.SequenceClip{}, false
	}
	return e.clips[i+1], true
}

// Replace swaps in a fully-formed clip list, recomputing derived fields.
// Used when restoring a persisted project; stored start times are discarded.
func (e *Engine) Replace(clips []models.SequenceClip) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clips = make([]models.SequenceClip, len(clips))
	copy(e.clips, clips)
	e.recomputeStartTimesLocked()
	e.notifyLocked()
}

// Subscribe adds a listener that receives a timeline snapshot after every
// mutation. Slow listeners are dropped rather than blocking mutators.
func (e *Engine) Subscribe() <-chan []models.SequenceClip {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan []models.SequenceClip, 10)
	e.listeners = append(e.listeners, ch)
	return ch
}

// Unsubscribe removes a listener registered with Subscribe
func (e *Engine) Unsubscribe(ch <-chan []models.SequenceClip) {
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

// recomputeStartTimesLocked is the single source of truth for derived start
// times: a running sum of trimmed durations in list order. Must be called
// with the write lock held after any change to the clip list.
func (e *Engine) recomputeStartTimesLocked() {
	cursor := 0.0
	for i := range e.clips {
		e.clips[i].StartTime = cursor
		cursor += e.clips[i].TrimmedDuration()
	}
	if cursor < 0 {
		// A negative total means trim invariants were violated upstream.
		panic(fmt.Sprintf("sequence: recompute produced negative duration %f", cursor))
	}
}

func (e *Engine) indexOfLocked(id string) int {
	for i, c := range e.clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) snapshotLocked() []models.SequenceClip {
	out := make([]models.SequenceClip, len(e.clips))
	copy(out, e.clips)
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
