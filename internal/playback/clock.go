// Package playback owns the authoritative time cursors: the sequence-mode
// clock with its end-of-clip and trim-window policies, and the multi-source
// drift controller for composite playback.
package playback

import (
	"sync"
	"time"

	"framecut/internal/sequence"
	"framecut/pkg/models"

	"github.com/sirupsen/logrus"
)

// Clock is the single authoritative cursor for sequence-mode playback. Both
// engines and the shell read it to answer "what is active now"; it owns no
// media handles.
type Clock struct {
	mu        sync.RWMutex
	state     models.PlayerState
	engine    *sequence.Engine
	listeners []chan models.PlayerState
	logger    *logrus.Logger

	// Optional trim window over the whole sequence, in seconds. Playback is
	// gated to [trimStart, trimEnd] while set.
	trimStart float64
	trimEnd   float64
	trimSet   bool
}

// NewClock creates a clock bound to a sequence engine
func NewClock(engine *sequence.Engine, logger *logrus.Logger) *Clock {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Clock{
		engine: engine,
		logger: logger,
		state: models.PlayerState{
			Volume:    1.0,
			UpdatedAt: time.Now(),
		},
		listeners: make([]chan models.PlayerState, 0),
	}
}

// State returns the current player state (thread-safe copy)
func (c *Clock) State() models.PlayerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetPlaying starts or pauses playback
func (c *Clock) SetPlaying(playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsPlaying = playing
	c.touchLocked()
}

// SetVolume updates volume and mute state
func (c *Clock) SetVolume(volume float64, muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	c.state.Volume = volume
	c.state.IsMuted = muted
	c.touchLocked()
}

// SetTrimWindow gates playback to a sub-range of the whole sequence
func (c *Clock) SetTrimWindow(start, end float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	c.trimStart = start
	c.trimEnd = end
	c.trimSet = true
	c.touchLocked()
}

// ClearTrimWindow removes the global trim gate
func (c *Clock) ClearTrimWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimSet = false
	c.touchLocked()
}

// Seek jumps the cursor to the given sequence time, clamped to [0, total]
func (c *Clock) Seek(t float64) models.PlayerState {
	total := c.engine.TotalDuration()

	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if t > total {
		t = total
	}
	c.state.CurrentTime = t
	c.state.TotalDuration = total
	c.syncClipLocked()
	c.touchLocked()
	return c.state
}

// Tick advances the clock to the position reported by the active media
// element and applies sequence policy: skip forward to the trim window,
// stop at the trim end, auto-advance at clip boundaries and stop with the
// cursor clamped at the end of the last clip.
func (c *Clock) Tick(reported float64) models.PlayerState {
	total := c.engine.TotalDuration()

	c.mu.Lock()
	defer c.mu.Unlock()

	t := reported
	if t < 0 {
		t = 0
	}
	c.state.TotalDuration = total

	if c.trimSet && c.state.IsPlaying {
		if t < c.trimStart {
			t = c.trimStart
		}
		if t >= c.trimEnd {
			c.state.CurrentTime = c.trimEnd
			c.state.IsPlaying = false
			c.syncClipLocked()
			c.touchLocked()
			return c.state
		}
	}

	clip, ok := c.engine.ClipAt(t)
	if !ok {
		c.state.CurrentTime = 0
		c.state.IsPlaying = false
		c.state.ClipID = ""
		c.touchLocked()
		return c.state
	}

	clipEnd := clip.StartTime + clip.TrimmedDuration()
	if t >= clipEnd {
		if next, hasNext := c.engine.NextAfter(clip.ID); hasNext {
			t = next.StartTime
			clip = next
		} else {
			// Past the last clip: stop and clamp.
			c.state.CurrentTime = clipEnd
			c.state.ClipID = clip.ID
			c.state.IsPlaying = false
			c.touchLocked()
			return c.state
		}
	}

	c.state.CurrentTime = t
	c.state.ClipID = clip.ID
	c.touchLocked()
	return c.state
}

// EnsureValid resets the cursor to zero if it no longer falls inside any
// clip's span. Callers invoke it after reorders; the engine itself never
// moves the playhead.
func (c *Clock) EnsureValid() {
	clips := c.engine.Clips()

	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.state.CurrentTime
	for _, clip := range clips {
		if t >= clip.StartTime && t < clip.StartTime+clip.TrimmedDuration() {
			c.state.ClipID = clip.ID
			c.touchLocked()
			return
		}
	}
	c.state.CurrentTime = 0
	c.state.ClipID = ""
	if len(clips) > 0 {
		c.state.ClipID = clips[0].ID
	}
	c.touchLocked()
}

// LocalTime converts the cursor into the active clip's original-media time
func (c *Clock) LocalTime() (clipID string, local float64, ok bool) {
	c.mu.RLock()
	t := c.state.CurrentTime
	c.mu.RUnlock()

	clip, found := c.engine.ClipAt(t)
	if !found {
		return "", 0, false
	}
	local = clip.TrimStart + (t - clip.StartTime)
	if local > clip.TrimEnd {
		local = clip.TrimEnd
	}
	return clip.ID, local, true
}

// Subscribe adds a listener for cursor changes
func (c *Clock) Subscribe() <-chan models.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan models.PlayerState, 10)
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes a listener registered with Subscribe
func (c *Clock) Unsubscribe(ch <-chan models.PlayerState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			close(listener)
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			break
		}
	}
}

// syncClipLocked refreshes the active clip id from the current cursor
func (c *Clock) syncClipLocked() {
	if clip, ok := c.engine.ClipAt(c.state.CurrentTime); ok {
		c.state.ClipID = clip.ID
	} else {
		c.state.ClipID = ""
	}
}

// touchLocked stamps the state and fans it out to subscribers
func (c *Clock) touchLocked() {
	c.state.UpdatedAt = time.Now()
	for i := 0; i < len(c.listeners); i++ {
		select {
		case c.listeners[i] <- c.state:
		default:
			close(c.listeners[i])
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			i--
		}
	}
}
