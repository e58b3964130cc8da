package playback

import (
	"math"
	"testing"

	"framecut/internal/sequence"
	"framecut/pkg/models"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// twoClipTimeline builds a 5s + 3s sequence and a clock bound to it
func twoClipTimeline(t *testing.T) (*sequence.Engine, *Clock, models.SequenceClip, models.SequenceClip) {
	t.Helper()
	engine := sequence.NewEngine(quietLogger())

	a, err := engine.AddClip("s1", "/media/a.mp4", "a")
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}
	if err := engine.UpdateMetadata(a.ID, 5, nil); err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}
	b, err := engine.AddClip("s2", "/media/b.mp4", "b")
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}
	if err := engine.UpdateMetadata(b.ID, 3, nil); err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}

	a, _ = engine.Get(a.ID)
	b, _ = engine.Get(b.ID)
	return engine, NewClock(engine, quietLogger()), a, b
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSeekClamps(t *testing.T) {
	_, clock, a, b := twoClipTimeline(t)

	tests := []struct {
		name       string
		seekTo     float64
		wantTime   float64
		wantClipID string
	}{
		{name: "inside first clip", seekTo: 2, wantTime: 2, wantClipID: a.ID},
		{name: "inside second clip", seekTo: 6, wantTime: 6, wantClipID: b.ID},
		{name: "negative clamps to zero", seekTo: -4, wantTime: 0, wantClipID: a.ID},
		{name: "past end clamps to total", seekTo: 100, wantTime: 8, wantClipID: b.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := clock.Seek(tt.seekTo)
			if !almostEqual(state.CurrentTime, tt.wantTime) {
				t.Errorf("Seek(%v) time = %v, want %v", tt.seekTo, state.CurrentTime, tt.wantTime)
			}
			if state.ClipID != tt.wantClipID {
				t.Errorf("Seek(%v) clip = %s, want %s", tt.seekTo, state.ClipID, tt.wantClipID)
			}
		})
	}
}

func TestTickAutoAdvancesAtClipBoundary(t *testing.T) {
	_, clock, _, b := twoClipTimeline(t)

	clock.SetPlaying(true)
	state := clock.Tick(5.0)

	if state.ClipID != b.ID {
		t.Errorf("tick at boundary did not advance to next clip")
	}
	if !almostEqual(state.CurrentTime, 5.0) {
		t.Errorf("tick time = %v, want 5.0", state.CurrentTime)
	}
	if !state.IsPlaying {
		t.Errorf("playback stopped at an internal boundary")
	}
}

func TestTickStopsAndClampsAtSequenceEnd(t *testing.T) {
	_, clock, _, b := twoClipTimeline(t)

	clock.SetPlaying(true)
	state := clock.Tick(9.2)

	if state.IsPlaying {
		t.Errorf("playback still running past the last clip")
	}
	if !almostEqual(state.CurrentTime, 8.0) {
		t.Errorf("cursor = %v, want clamped to 8.0", state.CurrentTime)
	}
	if state.ClipID != b.ID {
		t.Errorf("cursor clip = %s, want last clip", state.ClipID)
	}
}

func TestTickTrimWindow(t *testing.T) {
	_, clock, _, _ := twoClipTimeline(t)

	clock.SetTrimWindow(2, 6)
	clock.SetPlaying(true)

	// Before the window: skip forward to its start.
	state := clock.Tick(0.5)
	if !almostEqual(state.CurrentTime, 2) {
		t.Errorf("tick before window = %v, want 2", state.CurrentTime)
	}
	if !state.IsPlaying {
		t.Errorf("skip to window start stopped playback")
	}

	// At the window end: stop there.
	state = clock.Tick(6.5)
	if state.IsPlaying {
		t.Errorf("playback still running past trim end")
	}
	if !almostEqual(state.CurrentTime, 6) {
		t.Errorf("tick past window = %v, want 6", state.CurrentTime)
	}

	// Clearing the window restores free playback.
	clock.ClearTrimWindow()
	clock.SetPlaying(true)
	state = clock.Tick(6.5)
	if !state.IsPlaying || !almostEqual(state.CurrentTime, 6.5) {
		t.Errorf("cleared window still gating: %+v", state)
	}
}

func TestTickOnEmptyTimeline(t *testing.T) {
	engine := sequence.NewEngine(quietLogger())
	clock := NewClock(engine, quietLogger())

	clock.SetPlaying(true)
	state := clock.Tick(3)
	if state.IsPlaying || state.CurrentTime != 0 || state.ClipID != "" {
		t.Errorf("empty timeline tick = %+v, want stopped at zero", state)
	}
}

func TestEnsureValidResetsOrphanedCursor(t *testing.T) {
	engine, clock, a, b := twoClipTimeline(t)

	clock.Seek(7) // inside second clip
	// Shrinking the second clip to 1s leaves the cursor past the end.
	if err := engine.UpdateTrim(b.ID, 0, 1); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}

	clock.EnsureValid()
	state := clock.State()
	if state.CurrentTime != 0 {
		t.Errorf("orphaned cursor = %v, want reset to 0", state.CurrentTime)
	}
	if state.ClipID != a.ID {
		t.Errorf("cursor clip = %s, want first clip", state.ClipID)
	}

	// A cursor still inside a clip is left alone.
	clock.Seek(2)
	clock.EnsureValid()
	if got := clock.State().CurrentTime; !almostEqual(got, 2) {
		t.Errorf("valid cursor moved to %v", got)
	}
}

func TestLocalTime(t *testing.T) {
	engine, clock, _, b := twoClipTimeline(t)

	if err := engine.UpdateTrim(b.ID, 1, 3); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}

	// Second clip now spans [5, 7) with trim [1, 3]. Cursor at 6 is 1s into
	// the span, so media time is 2.
	clock.Seek(6)
	clipID, local, ok := clock.LocalTime()
	if !ok {
		t.Fatalf("LocalTime() reported no clip")
	}
	if clipID != b.ID {
		t.Errorf("LocalTime() clip = %s, want %s", clipID, b.ID)
	}
	if !almostEqual(local, 2) {
		t.Errorf("LocalTime() = %v, want 2", local)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	_, clock, _, _ := twoClipTimeline(t)

	clock.SetVolume(1.7, false)
	if got := clock.State().Volume; got != 1.0 {
		t.Errorf("Volume = %v, want clamped to 1.0", got)
	}
	clock.SetVolume(-0.5, true)
	state := clock.State()
	if state.Volume != 0 || !state.IsMuted {
		t.Errorf("Volume/mute = %v/%v, want 0/true", state.Volume, state.IsMuted)
	}
}
