package sequence

import (
	"errors"
	"math"
	"testing"

	"framecut/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return NewEngine(logger)
}

// addProbed adds a clip and immediately attaches metadata, the state most
// tests care about.
func addProbed(t *testing.T, e *Engine, name string, duration float64) models.SequenceClip {
	t.Helper()
	clip, err := e.AddClip("source-"+name, "/media/"+name+".mp4", name)
	if err != nil {
		t.Fatalf("AddClip(%s) error: %v", name, err)
	}
	if err := e.UpdateMetadata(clip.ID, duration, nil); err != nil {
		t.Fatalf("UpdateMetadata(%s) error: %v", name, err)
	}
	clip, err = e.Get(clip.ID)
	if err != nil {
		t.Fatalf("Get(%s) error: %v", name, err)
	}
	return clip
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertStartTimes(t *testing.T, e *Engine, want []float64) {
	t.Helper()
	clips := e.Clips()
	if len(clips) != len(want) {
		t.Fatalf("clip count = %d, want %d", len(clips), len(want))
	}
	for i, clip := range clips {
		if !almostEqual(clip.StartTime, want[i]) {
			t.Errorf("clip %d start time = %v, want %v", i, clip.StartTime, want[i])
		}
	}
}

func TestStartTimesFollowTrimmedDurations(t *testing.T) {
	e := newTestEngine()
	addProbed(t, e, "a", 5)
	addProbed(t, e, "b", 3)

	assertStartTimes(t, e, []float64{0, 5})
	if total := e.TotalDuration(); !almostEqual(total, 8) {
		t.Errorf("TotalDuration() = %v, want 8", total)
	}
}

func TestTrimRecomputesDownstreamStarts(t *testing.T) {
	e := newTestEngine()
	first := addProbed(t, e, "a", 5)
	second := addProbed(t, e, "b", 3)

	// Trimming the second clip shrinks the total but leaves its own start.
	if err := e.UpdateTrim(second.ID, 1, 2); err != nil {
		t.Fatalf("UpdateTrim(second) error: %v", err)
	}
	assertStartTimes(t, e, []float64{0, 5})
	if total := e.TotalDuration(); !almostEqual(total, 6) {
		t.Errorf("TotalDuration() after trimming second = %v, want 6", total)
	}

	// Trimming the first clip shifts everything after it.
	if err := e.UpdateTrim(first.ID, 1, 3); err != nil {
		t.Fatalf("UpdateTrim(first) error: %v", err)
	}
	assertStartTimes(t, e, []float64{0, 2})
	if total := e.TotalDuration(); !almostEqual(total, 3) {
		t.Errorf("TotalDuration() after trimming both = %v, want 3", total)
	}
}

func TestUpdateTrimValidation(t *testing.T) {
	e := newTestEngine()
	clip := addProbed(t, e, "a", 5)

	tests := []struct {
		name    string
		id      string
		start   float64
		end     float64
		wantErr error
	}{
		{
			name:    "span below minimum",
			id:      clip.ID,
			start:   1,
			end:     1.05,
			wantErr: ErrTrimTooShort,
		},
		{
			name:    "inverted window collapses to zero span",
			id:      clip.ID,
			start:   3,
			end:     1,
			wantErr: ErrTrimTooShort,
		},
		{
			name:    "unknown clip",
			id:      "missing",
			start:   0,
			end:     1,
			wantErr: ErrClipNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.UpdateTrim(tt.id, tt.start, tt.end)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateTrim() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejected updates must leave the clip untouched.
	got, _ := e.Get(clip.ID)
	if got.TrimStart != 0 || got.TrimEnd != 5 {
		t.Errorf("trim window changed after rejected updates: [%v, %v]", got.TrimStart, got.TrimEnd)
	}
}

func TestUpdateTrimClampsToMediaBounds(t *testing.T) {
	e := newTestEngine()
	clip := addProbed(t, e, "a", 5)

	if err := e.UpdateTrim(clip.ID, -2, 99); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}
	got, _ := e.Get(clip.ID)
	if got.TrimStart != 0 || got.TrimEnd != 5 {
		t.Errorf("trim window = [%v, %v], want [0, 5]", got.TrimStart, got.TrimEnd)
	}
}

func TestTrimBeforeMetadata(t *testing.T) {
	e := newTestEngine()
	clip, err := e.AddClip("source-a", "/media/a.mp4", "a")
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}

	if err := e.UpdateTrim(clip.ID, 0, 1); !errors.Is(err, ErrMetadataPending) {
		t.Errorf("UpdateTrim() before metadata error = %v, want %v", err, ErrMetadataPending)
	}
	if err := e.ResetTrim(clip.ID); !errors.Is(err, ErrMetadataPending) {
		t.Errorf("ResetTrim() before metadata error = %v, want %v", err, ErrMetadataPending)
	}
}

func TestResetTrim(t *testing.T) {
	e := newTestEngine()
	clip := addProbed(t, e, "a", 5)

	if err := e.UpdateTrim(clip.ID, 1, 2); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}
	if err := e.ResetTrim(clip.ID); err != nil {
		t.Fatalf("ResetTrim() error: %v", err)
	}

	got, _ := e.Get(clip.ID)
	if got.TrimStart != 0 || got.TrimEnd != 5 {
		t.Errorf("trim window after reset = [%v, %v], want [0, 5]", got.TrimStart, got.TrimEnd)
	}
}

func TestUpdateMetadataOpensTrimWindow(t *testing.T) {
	e := newTestEngine()
	clip, _ := e.AddClip("source-a", "/media/a.mp4", "a")

	if err := e.UpdateMetadata(clip.ID, 7.5, &models.Resolution{Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}

	got, _ := e.Get(clip.ID)
	if got.TrimStart != 0 || got.TrimEnd != 7.5 {
		t.Errorf("trim window = [%v, %v], want [0, 7.5]", got.TrimStart, got.TrimEnd)
	}
	if got.Resolution == nil || got.Resolution.Width != 1920 {
		t.Errorf("resolution not recorded: %+v", got.Resolution)
	}

	// A second metadata delivery must not reopen a user-set trim window.
	if err := e.UpdateTrim(clip.ID, 1, 2); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}
	if err := e.UpdateMetadata(clip.ID, 7.5, nil); err != nil {
		t.Fatalf("second UpdateMetadata() error: %v", err)
	}
	got, _ = e.Get(clip.ID)
	if got.TrimStart != 1 || got.TrimEnd != 2 {
		t.Errorf("trim window after re-probe = [%v, %v], want [1, 2]", got.TrimStart, got.TrimEnd)
	}
}

func TestUpdateMetadataForRemovedClip(t *testing.T) {
	e := newTestEngine()
	clip, _ := e.AddClip("source-a", "/media/a.mp4", "a")
	if err := e.Remove(clip.ID); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	if err := e.UpdateMetadata(clip.ID, 5, nil); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("UpdateMetadata() for removed clip error = %v, want %v", err, ErrClipNotFound)
	}
}

func TestSplitAtProducesContiguousClips(t *testing.T) {
	e := newTestEngine()
	addProbed(t, e, "a", 5)
	second := addProbed(t, e, "b", 3)

	// Second clip occupies sequence span [5, 8). Splitting at 6.5 lands 1.5s
	// into its media.
	first, rest, err := e.SplitAt(second.ID, 6.5)
	if err != nil {
		t.Fatalf("SplitAt() error: %v", err)
	}

	if !almostEqual(first.TrimStart, 0) || !almostEqual(first.TrimEnd, 1.5) {
		t.Errorf("first half trim = [%v, %v], want [0, 1.5]", first.TrimStart, first.TrimEnd)
	}
	if !almostEqual(rest.TrimStart, 1.5) || !almostEqual(rest.TrimEnd, 3) {
		t.Errorf("second half trim = [%v, %v], want [1.5, 3]", rest.TrimStart, rest.TrimEnd)
	}
	if first.ID == second.ID || rest.ID == second.ID || first.ID == rest.ID {
		t.Errorf("split halves must carry fresh ids: %s %s (from %s)", first.ID, rest.ID, second.ID)
	}
	if first.SourceID != second.SourceID || rest.SourceID != second.SourceID {
		t.Errorf("split halves must keep the source reference")
	}

	// The split is lossless: start times and total duration are unchanged.
	assertStartTimes(t, e, []float64{0, 5, 6.5})
	if total := e.TotalDuration(); !almostEqual(total, 8) {
		t.Errorf("TotalDuration() after split = %v, want 8", total)
	}
}

func TestSplitBoundaryRule(t *testing.T) {
	e := newTestEngine()
	clip := addProbed(t, e, "a", 5)

	tests := []struct {
		name      string
		splitTime float64
		wantErr   error
	}{
		{name: "too close to start", splitTime: 0.05, wantErr: ErrSplitNearBoundary},
		{name: "too close to end", splitTime: 4.95, wantErr: ErrSplitNearBoundary},
		{name: "exactly at start", splitTime: 0, wantErr: ErrSplitNearBoundary},
		{name: "comfortably inside", splitTime: 2.5, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ValidateSplit(clip.ID, tt.splitTime)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSplit(%v) error = %v, want %v", tt.splitTime, err, tt.wantErr)
			}
		})
	}

	if _, _, err := e.SplitAt("missing", 2.5); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("SplitAt() unknown clip error = %v, want %v", err, ErrClipNotFound)
	}
}

func TestSplitRespectsExistingTrim(t *testing.T) {
	e := newTestEngine()
	clip := addProbed(t, e, "a", 10)
	if err := e.UpdateTrim(clip.ID, 2, 8); err != nil {
		t.Fatalf("UpdateTrim() error: %v", err)
	}

	// Clip spans [0, 6) in sequence time with trim [2, 8]. Splitting at 3
	// lands at media time 5.
	first, rest, err := e.SplitAt(clip.ID, 3)
	if err != nil {
		t.Fatalf("SplitAt() error: %v", err)
	}
	if !almostEqual(first.TrimStart, 2) || !almostEqual(first.TrimEnd, 5) {
		t.Errorf("first half trim = [%v, %v], want [2, 5]", first.TrimStart, first.TrimEnd)
	}
	if !almostEqual(rest.TrimStart, 5) || !almostEqual(rest.TrimEnd, 8) {
		t.Errorf("second half trim = [%v, %v], want [5, 8]", rest.TrimStart, rest.TrimEnd)
	}
}

func TestReorderClampsIndex(t *testing.T) {
	e := newTestEngine()
	a := addProbed(t, e, "a", 5)
	addProbed(t, e, "b", 3)
	c := addProbed(t, e, "c", 2)

	if err := e.Reorder(a.ID, 99); err != nil {
		t.Fatalf("Reorder() error: %v", err)
	}
	clips := e.Clips()
	if clips[len(clips)-1].ID != a.ID {
		t.Errorf("clip not moved to last position")
	}
	assertStartTimes(t, e, []float64{0, 3, 5})

	if err := e.Reorder(c.ID, -5); err != nil {
		t.Fatalf("Reorder() error: %v", err)
	}
	clips = e.Clips()
	if clips[0].ID != c.ID {
		t.Errorf("clip not moved to first position")
	}
}

func TestInsertAtTimeCopies(t *testing.T) {
	e := newTestEngine()
	addProbed(t, e, "a", 5)
	addProbed(t, e, "b", 3)

	template := models.SequenceClip{
		SourceID:   "source-x",
		SourcePath: "/media/x.mp4",
		Name:       "x",
		Duration:   4,
		TrimEnd:    4,
	}

	inserted, err := e.InsertAtTime(template, 2)
	if err != nil {
		t.Fatalf("InsertAtTime() error: %v", err)
	}
	if inserted.ID == "" || inserted.ID == template.ID {
		t.Errorf("inserted clip must carry a fresh id")
	}

	// Drop time 2 lands before the second clip (start 5), so the copy goes
	// to index 1.
	clips := e.Clips()
	if clips[1].ID != inserted.ID {
		t.Fatalf("inserted clip at index %d, want 1", indexOf(clips, inserted.ID))
	}
	assertStartTimes(t, e, []float64{0, 5, 9})

	// A drop past the end appends.
	appended, err := e.InsertAtTime(template, 100)
	if err != nil {
		t.Fatalf("InsertAtTime() error: %v", err)
	}
	clips = e.Clips()
	if clips[len(clips)-1].ID != appended.ID {
		t.Errorf("late drop did not append")
	}
}

func indexOf(clips []models.SequenceClip, id string) int {
	for i, c := range clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func TestClipAt(t *testing.T) {
	e := newTestEngine()
	a := addProbed(t, e, "a", 5)
	b := addProbed(t, e, "b", 3)

	tests := []struct {
		name   string
		time   float64
		wantID string
	}{
		{name: "inside first clip", time: 2, wantID: a.ID},
		{name: "boundary belongs to next clip", time: 5, wantID: b.ID},
		{name: "inside second clip", time: 7.9, wantID: b.ID},
		{name: "past the end resolves to last clip", time: 42, wantID: b.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, ok := e.ClipAt(tt.time)
			if !ok {
				t.Fatalf("ClipAt(%v) reported no clip", tt.time)
			}
			if clip.ID != tt.wantID {
				t.Errorf("ClipAt(%v) = %s, want %s", tt.time, clip.Name, tt.wantID)
			}
		})
	}
}

func TestClipAtEmptyTimeline(t *testing.T) {
	e := newTestEngine()
	if _, ok := e.ClipAt(0); ok {
		t.Errorf("ClipAt() on empty timeline reported a clip")
	}
}

func TestNextAfter(t *testing.T) {
	e := newTestEngine()
	a := addProbed(t, e, "a", 5)
	b := addProbed(t, e, "b", 3)

	next, ok := e.NextAfter(a.ID)
	if !ok || next.ID != b.ID {
		t.Errorf("NextAfter(first) = %v, %v; want second clip", next.ID, ok)
	}
	if _, ok := e.NextAfter(b.ID); ok {
		t.Errorf("NextAfter(last) reported a clip")
	}
	if _, ok := e.NextAfter("missing"); ok {
		t.Errorf("NextAfter(unknown) reported a clip")
	}
}

func TestRemoveBySource(t *testing.T) {
	e := newTestEngine()
	addProbed(t, e, "a", 5)
	clip, _ := e.AddClip("shared-source", "/media/s.mp4", "s1")
	e.UpdateMetadata(clip.ID, 2, nil)
	clip2, _ := e.AddClip("shared-source", "/media/s.mp4", "s2")
	e.UpdateMetadata(clip2.ID, 2, nil)

	removed := e.RemoveBySource("shared-source")
	if removed != 2 {
		t.Errorf("RemoveBySource() removed %d clips, want 2", removed)
	}
	if e.Len() != 1 {
		t.Errorf("clip count = %d, want 1", e.Len())
	}
	assertStartTimes(t, e, []float64{0})
}

func TestReplaceRecomputesStartTimes(t *testing.T) {
	e := newTestEngine()

	// Stored start times are garbage on purpose; Replace must not trust them.
	e.Replace([]models.SequenceClip{
		{ID: "1", SourceID: "s1", Name: "a", Duration: 5, TrimStart: 0, TrimEnd: 5, StartTime: 99},
		{ID: "2", SourceID: "s2", Name: "b", Duration: 3, TrimStart: 1, TrimEnd: 2, StartTime: -7},
	})

	assertStartTimes(t, e, []float64{0, 5})
	if total := e.TotalDuration(); !almostEqual(total, 6) {
		t.Errorf("TotalDuration() = %v, want 6", total)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	e := newTestEngine()
	ch := e.Subscribe()

	addProbed(t, e, "a", 5)

	var last []models.SequenceClip
	for {
		select {
		case snapshot := <-ch:
			last = snapshot
			continue
		default:
		}
		break
	}
	if len(last) != 1 {
		t.Fatalf("listener snapshot has %d clips, want 1", len(last))
	}
	e.Unsubscribe(ch)
}
