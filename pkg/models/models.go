package models

import "time"

// Resolution represents the pixel dimensions of a video source
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SourceClip represents an imported media file in the library.
// Duration and Resolution stay nil until metadata probing completes.
type SourceClip struct {
	ID          string      `json:"id"`
	Path        string      `json:"-"` // don't expose file path to client
	Name        string      `json:"name"`
	Duration    *float64    `json:"duration,omitempty"` // in seconds
	Resolution  *Resolution `json:"resolution,omitempty"`
	MediaHandle string      `json:"mediaHandle,omitempty"` // opaque streamable handle
	FileSize    int64       `json:"fileSize"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// SequenceClip represents one clip on the main timeline. StartTime is
// derived from the trimmed durations of all preceding clips and must never
// be written outside the sequence engine's recompute.
type SequenceClip struct {
	ID         string      `json:"id"`
	SourceID   string      `json:"sourceId"`
	SourcePath string      `json:"-"`
	Name       string      `json:"name"`
	Duration   float64     `json:"duration"` // original media length in seconds, 0 until probed
	Resolution *Resolution `json:"resolution,omitempty"`
	TrimStart  float64     `json:"trimStart"`
	TrimEnd    float64     `json:"trimEnd"`
	StartTime  float64     `json:"startTimeInSequence"`
}

// TrimmedDuration returns the playable span of the clip in seconds.
func (c SequenceClip) TrimmedDuration() float64 {
	return c.TrimEnd - c.TrimStart
}

// ClipData is the immutable media reference a composite track wraps.
type ClipData struct {
	Path       string  `json:"-"`
	Name       string  `json:"name"`
	DurationMs int64   `json:"durationMs"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Duration   float64 `json:"duration"` // in seconds, convenience mirror of DurationMs
}

// Position is a track's placement on the composite canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Track represents one layer in the composite. ZIndex always equals the
// track's index in the composite's track list after any reorder.
type Track struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"sourceId"`
	Clip      ClipData  `json:"clipData"`
	Position  Position  `json:"position"`
	Volume    float64   `json:"volume"`  // 0.0 to 1.0
	Opacity   float64   `json:"opacity"` // 0.0 to 1.0
	ZIndex    int       `json:"zIndex"`
	Visible   bool      `json:"isVisible"`
	OffsetMs  int64     `json:"offset"`   // delay before the track starts, in ms
	Duration  int64     `json:"duration"` // in ms
	CreatedAt time.Time `json:"createdAt"`
}

// EndMs returns the composite time at which the track stops playing.
func (t Track) EndMs() int64 {
	return t.OffsetMs + t.Duration
}

// CompositeState is the full observable state of the composite engine.
// At most one track may be solo; when set, every other track is silenced.
type CompositeState struct {
	Tracks          []Track `json:"tracks"`
	SelectedTrackID string  `json:"selectedTrackId,omitempty"`
	SoloTrackID     string  `json:"soloTrackId,omitempty"`
	Playing         bool    `json:"isPlayingComposite"`
	CurrentTimeMs   int64   `json:"currentTime"`
}

// PlayerState represents the sequence-mode playback cursor shared with the shell
type PlayerState struct {
	ClipID        string    `json:"clipId,omitempty"`
	IsPlaying     bool      `json:"isPlaying"`
	CurrentTime   float64   `json:"currentTime"`   // in seconds, sequence space
	TotalDuration float64   `json:"totalDuration"` // in seconds
	Volume        float64   `json:"volume"` // 0.0 to 1.0
	IsMuted       bool      `json:"isMuted"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
