package playback

import "framecut/pkg/models"

// DefaultDriftToleranceMs is the band within which a composite source may
// drift from the shared clock before it gets re-seeked. Tight enough to
// keep lip sync, loose enough to avoid stutter from constant seeking.
const DefaultDriftToleranceMs = 50

// Correction tells the shell to seek one track's media element to a new
// local position, in ms.
type Correction struct {
	TrackID  string `json:"trackId"`
	SeekToMs int64  `json:"seekToMs"`
}

// SyncController keeps N independently-buffered composite sources aligned to
// one shared clock. It is pure: each tick the shell reports per-track local
// positions and gets back the corrections to apply.
type SyncController struct {
	toleranceMs int64
}

// NewSyncController creates a controller with the given drift tolerance in
// ms; zero or negative falls back to DefaultDriftToleranceMs.
func NewSyncController(toleranceMs int64) *SyncController {
	if toleranceMs <= 0 {
		toleranceMs = DefaultDriftToleranceMs
	}
	return &SyncController{toleranceMs: toleranceMs}
}

// ToleranceMs returns the configured drift band
func (sc *SyncController) ToleranceMs() int64 {
	return sc.toleranceMs
}

// AuthoritativeTime derives the shared clock from the first visible track's
// reported local position. Returns false when no visible track has reported
// yet, e.g. while sources are still buffering.
func (sc *SyncController) AuthoritativeTime(tracks []models.Track, reportedMs map[string]int64) (int64, bool) {
	for _, t := range tracks {
		if !t.Visible {
			continue
		}
		if local, ok := reportedMs[t.ID]; ok {
			global := local + t.OffsetMs
			if global < 0 {
				global = 0
			}
			return global, true
		}
	}
	return 0, false
}

// Corrections returns the set of tracks whose reported local position has
// drifted outside the tolerance band, with the local position each should
// seek to. Reported ids with no matching track are ignored: a tick can race
// with track removal and must not fail on stale references.
func (sc *SyncController) Corrections(globalMs int64, tracks []models.Track, reportedMs map[string]int64) []Correction {
	var out []Correction
	for _, t := range tracks {
		if !t.Visible {
			continue
		}
		reported, ok := reportedMs[t.ID]
		if !ok {
			continue
		}
		desired := localPosition(globalMs, t)
		drift := reported - desired
		if drift < 0 {
			drift = -drift
		}
		if drift > sc.toleranceMs {
			out = append(out, Correction{TrackID: t.ID, SeekToMs: desired})
		}
	}
	return out
}

// SeekTargets recomputes every track's local position for an explicit seek,
// bypassing the drift tolerance band entirely.
func (sc *SyncController) SeekTargets(globalMs int64, tracks []models.Track) []Correction {
	out := make([]Correction, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, Correction{TrackID: t.ID, SeekToMs: localPosition(globalMs, t)})
	}
	return out
}

// localPosition maps the shared composite time onto one track's media
// timeline, clamped to >= 0.
func localPosition(globalMs int64, t models.Track) int64 {
	local := globalMs - t.OffsetMs
	if local < 0 {
		local = 0
	}
	return local
}
