// Package audiomix decides the gain applied to each composite track's audio
// path. Building and wiring the actual audio graph is the host audio
// subsystem's job; only the gain-assignment policy lives here.
package audiomix

import "framecut/pkg/models"

// EffectiveGain returns the gain for a single track given the composite's
// solo state. With a solo track set, every other track is silenced and the
// solo track plays at its own volume; with no solo, every track plays at its
// own volume. Hidden tracks are always silent.
func EffectiveGain(track models.Track, soloTrackID string) float64 {
	if !track.Visible {
		return 0
	}
	if soloTrackID != "" && track.ID != soloTrackID {
		return 0
	}
	return track.Volume
}

// EffectiveGains evaluates the policy for every track, keyed by track id.
// Pure and stateless: callers re-evaluate it on every change to the track
// list or the solo selection.
func EffectiveGains(tracks []models.Track, soloTrackID string) map[string]float64 {
	gains := make(map[string]float64, len(tracks))
	for _, t := range tracks {
		gains[t.ID] = EffectiveGain(t, soloTrackID)
	}
	return gains
}

// AudibleTracks returns the tracks whose effective gain is non-zero, the set
// the host needs real audio sources for.
func AudibleTracks(tracks []models.Track, soloTrackID string) []models.Track {
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if EffectiveGain(t, soloTrackID) > 0 {
			out = append(out, t)
		}
	}
	return out
}
