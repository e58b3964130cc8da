package audiomix

import (
	"testing"

	"framecut/pkg/models"
)

func testTracks() []models.Track {
	return []models.Track{
		{ID: "t1", Volume: 0.8, Visible: true},
		{ID: "t2", Volume: 0.5, Visible: true},
		{ID: "t3", Volume: 1.0, Visible: false},
	}
}

func TestEffectiveGain(t *testing.T) {
	tests := []struct {
		name  string
		track models.Track
		solo  string
		want  float64
	}{
		{
			name:  "no solo plays at own volume",
			track: models.Track{ID: "t1", Volume: 0.8, Visible: true},
			solo:  "",
			want:  0.8,
		},
		{
			name:  "solo track plays at own volume",
			track: models.Track{ID: "t1", Volume: 0.8, Visible: true},
			solo:  "t1",
			want:  0.8,
		},
		{
			name:  "non-solo track is silenced",
			track: models.Track{ID: "t2", Volume: 0.5, Visible: true},
			solo:  "t1",
			want:  0,
		},
		{
			name:  "hidden track is always silent",
			track: models.Track{ID: "t3", Volume: 1.0, Visible: false},
			solo:  "",
			want:  0,
		},
		{
			name:  "hidden solo track stays silent",
			track: models.Track{ID: "t3", Volume: 1.0, Visible: false},
			solo:  "t3",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveGain(tt.track, tt.solo); got != tt.want {
				t.Errorf("EffectiveGain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveGainsSoloRoundTrip(t *testing.T) {
	tracks := testTracks()

	// Soloing t2 silences everything else.
	gains := EffectiveGains(tracks, "t2")
	want := map[string]float64{"t1": 0, "t2": 0.5, "t3": 0}
	for id, g := range want {
		if gains[id] != g {
			t.Errorf("gains[%s] = %v, want %v", id, gains[id], g)
		}
	}

	// Clearing solo restores each track's own volume; hidden stays silent.
	gains = EffectiveGains(tracks, "")
	want = map[string]float64{"t1": 0.8, "t2": 0.5, "t3": 0}
	for id, g := range want {
		if gains[id] != g {
			t.Errorf("gains[%s] after unsolo = %v, want %v", id, gains[id], g)
		}
	}
}

func TestAudibleTracks(t *testing.T) {
	tracks := testTracks()

	audible := AudibleTracks(tracks, "")
	if len(audible) != 2 {
		t.Fatalf("AudibleTracks() = %d tracks, want 2", len(audible))
	}

	audible = AudibleTracks(tracks, "t1")
	if len(audible) != 1 || audible[0].ID != "t1" {
		t.Errorf("AudibleTracks() with solo wrong: %v", audible)
	}

	muted := []models.Track{{ID: "m", Volume: 0, Visible: true}}
	if got := AudibleTracks(muted, ""); len(got) != 0 {
		t.Errorf("zero-volume track reported audible")
	}
}
