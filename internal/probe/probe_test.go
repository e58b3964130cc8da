package probe

import (
	"testing"
	"time"
)

func TestParseFFProbeOutput(t *testing.T) {
	tests := []struct {
		name         string
		output       string
		wantDuration float64
		wantWidth    int
		wantHeight   int
		wantTitle    string
		wantError    bool
	}{
		{
			name: "video with format and streams",
			output: `{
				"streams": [
					{"codec_type": "audio"},
					{"codec_type": "video", "width": 1920, "height": 1080}
				],
				"format": {"duration": "12.480000", "tags": {"title": "Holiday"}}
			}`,
			wantDuration: 12.48,
			wantWidth:    1920,
			wantHeight:   1080,
			wantTitle:    "Holiday",
		},
		{
			name: "audio only report",
			output: `{
				"streams": [{"codec_type": "audio"}],
				"format": {"duration": "3.5"}
			}`,
			wantDuration: 3.5,
		},
		{
			name: "first video stream wins",
			output: `{
				"streams": [
					{"codec_type": "video", "width": 640, "height": 360},
					{"codec_type": "video", "width": 1280, "height": 720}
				],
				"format": {"duration": "1.0"}
			}`,
			wantDuration: 1.0,
			wantWidth:    640,
			wantHeight:   360,
		},
		{
			name:      "missing duration",
			output:    `{"streams": [], "format": {}}`,
			wantError: true,
		},
		{
			name:      "malformed duration",
			output:    `{"format": {"duration": "N/A"}}`,
			wantError: true,
		},
		{
			name:      "invalid json",
			output:    `not json`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseFFProbeOutput([]byte(tt.output))

			if tt.wantError {
				if err == nil {
					t.Errorf("parseFFProbeOutput() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFFProbeOutput() unexpected error: %v", err)
			}
			if result.DurationSeconds != tt.wantDuration {
				t.Errorf("duration = %v, want %v", result.DurationSeconds, tt.wantDuration)
			}
			if result.Width != tt.wantWidth || result.Height != tt.wantHeight {
				t.Errorf("dimensions = %dx%d, want %dx%d", result.Width, result.Height, tt.wantWidth, tt.wantHeight)
			}
			if result.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", result.Title, tt.wantTitle)
			}
		})
	}
}

func TestFileTypeDetection(t *testing.T) {
	tests := []struct {
		path      string
		wantVideo bool
		wantAudio bool
	}{
		{path: "/media/clip.mp4", wantVideo: true},
		{path: "/media/CLIP.MOV", wantVideo: true},
		{path: "/media/clip.mkv", wantVideo: true},
		{path: "/media/clip.webm", wantVideo: true},
		{path: "/media/bed.mp3", wantAudio: true},
		{path: "/media/bed.flac", wantAudio: true},
		{path: "/media/bed.wav", wantAudio: true},
		{path: "/media/bed.m4a", wantAudio: true},
		{path: "/media/readme.txt"},
		{path: "/media/noext"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsVideoFile(tt.path); got != tt.wantVideo {
				t.Errorf("IsVideoFile() = %v, want %v", got, tt.wantVideo)
			}
			if got := IsAudioFile(tt.path); got != tt.wantAudio {
				t.Errorf("IsAudioFile() = %v, want %v", got, tt.wantAudio)
			}
			if got := IsMediaFile(tt.path); got != (tt.wantVideo || tt.wantAudio) {
				t.Errorf("IsMediaFile() = %v", got)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "clip.mp4", want: "video/mp4"},
		{path: "clip.mov", want: "video/quicktime"},
		{path: "clip.webm", want: "video/webm"},
		{path: "bed.mp3", want: "audio/mpeg"},
		{path: "bed.m4a", want: "audio/mp4"},
		{path: "bed.wav", want: "audio/wav"},
		{path: "unknown.bin", want: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ContentType(tt.path); got != tt.want {
				t.Errorf("ContentType(%s) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResultCache(t *testing.T) {
	c := newResultCache(0)
	// Zero TTL means everything written is already expired.
	c.set("/a", Result{DurationSeconds: 1})
	if _, ok := c.get("/a"); ok {
		t.Errorf("expired entry served from cache")
	}

	c = newResultCache(time.Second)
	c.set("/a", Result{DurationSeconds: 1})
	if got, ok := c.get("/a"); !ok || got.DurationSeconds != 1 {
		t.Errorf("fresh entry not served: %v %v", got, ok)
	}

	c.invalidate("/a")
	if _, ok := c.get("/a"); ok {
		t.Errorf("invalidated entry still served")
	}
}
