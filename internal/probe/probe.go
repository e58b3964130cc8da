// Package probe answers "how long is this media file and how big is its
// picture". Video goes through ffprobe, matching the native shell's own
// metadata contract; audio-only overlay assets are parsed locally so a
// missing ffprobe never blocks importing music beds.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// ErrBackendUnavailable is returned when ffprobe cannot be executed. The
// engine state is unaffected; callers surface it as a recoverable error.
var ErrBackendUnavailable = errors.New("probe: ffprobe unavailable")

// Result holds the probed metadata for one media file
type Result struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	Title           string  `json:"title,omitempty"`
}

var videoExtensions = []string{".mp4", ".mov", ".mkv", ".webm"}
var audioExtensions = []string{".mp3", ".flac", ".wav", ".m4a"}

// Prober probes media files, caching results for repeated imports
type Prober struct {
	ffprobePath string
	logger      *logrus.Logger
	cache       *resultCache
}

// NewProber creates a prober using the given ffprobe binary path
func NewProber(ffprobePath string, cacheTTL time.Duration, logger *logrus.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &Prober{
		ffprobePath: ffprobePath,
		logger:      logger,
		cache:       newResultCache(cacheTTL),
	}
}

// Probe extracts duration, resolution and a display title for a media file
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	if cached, ok := p.cache.get(path); ok {
		return cached, nil
	}

	startTime := time.Now()
	var result Result
	var err error

	if IsAudioFile(path) {
		result, err = p.probeAudio(path)
	} else {
		result, err = p.probeVideo(ctx, path)
	}
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"file_path": path,
			"error":     err.Error(),
		}).Warn("Failed to probe media file")
		return Result{}, err
	}

	p.cache.set(path, result)
	p.logger.WithFields(logrus.Fields{
		"file_path":      path,
		"duration":       result.DurationSeconds,
		"width":          result.Width,
		"height":         result.Height,
		"processingTime": time.Since(startTime),
	}).Debug("Probed media file")
	return result, nil
}

// Invalidate drops any cached result for a path, e.g. when the file is
// removed or rewritten on disk.
func (p *Prober) Invalidate(path string) {
	p.cache.invalidate(path)
}

// probeVideo shells out to ffprobe with the same arguments the native
// backend uses and parses its JSON report.
func (p *Prober) probeVideo(ctx context.Context, path string) (Result, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return Result{}, fmt.Errorf("ffprobe failed for %s: %w", filepath.Base(path), err)
	}
	return parseFFProbeOutput(output)
}

// ffprobeReport mirrors the subset of ffprobe's JSON output the engine needs
type ffprobeReport struct {
	Format struct {
		Duration string `json:"duration"`
		Tags     struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// parseFFProbeOutput extracts duration and the first video stream's
// dimensions from an ffprobe JSON report.
func parseFFProbeOutput(output []byte) (Result, error) {
	var report ffprobeReport
	if err := json.Unmarshal(output, &report); err != nil {
		return Result{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var result Result
	if report.Format.Duration != "" {
		duration, err := strconv.ParseFloat(report.Format.Duration, 64)
		if err != nil {
			return Result{}, fmt.Errorf("invalid ffprobe duration %q: %w", report.Format.Duration, err)
		}
		result.DurationSeconds = duration
	}
	result.Title = report.Format.Tags.Title

	for _, stream := range report.Streams {
		if stream.CodecType == "video" && stream.Width > 0 {
			result.Width = stream.Width
			result.Height = stream.Height
			break
		}
	}

	if result.DurationSeconds <= 0 {
		return Result{}, fmt.Errorf("ffprobe reported no duration")
	}
	return result, nil
}

// probeAudio computes duration with format-specific parsers and pulls a
// display title from embedded tags when present.
func (p *Prober) probeAudio(path string) (Result, error) {
	var result Result
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		result.DurationSeconds, err = durationMP3(path)
	case ".flac":
		result.DurationSeconds, err = durationFLAC(path)
	case ".wav":
		result.DurationSeconds, err = durationWAV(path)
	default:
		// m4a and anything else goes through ffprobe.
		return p.probeVideo(context.Background(), path)
	}
	if err != nil {
		return Result{}, err
	}

	if f, openErr := os.Open(path); openErr == nil {
		if meta, tagErr := tag.ReadFrom(f); tagErr == nil && meta.Title() != "" {
			result.Title = meta.Title()
		}
		f.Close()
	}
	return result, nil
}

// MP3 duration via frame decoding; no bitrate estimation fallback because a
// music bed with an unreadable stream shouldn't land on a timeline at all.
func durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if frames == 0 {
				return 0, fmt.Errorf("no decodable mp3 frames in %s", filepath.Base(path))
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// FLAC duration via STREAMINFO metadata block
func durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration approximated from header fields and PCM byte count
func durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	return float64(sampleFrames) / float64(dec.SampleRate), nil
}

// IsVideoFile reports whether the path has a supported video extension
func IsVideoFile(path string) bool {
	return hasExtension(path, videoExtensions)
}

// IsAudioFile reports whether the path has a supported audio extension
func IsAudioFile(path string) bool {
	return hasExtension(path, audioExtensions)
}

// IsMediaFile reports whether the path is importable at all
func IsMediaFile(path string) bool {
	return IsVideoFile(path) || IsAudioFile(path)
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ContentType returns the MIME type for a media file
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
