// Package export turns read-only snapshots of engine state into encoded
// files via ffmpeg. Engines never call into it; the orchestration layer
// assembles a snapshot and submits a job.
package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"framecut/internal/audiomix"
	"framecut/internal/config"
	"framecut/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExportStatus represents the status of an export job
type ExportStatus string

const (
	StatusPending   ExportStatus = "pending"
	StatusEncoding  ExportStatus = "encoding"
	StatusCompleted ExportStatus = "completed"
	StatusFailed    ExportStatus = "failed"
	StatusCancelled ExportStatus = "cancelled"
)

// ExportJob represents one encode request. Progress is derived from
// ffmpeg's elapsed encoded time over the snapshot's total duration.
type ExportJob struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"` // "sequence" or "composite"
	Status      ExportStatus `json:"status"`
	Progress    int          `json:"progress"`
	Error       string       `json:"error,omitempty"`
	OutputPath  string       `json:"output_path,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// SequenceSnapshot is the read-only view of the timeline an export consumes.
// TrimStart/TrimEnd optionally window the whole sequence; both zero means
// export everything.
type SequenceSnapshot struct {
	Clips     []models.SequenceClip `json:"clips"`
	TrimStart float64               `json:"trimStart"`
	TrimEnd   float64               `json:"trimEnd"`
}

// Duration returns the exported length in seconds
func (s SequenceSnapshot) Duration() float64 {
	var total float64
	for _, c := range s.Clips {
		total += c.TrimmedDuration()
	}
	if s.TrimEnd > s.TrimStart {
		window := s.TrimEnd - s.TrimStart
		if window < total {
			return window
		}
	}
	return total
}

// CompositeSnapshot is the read-only view of the track stack an export
// consumes, including the solo selection so exported audio matches preview.
type CompositeSnapshot struct {
	Tracks      []models.Track `json:"tracks"`
	SoloTrackID string         `json:"soloTrackId,omitempty"`
	CanvasW     int            `json:"canvasWidth"`
	CanvasH     int            `json:"canvasHeight"`
}

// Duration returns the exported length in seconds
func (s CompositeSnapshot) Duration() float64 {
	var maxMs int64
	for _, t := range s.Tracks {
		if end := t.EndMs(); end > maxMs {
			maxMs = end
		}
	}
	return float64(maxMs) / 1000.0
}

// presets maps resolution preset names to output dimensions
var presets = map[string][2]int{
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"4k":    {3840, 2160},
}

// Exporter runs export jobs against a local ffmpeg binary
type Exporter struct {
	ffmpegPath string
	outputDir  string
	preset     string
	logger     *logrus.Logger

	jobs    map[string]*ExportJob
	cancels map[string]context.CancelFunc
	jobsMux sync.RWMutex
}

// NewExporter creates an exporter instance, verifying ffmpeg is reachable
func NewExporter(cfg *config.Config, logger *logrus.Logger) (*Exporter, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	e := &Exporter{
		ffmpegPath: cfg.Export.FFmpegPath,
		outputDir:  cfg.Export.OutputDir,
		preset:     cfg.Export.Preset,
		logger:     logger,
		jobs:       make(map[string]*ExportJob),
		cancels:    make(map[string]context.CancelFunc),
	}

	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	return e, nil
}

// ExportSequence encodes the timeline snapshot into a single file
func (e *Exporter) ExportSequence(snap SequenceSnapshot, outputName, preset string) (*ExportJob, error) {
	if len(snap.Clips) == 0 {
		return nil, fmt.Errorf("cannot export an empty sequence")
	}
	for _, c := range snap.Clips {
		if c.Duration <= 0 {
			return nil, fmt.Errorf("clip %s has no metadata yet", c.ID)
		}
	}

	outputPath := e.outputPath(outputName)
	args := e.buildSequenceArgs(snap, outputPath, e.resolvePreset(preset))
	return e.submit("sequence", outputPath, args, snap.Duration()), nil
}

// ExportComposite encodes the layered track stack into a single file
func (e *Exporter) ExportComposite(snap CompositeSnapshot, outputName, preset string) (*ExportJob, error) {
	if len(snap.Tracks) == 0 {
		return nil, fmt.Errorf("cannot export an empty composite")
	}

	outputPath := e.outputPath(outputName)
	args := e.buildCompositeArgs(snap, outputPath, e.resolvePreset(preset))
	return e.submit("composite", outputPath, args, snap.Duration()), nil
}

// submit registers a job and starts encoding in the background
func (e *Exporter) submit(kind, outputPath string, args []string, totalSeconds float64) *ExportJob {
	job := &ExportJob{
		ID:         uuid.New().String(),
		Kind:       kind,
		Status:     StatusPending,
		OutputPath: outputPath,
		CreatedAt:  time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.jobsMux.Lock()
	e.jobs[job.ID] = job
	e.cancels[job.ID] = cancel
	e.jobsMux.Unlock()

	go e.process(ctx, job.ID, args, totalSeconds)
	return job
}

// process runs ffmpeg, feeding progress updates back into the job record
func (e *Exporter) process(ctx context.Context, jobID string, args []string, totalSeconds float64) {
	e.updateJob(jobID, StatusEncoding, 0, "")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.finishJob(jobID, StatusFailed, fmt.Sprintf("failed to attach progress pipe: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		e.finishJob(jobID, StatusFailed, fmt.Sprintf("failed to start ffmpeg: %v", err))
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if pct, ok := progressPercent(scanner.Text(), totalSeconds); ok {
			e.updateJob(jobID, StatusEncoding, pct, "")
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			e.finishJob(jobID, StatusCancelled, "")
			return
		}
		e.finishJob(jobID, StatusFailed, fmt.Sprintf("ffmpeg failed: %v", err))
		return
	}

	e.updateJob(jobID, StatusEncoding, 100, "")
	e.finishJob(jobID, StatusCompleted, "")
}

// buildSequenceArgs assembles the ffmpeg invocation for one-after-another
// playback: each clip contributes its trim window as input options, the
// filter graph concatenates them, and the optional global window lands as
// output options.
func (e *Exporter) buildSequenceArgs(snap SequenceSnapshot, outputPath string, dims [2]int) []string {
	args := []string{"-y", "-progress", "pipe:1", "-nostats", "-v", "error"}

	for _, clip := range snap.Clips {
		args = append(args,
			"-ss", formatSeconds(clip.TrimStart),
			"-to", formatSeconds(clip.TrimEnd),
			"-i", clip.SourcePath,
		)
	}

	var filter strings.Builder
	for i := range snap.Clips {
		fmt.Fprintf(&filter, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[v%d];",
			i, dims[0], dims[1], dims[0], dims[1], i)
	}
	for i := range snap.Clips {
		fmt.Fprintf(&filter, "[v%d][%d:a]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(snap.Clips))

	args = append(args, "-filter_complex", filter.String(), "-map", "[outv]", "-map", "[outa]")

	if snap.TrimEnd > snap.TrimStart {
		args = append(args, "-ss", formatSeconds(snap.TrimStart), "-to", formatSeconds(snap.TrimEnd))
	}

	args = append(args, "-c:v", "libx264", "-preset", "medium", "-c:a", "aac", outputPath)
	return args
}

// buildCompositeArgs assembles the ffmpeg invocation for layered playback:
// tracks overlay a black canvas bottom-up in z order, delayed by their
// offsets, and each audio path carries the gain the mix policy assigns it.
func (e *Exporter) buildCompositeArgs(snap CompositeSnapshot, outputPath string, dims [2]int) []string {
	canvasW, canvasH := snap.CanvasW, snap.CanvasH
	if canvasW <= 0 || canvasH <= 0 {
		canvasW, canvasH = dims[0], dims[1]
	}

	args := []string{"-y", "-progress", "pipe:1", "-nostats", "-v", "error"}
	for _, t := range snap.Tracks {
		args = append(args, "-i", t.Clip.Path)
	}

	gains := audiomix.EffectiveGains(snap.Tracks, snap.SoloTrackID)
	duration := snap.Duration()

	var filter strings.Builder
	fmt.Fprintf(&filter, "color=c=black:s=%dx%d:d=%s[base];", canvasW, canvasH, formatSeconds(duration))

	prev := "base"
	audible := 0
	var audioLabels []string
	for i, t := range snap.Tracks {
		if !t.Visible {
			continue
		}
		offset := float64(t.OffsetMs) / 1000.0
		end := float64(t.EndMs()) / 1000.0

		fmt.Fprintf(&filter, "[%d:v]setpts=PTS-STARTPTS+%s/TB,format=yuva420p,colorchannelmixer=aa=%s[l%d];",
			i, formatSeconds(offset), formatFloat(t.Opacity), i)
		fmt.Fprintf(&filter, "[%s][l%d]overlay=%d:%d:enable='between(t,%s,%s)'[m%d];",
			prev, i, int(t.Position.X), int(t.Position.Y), formatSeconds(offset), formatSeconds(end), i)
		prev = fmt.Sprintf("m%d", i)

		if gain := gains[t.ID]; gain > 0 {
			fmt.Fprintf(&filter, "[%d:a]adelay=%d|%d,volume=%s[a%d];", i, t.OffsetMs, t.OffsetMs, formatFloat(gain), i)
			audioLabels = append(audioLabels, fmt.Sprintf("[a%d]", i))
			audible++
		}
	}

	args = append(args, "-filter_complex")
	if audible > 0 {
		fmt.Fprintf(&filter, "%samix=inputs=%d:normalize=0[outa]", strings.Join(audioLabels, ""), audible)
		args = append(args, filter.String(), "-map", fmt.Sprintf("[%s]", prev), "-map", "[outa]")
	} else {
		filterStr := strings.TrimSuffix(filter.String(), ";")
		args = append(args, filterStr, "-map", fmt.Sprintf("[%s]", prev), "-an")
	}

	args = append(args, "-t", formatSeconds(duration), "-c:v", "libx264", "-preset", "medium", "-c:a", "aac", outputPath)
	return args
}

// Cancel aborts a pending or running export job
func (e *Exporter) Cancel(jobID string) bool {
	e.jobsMux.Lock()
	defer e.jobsMux.Unlock()

	cancel, exists := e.cancels[jobID]
	if !exists {
		return false
	}
	job := e.jobs[jobID]
	if job.Status == StatusCompleted || job.Status == StatusFailed {
		return false
	}
	cancel()
	return true
}

// GetJob returns an export job by ID
func (e *Exporter) GetJob(jobID string) (*ExportJob, bool) {
	e.jobsMux.RLock()
	defer e.jobsMux.RUnlock()

	job, exists := e.jobs[jobID]
	if !exists {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// GetAllJobs returns all export jobs
func (e *Exporter) GetAllJobs() []*ExportJob {
	e.jobsMux.RLock()
	defer e.jobsMux.RUnlock()

	jobs := make([]*ExportJob, 0, len(e.jobs))
	for _, job := range e.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs
}

// CleanupCompletedJobs removes finished jobs older than maxAge
func (e *Exporter) CleanupCompletedJobs(maxAge time.Duration) {
	e.jobsMux.Lock()
	defer e.jobsMux.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range e.jobs {
		done := job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled
		if done && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(e.jobs, id)
			delete(e.cancels, id)
		}
	}
}

func (e *Exporter) resolvePreset(preset string) [2]int {
	if preset == "" {
		preset = e.preset
	}
	if dims, ok := presets[preset]; ok {
		return dims
	}
	return presets["1080p"]
}

func (e *Exporter) outputPath(name string) string {
	name = sanitizeFilename(name)
	if name == "" {
		name = fmt.Sprintf("export-%d", time.Now().Unix())
	}
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	return filepath.Join(e.outputDir, name)
}

func (e *Exporter) updateJob(jobID string, status ExportStatus, progress int, errMsg string) {
	e.jobsMux.Lock()
	defer e.jobsMux.Unlock()

	if job, exists := e.jobs[jobID]; exists {
		job.Status = status
		if progress > job.Progress {
			job.Progress = progress
		}
		if errMsg != "" {
			job.Error = errMsg
		}
	}
}

func (e *Exporter) finishJob(jobID string, status ExportStatus, errMsg string) {
	e.jobsMux.Lock()
	job, exists := e.jobs[jobID]
	if exists {
		job.Status = status
		if errMsg != "" {
			job.Error = errMsg
		}
		now := time.Now()
		job.CompletedAt = &now
	}
	e.jobsMux.Unlock()

	if exists {
		e.logger.WithFields(logrus.Fields{
			"job_id": jobID,
			"status": status,
		}).Info("Export job finished")
	}
}

// progressPercent parses one line of ffmpeg -progress output and converts
// the elapsed encoded time into a percentage of the snapshot duration.
func progressPercent(line string, totalSeconds float64) (int, bool) {
	if totalSeconds <= 0 {
		return 0, false
	}
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || key != "out_time_us" {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	pct := int(float64(us) / 1e6 / totalSeconds * 100)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// sanitizeFilename removes invalid characters from filenames
func sanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.TrimSpace(result)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
