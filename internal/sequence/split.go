package sequence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SplitStatus represents the status of an asynchronous split job
type SplitStatus string

const (
	SplitPending   SplitStatus = "pending"
	SplitRunning   SplitStatus = "splitting"
	SplitCompleted SplitStatus = "completed"
	SplitFailed    SplitStatus = "failed"
	SplitCancelled SplitStatus = "cancelled"
)

// SplitJob represents one split request. Splits are modeled as jobs because
// the backend may need to precompute keyframe data before the cut lands.
type SplitJob struct {
	ID          string      `json:"id"`
	ClipID      string      `json:"clipId"`
	SplitTime   float64     `json:"splitTime"`
	Status      SplitStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	FirstID     string      `json:"firstClipId,omitempty"`
	SecondID    string      `json:"secondClipId,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Preparer is the backend hook invoked before a split is applied. A nil
// Preparer means the split applies immediately.
type Preparer func(ctx context.Context, sourcePath string, splitPoint float64) error

// Splitter runs split jobs against an engine. The timeline mutation itself
// is atomic inside the engine; the job wrapper only exists so slow backend
// precomputation never blocks the caller.
type Splitter struct {
	engine  *Engine
	prepare Preparer
	logger  *logrus.Logger

	jobs    map[string]*SplitJob
	cancels map[string]context.CancelFunc
	jobsMux sync.RWMutex
}

// NewSplitter creates a splitter for the given engine
func NewSplitter(engine *Engine, prepare Preparer, logger *logrus.Logger) *Splitter {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Splitter{
		engine:  engine,
		prepare: prepare,
		logger:  logger,
		jobs:    make(map[string]*SplitJob),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Split validates the request, registers a job and applies the split in the
// background. Validation failures are reported synchronously so the UI can
// surface them without polling.
func (s *Splitter) Split(clipID string, splitTime float64) (*SplitJob, error) {
	if _, err := s.engine.ValidateSplit(clipID, splitTime); err != nil {
		return nil, err
	}

	job := &SplitJob{
		ID:        uuid.New().String(),
		ClipID:    clipID,
		SplitTime: splitTime,
		Status:    SplitPending,
		CreatedAt: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.jobsMux.Lock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
	s.jobsMux.Unlock()

	go s.run(ctx, job.ID)
	return job, nil
}

// run executes one split job to completion or cancellation
func (s *Splitter) run(ctx context.Context, jobID string) {
	s.jobsMux.RLock()
	job, exists := s.jobs[jobID]
	s.jobsMux.RUnlock()
	if !exists {
		return
	}

	s.setStatus(jobID, SplitRunning, "")

	if s.prepare != nil {
		clip, err := s.engine.Get(job.ClipID)
		if err != nil {
			// Clip vanished between validation and execution.
			s.finish(jobID, SplitFailed, err.Error())
			return
		}
		splitPoint := clip.TrimStart + (job.SplitTime - clip.StartTime)
		if err := s.prepare(ctx, clip.SourcePath, splitPoint); err != nil {
			if ctx.Err() != nil {
				s.finish(jobID, SplitCancelled, "")
				return
			}
			s.finish(jobID, SplitFailed, err.Error())
			return
		}
	}

	if ctx.Err() != nil {
		s.finish(jobID, SplitCancelled, "")
		return
	}

	first, second, err := s.engine.SplitAt(job.ClipID, job.SplitTime)
	if err != nil {
		s.finish(jobID, SplitFailed, err.Error())
		return
	}

	s.jobsMux.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.FirstID = first.ID
		j.SecondID = second.ID
	}
	s.jobsMux.Unlock()
	s.finish(jobID, SplitCompleted, "")
}

// Cancel aborts a pending or running split job. Completed jobs are left as-is.
func (s *Splitter) Cancel(jobID string) bool {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	cancel, exists := s.cancels[jobID]
	if !exists {
		return false
	}
	job := s.jobs[jobID]
	if job.Status == SplitCompleted || job.Status == SplitFailed {
		return false
	}
	cancel()
	return true
}

// GetJob returns a split job by ID
func (s *Splitter) GetJob(jobID string) (*SplitJob, bool) {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// GetAllJobs returns all split jobs
func (s *Splitter) GetAllJobs() []*SplitJob {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	jobs := make([]*SplitJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs
}

// CleanupCompletedJobs removes finished jobs older than maxAge
func (s *Splitter) CleanupCompletedJobs(maxAge time.Duration) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range s.jobs {
		done := job.Status == SplitCompleted || job.Status == SplitFailed || job.Status == SplitCancelled
		if done && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.cancels, id)
		}
	}
}

func (s *Splitter) setStatus(jobID string, status SplitStatus, errMsg string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Status = status
		if errMsg != "" {
			job.Error = errMsg
		}
	}
}

func (s *Splitter) finish(jobID string, status SplitStatus, errMsg string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	now := time.Now()
	job.CompletedAt = &now

	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":  jobID,
		"clip_id": job.ClipID,
		"status":  status,
	}).Info("Split job finished")
}
