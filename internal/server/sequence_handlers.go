package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"framecut/internal/sequence"
	"framecut/pkg/models"
)

// sequenceErrorStatus maps engine errors to HTTP status codes
func sequenceErrorStatus(err error) int {
	switch {
	case errors.Is(err, sequence.ErrClipNotFound):
		return http.StatusNotFound
	case errors.Is(err, sequence.ErrTrimTooShort), errors.Is(err, sequence.ErrSplitNearBoundary):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sequence.ErrMetadataPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleGetSequence returns the timeline in playback order
func (s *EditorServer) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"clips":         s.sequence.Clips(),
		"totalDuration": s.sequence.TotalDuration(),
	}
	json.NewEncoder(w).Encode(response)
}

// handleAddSequenceClip appends a library source to the end of the timeline
func (s *EditorServer) handleAddSequenceClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		SourceID string `json:"sourceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SourceID == "" {
		http.Error(w, "sourceId is required", http.StatusBadRequest)
		return
	}

	source, err := s.library.Get(req.SourceID)
	if err != nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}

	clip, err := s.sequence.AddClip(source.ID, source.Path, source.Name)
	if err != nil {
		http.Error(w, "Error adding clip", http.StatusInternalServerError)
		return
	}

	// If the source is already probed the clip gets its metadata right away;
	// otherwise it stays pending until the probe completes.
	if source.Duration != nil {
		if err := s.sequence.UpdateMetadata(clip.ID, *source.Duration, source.Resolution); err == nil {
			clip, _ = s.sequence.Get(clip.ID)
		}
	}

	json.NewEncoder(w).Encode(clip)
}

// handleSequenceClip dispatches per-clip operations by sub-path
func (s *EditorServer) handleSequenceClip(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[4] == "" {
		http.Error(w, "Invalid clip ID", http.StatusBadRequest)
		return
	}
	clipID := pathParts[4]

	w.Header().Set("Content-Type", "application/json")

	action := ""
	if len(pathParts) >= 6 {
		action = pathParts[5]
	}

	switch {
	case action == "" && r.Method == "GET":
		clip, err := s.sequence.Get(clipID)
		if err != nil {
			http.Error(w, "Clip not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(clip)

	case action == "" && r.Method == "DELETE":
		if err := s.sequence.Remove(clipID); err != nil {
			http.Error(w, "Clip not found", http.StatusNotFound)
			return
		}
		s.clock.EnsureValid()
		json.NewEncoder(w).Encode(map[string]string{"status": "removed", "id": clipID})

	case action == "trim" && r.Method == "POST":
		s.handleTrim(w, r, clipID)

	case action == "reset-trim" && r.Method == "POST":
		if err := s.sequence.ResetTrim(clipID); err != nil {
			http.Error(w, err.Error(), sequenceErrorStatus(err))
			return
		}
		s.clock.EnsureValid()
		clip, _ := s.sequence.Get(clipID)
		json.NewEncoder(w).Encode(clip)

	case action == "reorder" && r.Method == "POST":
		s.handleReorder(w, r, clipID)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *EditorServer) handleTrim(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		TrimStart float64 `json:"trimStart"`
		TrimEnd   float64 `json:"trimEnd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sequence.UpdateTrim(clipID, req.TrimStart, req.TrimEnd); err != nil {
		http.Error(w, err.Error(), sequenceErrorStatus(err))
		return
	}
	s.clock.EnsureValid()
	clip, _ := s.sequence.Get(clipID)
	json.NewEncoder(w).Encode(clip)
}

func (s *EditorServer) handleReorder(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sequence.Reorder(clipID, req.Index); err != nil {
		http.Error(w, err.Error(), sequenceErrorStatus(err))
		return
	}
	// The playhead may now point into a different clip, or none.
	s.clock.EnsureValid()
	json.NewEncoder(w).Encode(s.sequence.Clips())
}

// handleInsertAtTime drops a library source onto the timeline at a given time
func (s *EditorServer) handleInsertAtTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		SourceID string  `json:"sourceId"`
		DropTime float64 `json:"dropTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	source, err := s.library.Get(req.SourceID)
	if err != nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}

	template := models.SequenceClip{
		SourceID:   source.ID,
		SourcePath: source.Path,
		Name:       source.Name,
	}
	if source.Duration != nil {
		template.Duration = *source.Duration
		template.TrimEnd = *source.Duration
		template.Resolution = source.Resolution
	}

	clip, err := s.sequence.InsertAtTime(template, req.DropTime)
	if err != nil {
		http.Error(w, err.Error(), sequenceErrorStatus(err))
		return
	}
	s.clock.EnsureValid()
	json.NewEncoder(w).Encode(clip)
}

// handleSplit starts an asynchronous split job
func (s *EditorServer) handleSplit(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		ClipID    string  `json:"clipId"`
		SplitTime float64 `json:"splitTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ClipID == "" {
		http.Error(w, "clipId is required", http.StatusBadRequest)
		return
	}

	job, err := s.splitter.Split(req.ClipID, req.SplitTime)
	if err != nil {
		response := map[string]interface{}{
			"error": fmt.Sprintf("Split rejected: %v", err),
		}
		w.WriteHeader(sequenceErrorStatus(err))
		json.NewEncoder(w).Encode(response)
		return
	}

	response := map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Split started successfully",
	}
	json.NewEncoder(w).Encode(response)
}

// handleGetSplits lists split jobs, or cleans up finished ones on DELETE
func (s *EditorServer) handleGetSplits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodDelete {
		ageStr := r.URL.Query().Get("age")
		ageMinutes := 60
		if ageStr != "" {
			fmt.Sscanf(ageStr, "%d", &ageMinutes)
		}
		if ageMinutes < 1 {
			ageMinutes = 1
		}
		s.splitter.CleanupCompletedJobs(time.Duration(ageMinutes) * time.Minute)
		json.NewEncoder(w).Encode(map[string]any{"message": "cleanup complete", "age_minutes": ageMinutes})
		return
	}

	json.NewEncoder(w).Encode(s.splitter.GetAllJobs())
}

// handleSplitJob returns or cancels a specific split job
func (s *EditorServer) handleSplitJob(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[4] == "" {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}
	jobID := pathParts[4]

	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case "GET":
		job, exists := s.splitter.GetJob(jobID)
		if !exists {
			http.Error(w, "Split job not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(job)

	case "DELETE":
		if !s.splitter.Cancel(jobID) {
			http.Error(w, "Split job not found or already finished", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelling", "job_id": jobID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
