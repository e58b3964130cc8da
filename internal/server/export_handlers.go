package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"framecut/internal/export"
)

// handleExportSequence starts a timeline encode job
func (s *EditorServer) handleExportSequence(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if s.exporter == nil {
		response := map[string]interface{}{
			"error": "Export functionality not available. Please install ffmpeg.",
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	var req struct {
		Name      string  `json:"name,omitempty"`
		Preset    string  `json:"preset,omitempty"`
		TrimStart float64 `json:"trimStart,omitempty"`
		TrimEnd   float64 `json:"trimEnd,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	snap := export.SequenceSnapshot{
		Clips:     s.sequence.Clips(),
		TrimStart: req.TrimStart,
		TrimEnd:   req.TrimEnd,
	}

	job, err := s.exporter.ExportSequence(snap, req.Name, req.Preset)
	if err != nil {
		response := map[string]interface{}{
			"error": fmt.Sprintf("Failed to start export: %v", err),
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(response)
		return
	}

	response := map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Export started successfully",
	}
	json.NewEncoder(w).Encode(response)
}

// handleExportComposite starts a layered composite encode job
func (s *EditorServer) handleExportComposite(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if s.exporter == nil {
		response := map[string]interface{}{
			"error": "Export functionality not available. Please install ffmpeg.",
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	var req struct {
		Name   string `json:"name,omitempty"`
		Preset string `json:"preset,omitempty"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	state := s.composite.State()
	snap := export.CompositeSnapshot{
		Tracks:      state.Tracks,
		SoloTrackID: state.SoloTrackID,
		CanvasW:     req.Width,
		CanvasH:     req.Height,
	}

	job, err := s.exporter.ExportComposite(snap, req.Name, req.Preset)
	if err != nil {
		response := map[string]interface{}{
			"error": fmt.Sprintf("Failed to start export: %v", err),
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(response)
		return
	}

	response := map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Export started successfully",
	}
	json.NewEncoder(w).Encode(response)
}

// handleGetExports lists export jobs, or cleans up finished ones on DELETE
func (s *EditorServer) handleGetExports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.exporter == nil {
		http.Error(w, "Exporter not available", http.StatusServiceUnavailable)
		return
	}

	if r.Method == http.MethodDelete {
		ageStr := r.URL.Query().Get("age")
		ageMinutes := 60
		if ageStr != "" {
			fmt.Sscanf(ageStr, "%d", &ageMinutes)
		}
		if ageMinutes < 1 {
			ageMinutes = 1
		}
		s.exporter.CleanupCompletedJobs(time.Duration(ageMinutes) * time.Minute)
		json.NewEncoder(w).Encode(map[string]any{"message": "cleanup complete", "age_minutes": ageMinutes})
		return
	}

	json.NewEncoder(w).Encode(s.exporter.GetAllJobs())
}

// handleExportJob returns or cancels a specific export job
func (s *EditorServer) handleExportJob(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		http.Error(w, "Exporter not available", http.StatusServiceUnavailable)
		return
	}

	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[4] == "" {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}
	jobID := pathParts[4]

	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case "GET":
		job, exists := s.exporter.GetJob(jobID)
		if !exists {
			http.Error(w, "Export job not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(job)

	case "DELETE":
		if !s.exporter.Cancel(jobID) {
			http.Error(w, "Export job not found or already finished", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelling", "job_id": jobID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
