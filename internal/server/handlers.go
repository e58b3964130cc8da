package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"framecut/internal/probe"
)

// handleHealthCheck reports engine liveness and basic counts
func (s *EditorServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status":  "ok",
		"sources": s.library.Count(),
		"clips":   s.sequence.Len(),
		"tracks":  len(s.composite.State().Tracks),
	}
	json.NewEncoder(w).Encode(response)
}

// handleGetLibrary returns all imported source clips
func (s *EditorServer) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.library.Clips())
}

// handleImportMedia imports a media file by path and probes its metadata
func (s *EditorServer) handleImportMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		Path string `json:"path"`
		Name string `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "Path is required", http.StatusBadRequest)
		return
	}
	if !probe.IsMediaFile(req.Path) {
		http.Error(w, "Unsupported media type", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		http.Error(w, "Media file not found", http.StatusNotFound)
		return
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}
	clip := s.library.Import(req.Path, name, info.Size())

	// Probe asynchronously; the client gets the unprobed entry immediately
	// and sees metadata arrive through a later poll.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := s.prober.Probe(ctx, req.Path)
		if err != nil {
			s.logger.WithError(err).WithField("file_path", req.Path).Warn("Probe failed for imported file")
			return
		}
		s.attachMetadata(clip.ID, result)
		if stored, err := s.library.Get(clip.ID); err == nil {
			s.db.UpsertSourceClip(stored)
		}
	}()

	json.NewEncoder(w).Encode(clip)
}

// handleLibraryItem handles GET and DELETE for a single source clip
func (s *EditorServer) handleLibraryItem(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 || pathParts[3] == "" {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}
	sourceID := pathParts[3]

	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case "GET":
		clip, err := s.library.Get(sourceID)
		if err != nil {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(clip)

	case "DELETE":
		if err := s.library.Remove(sourceID); err != nil {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "removed", "id": sourceID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStreamSource streams an individual source clip by ID with Range support.
func (s *EditorServer) handleStreamSource(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}
	sourceID := pathParts[2]

	clip, err := s.library.Get(sourceID)
	if err != nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}

	if err := s.streamFile(w, r, clip.Path, probe.ContentType(clip.Path)); err != nil {
		s.logger.WithError(err).WithField("source_id", sourceID).Error("Error streaming source")
		http.Error(w, "Error streaming media file", http.StatusInternalServerError)
		return
	}

	// The first successful fetch completes the source's media handle, which
	// the shell uses to bind its video elements without re-resolving paths.
	if clip.MediaHandle == "" {
		s.library.AttachHandle(sourceID, "/stream/"+sourceID)
	}
}

// handleSaveProject persists the full project state on demand
func (s *EditorServer) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := s.SaveProject(); err != nil {
		s.logger.WithError(err).Error("Failed to save project")
		http.Error(w, "Error saving project", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
}

// handleGetShare reports the share tunnel state
func (s *EditorServer) handleGetShare(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"enabled":    s.shareSvc != nil,
		"public_url": s.shareSvc.GetPublicURL(),
	}
	json.NewEncoder(w).Encode(response)
}
