package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"framecut/pkg/models"
)

// handleGetComposite returns the full composite state
func (s *EditorServer) handleGetComposite(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	state := s.composite.State()
	response := map[string]interface{}{
		"state":         state,
		"totalDuration": s.composite.TotalDurationMs(),
	}
	json.NewEncoder(w).Encode(response)
}

// handleAddTrack adds a library source as a new composite layer
func (s *EditorServer) handleAddTrack(w http.ResponseWriter, r *http.Request) {
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

	source, err := s.library.Get(req.SourceID)
	if err != nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}
	if source.Duration == nil {
		http.Error(w, "Source metadata not yet available", http.StatusConflict)
		return
	}

	clip := models.ClipData{
		Path:       source.Path,
		Name:       source.Name,
		DurationMs: int64(*source.Duration * 1000),
		Duration:   *source.Duration,
	}
	if source.Resolution != nil {
		clip.Width = source.Resolution.Width
		clip.Height = source.Resolution.Height
	}

	track := s.composite.AddTrack(source.ID, clip)
	json.NewEncoder(w).Encode(track)
}

// handleTrack dispatches per-track operations by sub-path
func (s *EditorServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[4] == "" {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}
	trackID := pathParts[4]

	w.Header().Set("Content-Type", "application/json")

	action := ""
	if len(pathParts) >= 6 {
		action = pathParts[5]
	}

	switch {
	case action == "" && r.Method == "GET":
		track, err := s.composite.GetTrack(trackID)
		if err != nil {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(track)

	case action == "" && r.Method == "DELETE":
		if err := s.composite.RemoveTrack(trackID); err != nil {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "removed", "id": trackID})

	case action == "update" && r.Method == "POST":
		s.handleTrackUpdate(w, r, trackID)

	case action == "visibility" && r.Method == "POST":
		s.applyTrackAction(w, trackID, s.composite.ToggleVisibility)

	case action == "solo" && r.Method == "POST":
		s.applyTrackAction(w, trackID, s.composite.ToggleSolo)

	case action == "select" && r.Method == "POST":
		s.applyTrackAction(w, trackID, s.composite.SelectTrack)

	case action == "reorder" && r.Method == "POST":
		var req struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if err := s.composite.ReorderTrack(trackID, req.Index); err != nil {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(s.composite.State())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTrackUpdate applies any combination of per-track property changes
func (s *EditorServer) handleTrackUpdate(w http.ResponseWriter, r *http.Request, trackID string) {
	var req struct {
		Position *models.Position `json:"position,omitempty"`
		Volume   *float64         `json:"volume,omitempty"`
		Opacity  *float64         `json:"opacity,omitempty"`
		OffsetMs *int64           `json:"offset,omitempty"`
		Duration *int64           `json:"duration,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Position != nil {
		if err := s.composite.SetPosition(trackID, *req.Position); err != nil {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
	}
	if req.Volume != nil {
		s.composite.SetVolume(trackID, *req.Volume)
	}
	if req.Opacity != nil {
		s.composite.SetOpacity(trackID, *req.Opacity)
	}
	if req.OffsetMs != nil {
		s.composite.SetOffset(trackID, *req.OffsetMs)
	}
	if req.Duration != nil {
		s.composite.SetDuration(trackID, *req.Duration)
	}

	track, err := s.composite.GetTrack(trackID)
	if err != nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(track)
}

func (s *EditorServer) applyTrackAction(w http.ResponseWriter, trackID string, action func(string) error) {
	if err := action(trackID); err != nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(s.composite.State())
}

// handleCompositePlayback updates the shared composite clock and play flag
func (s *EditorServer) handleCompositePlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		IsPlaying   *bool  `json:"isPlaying,omitempty"`
		CurrentTime *int64 `json:"currentTime,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.IsPlaying != nil {
		s.composite.SetPlaying(*req.IsPlaying)
	}
	if req.CurrentTime != nil {
		s.composite.SetCurrentTime(*req.CurrentTime)
	}

	json.NewEncoder(w).Encode(s.composite.State())
}

// handleCompositeSync takes the per-track positions reported by the shell's
// media elements and answers with the authoritative time and the drift
// corrections to apply.
func (s *EditorServer) handleCompositeSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		Positions map[string]int64 `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	state := s.composite.State()
	response := map[string]interface{}{
		"corrections": []interface{}{},
	}

	global, ok := s.syncCtl.AuthoritativeTime(state.Tracks, req.Positions)
	if ok {
		s.composite.SetCurrentTime(global)
		response["authoritativeTime"] = global
		response["corrections"] = s.syncCtl.Corrections(global, state.Tracks, req.Positions)
	}

	json.NewEncoder(w).Encode(response)
}

// handleCompositeSeek recomputes every track's local position for a jump to
// a new composite time.
func (s *EditorServer) handleCompositeSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		CurrentTime int64 `json:"currentTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.composite.SetCurrentTime(req.CurrentTime)
	state := s.composite.State()

	response := map[string]interface{}{
		"currentTime": state.CurrentTimeMs,
		"targets":     s.syncCtl.SeekTargets(state.CurrentTimeMs, state.Tracks),
	}
	json.NewEncoder(w).Encode(response)
}

// handleCompositeGains returns the effective audio gain per track
func (s *EditorServer) handleCompositeGains(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Gains())
}

// handleLoadOrder returns the staged resource loading order for tracks
func (s *EditorServer) handleLoadOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.composite.LoadOrder())
}
