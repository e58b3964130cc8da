package server

import (
	"encoding/json"
	"net/http"
)

// handleGetPlayerState returns the current sequence playback state
func (s *EditorServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	state := s.clock.State()
	clipID, local, ok := s.clock.LocalTime()

	response := map[string]interface{}{
		"state": state,
	}
	if ok {
		response["activeClipId"] = clipID
		response["localTime"] = local
	}
	json.NewEncoder(w).Encode(response)
}

// handleUpdatePlayerState applies partial player state updates from the shell.
// A tick carries the media element's reported time; a seek moves the cursor
// directly; the rest are simple flag updates.
func (s *EditorServer) handleUpdatePlayerState(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req struct {
		IsPlaying *bool    `json:"isPlaying,omitempty"`
		Tick      *float64 `json:"tick,omitempty"`
		SeekTo    *float64 `json:"seekTo,omitempty"`
		Volume    *float64 `json:"volume,omitempty"`
		IsMuted   *bool    `json:"isMuted,omitempty"`
		TrimStart *float64 `json:"trimStart,omitempty"`
		TrimEnd   *float64 `json:"trimEnd,omitempty"`
		ClearTrim *bool    `json:"clearTrim,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.WithError(err).Debug("Error decoding player state JSON")
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.IsPlaying != nil {
		s.clock.SetPlaying(*req.IsPlaying)
	}

	if req.Volume != nil || req.IsMuted != nil {
		currentState := s.clock.State()
		volume := currentState.Volume
		isMuted := currentState.IsMuted

		if req.Volume != nil {
			volume = *req.Volume
		}
		if req.IsMuted != nil {
			isMuted = *req.IsMuted
		}
		s.clock.SetVolume(volume, isMuted)
	}

	if req.ClearTrim != nil && *req.ClearTrim {
		s.clock.ClearTrimWindow()
	} else if req.TrimStart != nil && req.TrimEnd != nil {
		s.clock.SetTrimWindow(*req.TrimStart, *req.TrimEnd)
	}

	state := s.clock.State()
	if req.SeekTo != nil {
		state = s.clock.Seek(*req.SeekTo)
	} else if req.Tick != nil {
		state = s.clock.Tick(*req.Tick)
	}

	json.NewEncoder(w).Encode(state)
}
