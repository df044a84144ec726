package web

import (
	"encoding/json"
	"net/http"
	"time"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type statusResponse struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host,omitempty"`
	Rotation  int    `json:"rotation"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Viewing   bool   `json:"viewing"`
	ReadOnly  bool   `json:"readOnly"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"ok":       true,
		"readOnly": s.cfg.ReadOnly,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	width, height := s.ctrl.Resolution()
	writeJSON(w, http.StatusOK, statusResponse{
		Connected: s.ctrl.Connected(),
		Host:      s.ctrl.Host(),
		Rotation:  s.ctrl.Rotation(),
		Width:     width,
		Height:    height,
		Viewing:   s.ctrl.Viewing(),
		ReadOnly:  s.cfg.ReadOnly,
	})
}

// handleScreenshot returns the most recent captured frame as PNG.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	data := s.ctrl.GetCurrentFrameBytes()
	if data == nil {
		writeAPIError(w, http.StatusNotFound, "NO_FRAME", "no frame captured yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
