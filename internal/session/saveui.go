package session

import (
	"log/slog"
	"os"
	"path/filepath"
)

// CaptureUI performs one capture outside the viewing loop and returns the raw
// PNG bytes, or nil on failure.
func (s *Session) CaptureUI() []byte {
	disp := s.connectedDisplay()
	if disp == nil {
		return nil
	}
	data, err := disp.CaptureScreen()
	if err != nil {
		sessionLog.Error("capture_ui_failed", slog.String("error", err.Error()))
		return nil
	}
	return data
}

// SaveUI writes one capture to directory/filename. Refuses to overwrite an
// existing file, returning false instead of clobbering it.
func (s *Session) SaveUI(directory, filename string) bool {
	if directory == "" || filename == "" {
		sessionLog.Error("save_ui_invalid_target",
			slog.String("directory", directory), slog.String("filename", filename))
		return false
	}

	data := s.CaptureUI()
	if data == nil {
		return false
	}

	fullPath := filepath.Join(directory, filename)
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			sessionLog.Warn("save_ui_exists", slog.String("path", fullPath))
		} else {
			sessionLog.Error("save_ui_failed", slog.String("path", fullPath), slog.String("error", err.Error()))
		}
		return false
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		sessionLog.Error("save_ui_failed", slog.String("path", fullPath), slog.String("error", err.Error()))
		return false
	}

	sessionLog.Info("save_ui", slog.String("path", fullPath), slog.Int("bytes", len(data)))
	return true
}
