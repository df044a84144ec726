package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
)

// startPprof serves the Go profiling endpoints on localhost:6060 for
// diagnosing capture-loop stalls and worker leaks on a live session. Only
// started when PprofEnabled is set.
func startPprof() {
	go func() {
		addr := "localhost:6060"
		Logger().Info("pprof_server_start", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
