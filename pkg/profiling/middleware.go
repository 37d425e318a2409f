package profiling

import (
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// Middleware provides profiling headers for HTTP handlers
type Middleware struct {
	enableProfiling bool
}

// NewMiddleware creates a new profiling middleware
func NewMiddleware(enableProfiling bool) *Middleware {
	return &Middleware{
		enableProfiling: enableProfiling,
	}
}

// ProfiledHandler wraps an HTTP handler with profiling capabilities. The
// measurements are sent as headers, so they are written before the handler
// writes its status.
func (m *Middleware) ProfiledHandler(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enableProfiling {
			handler.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		var startMemStats runtime.MemStats
		runtime.ReadMemStats(&startMemStats)

		w.Header().Set("X-Profiling-Enabled", "true")
		w.Header().Set("X-Handler-Name", name)
		w.Header().Set("X-Start-Time", startTime.Format(time.RFC3339Nano))
		w.Header().Set("X-Start-Goroutines", strconv.Itoa(runtime.NumGoroutine()))

		wrapped := &responseWriter{
			ResponseWriter: w,
			start:          startTime,
			startAlloc:     startMemStats.Alloc,
		}
		handler.ServeHTTP(wrapped, r)
	})
}

// responseWriter adds duration and memory headers at WriteHeader time
type responseWriter struct {
	http.ResponseWriter
	start       time.Time
	startAlloc  uint64
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	h := rw.Header()
	h.Set("X-Duration-Ms", strconv.FormatFloat(float64(time.Since(rw.start).Nanoseconds())/1000000.0, 'f', 3, 64))
	h.Set("X-Memory-Delta-Bytes", strconv.FormatInt(int64(m.Alloc)-int64(rw.startAlloc), 10))
	h.Set("X-Status-Code", strconv.Itoa(code))
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
