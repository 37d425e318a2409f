package profiling

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/config"
)

func TestProfiledHandlerHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	NewMiddleware(true).ProfiledHandler("test", inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	for _, h := range []string{"X-Handler-Name", "X-Duration-Ms", "X-Memory-Delta-Bytes", "X-Status-Code"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	rec = httptest.NewRecorder()
	NewMiddleware(false).ProfiledHandler("test", inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Profiling-Enabled") != "" {
		t.Error("profiling headers set while disabled")
	}
}

func TestRuntimeInfoIncludesRunStats(t *testing.T) {
	p := New(config.DefaultServerConfig(), func() lgadcore.RunStats { return lgadcore.RunStats{Events: 3} })
	info := p.RuntimeInfo()
	if s, ok := info["run"].(lgadcore.RunStats); !ok || s.Events != 3 {
		t.Errorf("run = %v", info["run"])
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestForceGC(t *testing.T) {
	if s := ForceGC(); s.NumGC == 0 {
		t.Error("no GC recorded after forcing one")
	}
}
