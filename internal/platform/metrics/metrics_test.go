package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.IncOperation("identity_create", "ok")
	r.IncOperation("identity_create", "ok")
	r.IncOperation("identity_create", "error")

	if got := r.Operation("identity_create", "ok"); got != 2 {
		t.Errorf("expected 2 ok creates, got %d", got)
	}
	if got := r.Operation("identity_create", "error"); got != 1 {
		t.Errorf("expected 1 failed create, got %d", got)
	}
	if got := r.Operation("merge", "ok"); got != 0 {
		t.Errorf("expected 0 for unseen operation, got %d", got)
	}
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IncOperation("match_run", "ok")
			}
		}()
	}
	wg.Wait()
	if got := r.Operation("match_run", "ok"); got != 5000 {
		t.Errorf("expected 5000, got %d", got)
	}
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("identities_total", 42)
	if got := r.Gauge("identities_total"); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	r.SetGauge("identities_total", 7)
	if got := r.Gauge("identities_total"); got != 7 {
		t.Errorf("gauge should overwrite, got %d", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	r := NewRegistry()
	r.IncOperation("identity_create", "ok")
	r.SetGauge("identities_total", 3)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := r.Handler()(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `mpi_operation_count{operation="identity_create",outcome="ok"} 1`) {
		t.Errorf("missing counter line:\n%s", body)
	}
	if !strings.Contains(body, "mpi_identities_total 3") {
		t.Errorf("missing gauge line:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE mpi_operation_count counter") {
		t.Errorf("missing TYPE header:\n%s", body)
	}
}
