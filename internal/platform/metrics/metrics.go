// Package metrics provides operation counters and gauges for the MPI service
// with a Prometheus text exposition endpoint, using only standard library
// constructs -- no metrics SDK.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Registry holds all metric state for the service.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*int64
	gauges   map[string]*int64

	started time.Time
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*int64),
		gauges:   make(map[string]*int64),
		started:  time.Now(),
	}
}

func (r *Registry) counter(key string) *int64 {
	r.mu.RLock()
	p, ok := r.counters[key]
	r.mu.RUnlock()
	if ok {
		return p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.counters[key]; !ok {
		p = new(int64)
		r.counters[key] = p
	}
	return p
}

// IncOperation increments the mpi_operation_count counter for one operation
// and outcome ("ok" or "error").
func (r *Registry) IncOperation(operation, outcome string) {
	atomic.AddInt64(r.counter(operation+"|"+outcome), 1)
}

// Operation returns the current count for an operation/outcome pair.
func (r *Registry) Operation(operation, outcome string) int64 {
	r.mu.RLock()
	p, ok := r.counters[operation+"|"+outcome]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// SetGauge sets a named gauge value.
func (r *Registry) SetGauge(name string, val int64) {
	r.mu.RLock()
	p, ok := r.gauges[name]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if p, ok = r.gauges[name]; !ok {
			p = new(int64)
			r.gauges[name] = p
		}
		r.mu.Unlock()
	}
	atomic.StoreInt64(p, val)
}

// Gauge returns the current value of a named gauge.
func (r *Registry) Gauge(name string) int64 {
	r.mu.RLock()
	p, ok := r.gauges[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// Middleware counts http requests by method and status class.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			outcome := "ok"
			if err != nil || status >= 500 {
				outcome = "error"
			}
			r.IncOperation("http_"+strings.ToLower(c.Request().Method), outcome)
			return err
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP mpi_operation_count Total MPI operations by operation and outcome.\n")
		b.WriteString("# TYPE mpi_operation_count counter\n")
		r.mu.RLock()
		keys := make([]string, 0, len(r.counters))
		for k := range r.counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts := strings.SplitN(k, "|", 2)
			fmt.Fprintf(&b, "mpi_operation_count{operation=%q,outcome=%q} %d\n",
				parts[0], parts[1], atomic.LoadInt64(r.counters[k]))
		}
		gkeys := make([]string, 0, len(r.gauges))
		for k := range r.gauges {
			gkeys = append(gkeys, k)
		}
		r.mu.RUnlock()
		b.WriteByte('\n')

		sort.Strings(gkeys)
		for _, k := range gkeys {
			name := "mpi_" + k
			fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
			fmt.Fprintf(&b, "%s %d\n", name, r.Gauge(k))
		}

		fmt.Fprintf(&b, "# TYPE mpi_uptime_seconds gauge\nmpi_uptime_seconds %d\n",
			int64(time.Since(r.started).Seconds()))

		return c.String(http.StatusOK, b.String())
	}
}
