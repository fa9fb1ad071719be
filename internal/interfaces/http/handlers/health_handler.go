package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker checks one dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc struct {
	N string
	F func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.N }
func (c CheckFunc) Check(ctx context.Context) error { return c.F(ctx) }

// ComponentStatus is the result of one readiness check.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHealthHandler(version string, timeout time.Duration, checkers ...HealthChecker) *HealthHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthHandler{checkers: checkers, version: version, started: time.Now(), timeout: timeout}
}

// Liveness reports that the process is serving requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Readiness runs every checker concurrently and answers 503 if any fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ComponentStatus, len(h.checkers))
	)
	for _, chk := range h.checkers {
		wg.Add(1)
		go func(chk HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := chk.Check(ctx)
			st := ComponentStatus{Status: "up", Latency: time.Since(start).String()}
			if err != nil {
				st.Status = "down"
				st.Error = err.Error()
			}
			mu.Lock()
			out[chk.Name()] = st
			mu.Unlock()
		}(chk)
	}
	wg.Wait()

	resp := HealthResponse{Status: "ready", Version: h.version, Components: out}
	code := http.StatusOK
	for _, st := range out {
		if st.Status != "up" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, resp)
}
