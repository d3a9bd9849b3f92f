package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthHealthy   = "healthy"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"

	probeTimeout = 3 * time.Second
)

// Pinger is an optional dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is one dependency reported by /health. A failing critical probe
// makes the service unhealthy; any other failure only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type HealthResponse struct {
	Status  string                 `json:"status"`
	Time    string                 `json:"time"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks"`
}

type HealthController struct {
	probes  []Probe
	version string
}

func NewHealthController(version string, probes ...Probe) *HealthController {
	return &HealthController{probes: probes, version: version}
}

// healthProbes builds the probes for the configured dependencies.
func healthProbes(cfg RouterConfig) []Probe {
	var probes []Probe
	if cfg.Database != nil {
		probes = append(probes, Probe{Name: "database", Critical: true, Check: cfg.Database.Ping})
	}
	if cfg.TaskPinger != nil {
		probes = append(probes, Probe{Name: "tasks", Check: cfg.TaskPinger.Ping})
	}
	if cfg.ReportsDir != "" {
		probes = append(probes, Probe{Name: "reports", Check: dirWritable(cfg.ReportsDir)})
	}
	return probes
}

// dirWritable fails unless dir exists and a file can be created in it. The
// overdue report task writes there.
func dirWritable(dir string) func(context.Context) error {
	return func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.New(dir + " is not a directory")
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return err
		}
		name := f.Name()
		f.Close()
		return os.Remove(filepath.Clean(name))
	}
}

// Status runs every probe concurrently and answers 503 when a critical one
// fails.
func (h *HealthController) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	results := make([]CheckResult, len(h.probes))
	var wg sync.WaitGroup
	for i, p := range h.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = runProbe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	resp := HealthResponse{
		Status:  healthHealthy,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: h.version,
		Checks:  make(map[string]CheckResult, len(h.probes)),
	}
	for i, p := range h.probes {
		res := results[i]
		resp.Checks[p.Name] = res
		if res.Error == "" {
			continue
		}
		switch {
		case p.Critical:
			resp.Status = healthUnhealthy
		case resp.Status == healthHealthy:
			resp.Status = healthDegraded
		}
	}

	code := http.StatusOK
	if resp.Status == healthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.IndentedJSON(code, resp)
}

func runProbe(ctx context.Context, p Probe) CheckResult {
	start := time.Now()
	err := p.Check(ctx)
	res := CheckResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func (h *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
