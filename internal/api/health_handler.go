package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-ai/internal/pkg/httputil"
	"github.com/ignite/newsletter-ai/internal/storage"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status   string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version  string                    `json:"version"`
	Uptime   string                    `json:"uptime"`
	Sessions int                       `json:"sessions"`
	Checks   map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is anything that can report reachability, such as the base API client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps lists the dependencies the checker probes. Any of them can be
// nil; the check then reports "not configured".
type HealthDeps struct {
	DB       *sql.DB
	Redis    *redis.Client
	S3       storage.BucketChecker
	S3Bucket string
	Backend  Pinger
	// Sessions reports the number of live editor sessions.
	Sessions func() int
}

// HealthChecker reports on the database, Redis, the recipient bucket and the
// newsletter base API.
type HealthChecker struct {
	deps      HealthDeps
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(deps HealthDeps) *HealthChecker {
	return &HealthChecker{deps: deps, startTime: time.Now()}
}

const (
	healthVersion = "1.0.0"
	notConfigured = "not configured"
)

// HandleHealth returns the status of every component. It always answers
// 200; the status field conveys health.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	status := HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	}
	if hc.deps.Sessions != nil {
		status.Sessions = hc.deps.Sessions()
	}
	httputil.OK(w, status)
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 4)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"s3", hc.checkS3(ctx)} }()
	go func() { ch <- result{"backend", hc.checkBackend(ctx)} }()

	checks := make(map[string]ComponentCheck, 4)
	for i := 0; i < 4; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// probe runs fn with a timeout and marks the component degraded when it
// answers slower than slow.
func probe(ctx context.Context, timeout, slow time.Duration, fn func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	if latency > slow {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("slow response (%s)", latency),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.deps.DB == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 3*time.Second, time.Second, hc.deps.DB.PingContext)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.deps.Redis == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
		return hc.deps.Redis.Ping(ctx).Err()
	})
}

func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.deps.S3 == nil || hc.deps.S3Bucket == "" {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	check := probe(ctx, 3*time.Second, 2*time.Second, func(ctx context.Context) error {
		return storage.CheckBucket(ctx, hc.deps.S3, hc.deps.S3Bucket)
	})
	if check.Status == "up" {
		check.Message = fmt.Sprintf("bucket %q accessible", hc.deps.S3Bucket)
	}
	return check
}

func (hc *HealthChecker) checkBackend(ctx context.Context) ComponentCheck {
	if hc.deps.Backend == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 6*time.Second, 2*time.Second, hc.deps.Backend.Ping)
}

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if the database or the base API is configured and down
//   - "degraded"  if any check is degraded or another configured check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	for _, critical := range []string{"database", "backend"} {
		if c, ok := checks[critical]; ok && c.Status == "down" && c.Message != notConfigured {
			return "unhealthy"
		}
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != notConfigured {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
