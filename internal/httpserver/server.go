package httpserver

import (
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/runwhale/runwhale/internal/version"
)

// Health thresholds per indicator.
const (
	memoryLimitBytes   = 300 << 20 // heap and RSS must stay under 300 MiB
	minDiskFreePercent = 50.0
)

// Server holds the HTTP server dependencies. Router serves every route;
// NewServer does not set APIRouter, and authenticated domain handlers are
// mounted on Router inside a group that carries the auth middleware.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints. Authenticated routes are attached by the caller via Mount, after
// wrapping in the auth middleware chain.
func NewServer(corsOrigins []string, metricsPath string, logger *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoint (unauthenticated).
	s.Router.Get("/health", s.handleHealth)

	// Prometheus metrics (unauthenticated).
	s.Router.Handle(metricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// indicator is one health check outcome.
type indicator struct {
	Status string         `json:"status"` // "up" or "down"
	Detail map[string]any `json:"detail,omitempty"`
}

// healthResponse is the JSON shape returned by /health.
type healthResponse struct {
	Status        string               `json:"status"` // "ok" or "error"
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Indicators    map[string]indicator `json:"indicators"`
}

// handleHealth reports per-indicator status: database connectivity, heap and
// RSS under the memory limit, and disk at least half free. Any red indicator
// turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Indicators:    make(map[string]indicator),
	}

	// Database.
	dbInd := indicator{Status: "up"}
	if err := s.DB.Ping(r.Context()); err != nil {
		s.Logger.Error("health check: database ping failed", "error", err)
		dbInd = indicator{Status: "down", Detail: map[string]any{"error": err.Error()}}
	}
	resp.Indicators["database"] = dbInd

	// Heap.
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heapInd := indicator{Status: "up", Detail: map[string]any{"heap_mib": ms.HeapAlloc >> 20}}
	if ms.HeapAlloc > memoryLimitBytes {
		heapInd.Status = "down"
	}
	resp.Indicators["memory_heap"] = heapInd

	// RSS.
	rssInd := indicator{Status: "up"}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			rssInd.Detail = map[string]any{"rss_mib": mem.RSS >> 20}
			if mem.RSS > memoryLimitBytes {
				rssInd.Status = "down"
			}
		}
	}
	resp.Indicators["memory_rss"] = rssInd

	// Disk.
	diskInd := indicator{Status: "up"}
	if usage, err := disk.Usage("/"); err == nil {
		free := 100.0 - usage.UsedPercent
		diskInd.Detail = map[string]any{"free_percent": free}
		if free < minDiskFreePercent {
			diskInd.Status = "down"
		}
	}
	resp.Indicators["disk"] = diskInd

	status := http.StatusOK
	for _, ind := range resp.Indicators {
		if ind.Status != "up" {
			resp.Status = "error"
			status = http.StatusServiceUnavailable
			break
		}
	}

	Respond(w, status, resp)
}
