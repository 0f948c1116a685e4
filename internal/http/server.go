package http

import (
	"context"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"finance/internal/cache"
	"finance/internal/config"
	"finance/internal/core"
	"finance/internal/log"
	"finance/internal/metrics"
	"finance/internal/middleware/ratelimit"
	"finance/internal/middleware/security"
	"finance/internal/middleware/trace"
	appweb "finance/web"
)

// readTimeout bounds the store and engine calls of a single request.
const readTimeout = 7 * time.Second

// Routes lists every pattern the server registers; the metrics path label
// is limited to these.
var Routes = []string{
	"/", "/chart_data", "/add_record", "/edit_record", "/delete_record",
	"/export_csv", "/healthz", "/readyz", "/metrics",
}

// RecordService is the single mutation path for records.
type RecordService interface {
	Create(ctx context.Context, rec core.Record) (core.Record, error)
	Update(ctx context.Context, rec core.Record) error
	Delete(ctx context.Context, kind core.Kind, id int64) error
	List(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error)
}

// ChartReader computes the aggregate view of a month.
type ChartReader interface {
	ChartData(ctx context.Context, period core.Period) (core.ChartData, error)
}

// ReportWriter writes the CSV export of a month and returns the row count.
type ReportWriter interface {
	WriteCSV(ctx context.Context, w io.Writer, period core.Period) (int, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the handlers call. Metrics and Health
// may be nil.
type Dependencies struct {
	Records  RecordService
	Reports  ChartReader
	Exporter ReportWriter
	Health   Pinger
	Metrics  *metrics.Metrics
}

type Server struct {
	http.Server
	templates *template.Template
	deps      Dependencies
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	chartCache       *cache.Loader[core.ChartData]
	cacheManager     *cache.Manager

	exposeDetail bool
	now          func() time.Time
	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(cfg *config.Config, deps Dependencies, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	cacheSize, cacheTTL := cfg.ChartCacheSize, cfg.ChartCacheTTL
	if cacheSize <= 0 {
		cacheSize = 64
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	chartLRU := cache.NewLRUCache[core.ChartData](cacheSize, cacheTTL)
	manager := cache.NewManager(logger)
	manager.Register(chartLRU)
	manager.StartCleanup(cacheTTL)

	s := &Server{
		Server: http.Server{
			Addr:              ":" + cfg.Port,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		deps:             deps,
		logger:           httpLogger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		chartCache:       cache.NewLoader[core.ChartData](chartLRU),
		cacheManager:     manager,
		exposeDetail:     cfg.ExposeErrorDetail,
		now:              time.Now,
		startedAt:        time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.WithComponent(log.ComponentTemplate).Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.Handler = s.middleware(mux, cfg.CORSAllowedOrigins)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleIndexForm)
	mux.HandleFunc("GET /chart_data", s.handleChartData)
	mux.HandleFunc("POST /add_record", s.handleAddRecord)
	mux.HandleFunc("PATCH /edit_record", s.handleEditRecord)
	mux.HandleFunc("POST /delete_record", s.handleDeleteRecord)
	mux.HandleFunc("GET /export_csv", s.handleExportCSV)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

// middleware wraps the mux, outermost first: trace, probe detection, CORS,
// security headers, rate limiting of mutating methods.
func (s *Server) middleware(mux http.Handler, origins []string) http.Handler {
	clientIP := s.securityDetector.ClientIP

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(clientIP, s.handleRateLimited,
		http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	if len(origins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPatch,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
			ExposedHeaders: []string{trace.HeaderRequestID, "Content-Disposition"},
			MaxAge:         600,
		}).Handler(h)
	}
	h = s.securityDetector.Middleware(s.logger)(h)

	var observer trace.Observer
	if s.deps.Metrics != nil {
		observer = s.deps.Metrics
	}
	return trace.NewMiddleware(s.logger, clientIP, observer).Middleware(h)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops the background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe runs until Shutdown; a clean stop returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting HTTP server", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// currentPeriod is the month of the server clock.
func (s *Server) currentPeriod() core.Period {
	return core.PeriodOf(s.now())
}
