package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ubillity/internal/core"
	"ubillity/internal/log"
	"ubillity/internal/metrics"
	"ubillity/internal/middleware/ratelimit"
	"ubillity/internal/middleware/security"
	"ubillity/internal/middleware/trace"
	"ubillity/internal/services"
	appweb "ubillity/web"
)

// BillService is the domain layer both transports call.
type BillService interface {
	CreateBill(ctx context.Context, in core.BillInput) (services.CreateResult, error)
	ListBills(ctx context.Context) ([]core.Bill, error)
	GetBill(ctx context.Context, id int64) (core.Bill, error)
	Series(ctx context.Context, b core.Bill) ([]core.Bill, error)
	UpdateBill(ctx context.Context, id int64, in core.BillInput, partial bool) (core.Bill, error)
	DeleteBill(ctx context.Context, id int64, deleteSeries bool) (int64, error)
	Summary(ctx context.Context) (core.Summary, error)
	Ready(ctx context.Context) error
}

// Options configures the server beyond its bill service.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	HSTSEnabled        bool
	Logger             *log.Logger
}

type Server struct {
	http.Server
	bills     BillService
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(bills BillService, opts Options) *Server {
	mux := http.NewServeMux()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:           opts.Addr,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		bills:    bills,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/bills/", http.StatusFound)
	})

	s.registerAPI(mux)
	s.registerForms(mux)
	mux.HandleFunc("/", s.handleNotFound)

	headersCfg := security.DefaultHeadersConfig()
	headersCfg.ForceHSTS = opts.HSTSEnabled

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, ratelimit.MutatingOnly, s.rejectRateLimited)(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(logger.WithComponent(log.ComponentHTTP))(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(headersCfg).Middleware(h)
	s.Handler = h

	return s
}

func (s *Server) registerAPI(mux *http.ServeMux) {
	for _, base := range []string{"/api/bills", "/api/bills/{$}"} {
		mux.HandleFunc("GET "+base, s.handleAPIListBills)
		mux.HandleFunc("POST "+base, s.handleAPICreateBill)
		rejectMethods(mux, base, "GET, POST", http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
	for _, path := range []string{"/api/bills/summary", "/api/bills/summary/{$}"} {
		mux.HandleFunc("GET "+path, s.handleAPISummary)
		rejectMethods(mux, path, "GET", http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
	for _, item := range []string{"/api/bills/{id}", "/api/bills/{id}/{$}"} {
		mux.HandleFunc("GET "+item, s.handleAPIGetBill)
		mux.HandleFunc("PUT "+item, s.handleAPIUpdateBill(false))
		mux.HandleFunc("PATCH "+item, s.handleAPIUpdateBill(true))
		mux.HandleFunc("DELETE "+item, s.handleAPIDeleteBill)
		rejectMethods(mux, item, "GET, PUT, PATCH, DELETE", http.MethodPost)
	}
}

// rejectMethods answers the given methods on path with a JSON 405.
// Method-less patterns would conflict with the literal GET routes.
func rejectMethods(mux *http.ServeMux, path, allow string, methods ...string) {
	for _, m := range methods {
		mux.HandleFunc(m+" "+path, handleAPIMethodNotAllowed(allow))
	}
}

func (s *Server) registerForms(mux *http.ServeMux) {
	mux.HandleFunc("GET /bills", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/bills/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("GET /bills/{$}", s.handleListPage)
	mux.HandleFunc("POST /bills/{$}", s.handleCreateForm)
	mux.HandleFunc("GET /bills/new", s.handleNewPage)
	mux.HandleFunc("GET /bills/{id}", s.handleDetailPage)
	mux.HandleFunc("POST /bills/{id}", s.handleUpdateForm)
	mux.HandleFunc("GET /bills/{id}/edit", s.handleEditPage)
	mux.HandleFunc("GET /bills/{id}/delete", s.handleDeletePage)
	mux.HandleFunc("POST /bills/{id}/delete", s.handleDeleteForm)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	if isAPIRequest(r) {
		TooManyRequestsError().Write(w)
		return
	}
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}

func isAPIRequest(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.bills.Ready(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		NotFoundError("not found").Write(w)
		return
	}
	s.renderNotFound(w, r)
}

var templateFuncs = template.FuncMap{
	"amount":       core.FormatAmount,
	"recurrenceID": recurrenceIDOf,
}

// render executes a page into a buffer so a template failure never sends a partial page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentTemplate)
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed", log.FieldError, err, "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.DebugContext(r.Context(), "Client went away while writing page", "error", err)
	}
}
