package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
	appweb "tally/web"
)

const shutdownTimeout = 10 * time.Second

// Ledger is what the UI needs from the ledger service.
type Ledger interface {
	Submit(ctx context.Context, book core.Book, in services.SubmitInput) (services.View, error)
	DeleteCell(ctx context.Context, book core.Book, date core.Date, category string) (services.View, error)
	DeleteCategory(ctx context.Context, book core.Book, category string) (services.View, error)
	DeleteEntry(ctx context.Context, book core.Book, id string) (services.View, error)
	DeleteByValue(ctx context.Context, book core.Book, f core.EntryFilter) (services.View, int, error)
	View(ctx context.Context) (services.View, error)
	Export(ctx context.Context, book core.Book) ([]core.Entry, error)
	Ready(ctx context.Context) error
}

var _ Ledger = (*services.LedgerService)(nil)

// Options tune a Server. Zero values select the defaults.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	Headers   *security.HeadersConfig
	// Templates and Static replace the embedded web assets.
	Templates fs.FS
	Static    fs.FS
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    Ledger
	logger    *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started time.Time
	now     func() time.Time
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	rlConfig := opts.RateLimit
	if rlConfig.Requests == 0 && len(rlConfig.Methods) == 0 {
		rlConfig = ratelimit.DefaultConfig()
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	s := &Server{
		ledger:   ledger,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(rlConfig),
		detector: security.NewDetector(),
		started:  time.Now(),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)

	templatesFS := opts.Templates
	if templatesFS == nil {
		templatesFS = appweb.TemplatesFS
	}
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		logger.WarnContext(context.Background(), "Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	staticFS := opts.Static
	if staticFS == nil {
		staticFS = appweb.StaticFS
	}
	if sub, err := fs.Sub(staticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssets(3600)(static))
	} else {
		logger.WarnContext(context.Background(), "Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/entries", s.handleSubmit)
	mux.HandleFunc("/entries/delete", s.handleDeleteEntry)
	mux.HandleFunc("/cells/delete", s.handleDeleteCell)
	mux.HandleFunc("/categories/delete", s.handleDeleteCategory)
	mux.HandleFunc("/ui/ledger", s.handleLedger)
	mux.HandleFunc("/export", s.handleExport)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ClientIP, s.onRateLimit)(h)
	h = s.detector.Middleware(h)
	h = security.Headers(headers)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.InfoContext(ctx, "HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.limiter.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.InfoContext(shutdownCtx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		Message(NotificationError, "Too many requests, slow down").
		TriggerErrorNotification("Too many requests, slow down").
		Write(w)
}
