package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	appalerts "github.com/bryanwahyu/evidence-triage/internal/application/alerts"
	appcases "github.com/bryanwahyu/evidence-triage/internal/application/cases"
	"github.com/bryanwahyu/evidence-triage/internal/application/correlate"
	appcrawl "github.com/bryanwahyu/evidence-triage/internal/application/crawlrun"
	"github.com/bryanwahyu/evidence-triage/internal/application/ingest"
	appwatch "github.com/bryanwahyu/evidence-triage/internal/application/watchlist"
	"github.com/bryanwahyu/evidence-triage/internal/config"
	openaic "github.com/bryanwahyu/evidence-triage/internal/infra/classifier/openai"
	"github.com/bryanwahyu/evidence-triage/internal/infra/crawler"
	mysqlp "github.com/bryanwahyu/evidence-triage/internal/infra/db/mysql"
	"github.com/bryanwahyu/evidence-triage/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/evidence-triage/internal/infra/storage"
	"github.com/bryanwahyu/evidence-triage/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if d := cfg.Database.Driver; d != "" && d != "mysql" {
		// postgres adapters cover evidence dan alert saja, belum full backend
		log.Fatalf("unsupported database driver %q", d)
	}

	ctx := context.Background()

	// connect MySQL
	db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql connect error: %v", err)
	}
	defer db.Close()

	// init repos
	evidenceRepo := mysqlp.NewEvidenceRepository(db)
	alertRepo := mysqlp.NewAlertRepository(db)
	watchRepo := mysqlp.NewWatchlistRepository(db)
	auditRepo := mysqlp.NewAuditRepository(db)
	ledger := mysqlp.NewCaseLedger(db)

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	clock := application.SystemClock{}

	// watchlist index, rebuilt from DB at startup
	watchSvc := &appwatch.Service{Repo: watchRepo, Audit: auditRepo, Clock: clock}
	if err := watchSvc.Load(ctx); err != nil {
		log.Fatalf("watchlist load error: %v", err)
	}

	// correlation engine consumes classified items from both pipelines
	correlateSvc := &correlate.Service{
		Alerts:    alertRepo,
		Watchlist: watchSvc,
		Clock:     clock,
	}

	opts := ingest.Options{
		BatchConcurrency: cfg.Ingest.BatchConcurrency,
		GlobalLimit:      int64(cfg.Ingest.GlobalLimit),
		MaxAttempts:      cfg.Ingest.MaxAttempts,
		BackoffBase:      cfg.IngestBackoff(),
	}

	// one registry for both pipelines, so batch status and cancel reach
	// crawl batches too
	batches := &ingest.Registry{}

	// archive pipeline: payload refs resolved to presigned URLs for the
	// external classifier
	classifier := openaic.NewClient(cfg.Classifier.APIKey, cfg.Classifier.Model, store)
	ingestSvc := &ingest.Service{
		Repo:       evidenceRepo,
		Classifier: classifier,
		Sink:       correlateSvc,
		Clock:      clock,
		Opts:       opts,
		Batches:    batches,
	}

	// crawl pipeline: same engine, pages classified by keyword match
	pageClassifier := &appcrawl.PageClassifier{
		Fetcher: crawler.NewFetcher(cfg.CrawlTimeout()),
		Keywords: func() []string {
			return append(watchSvc.Keywords(), cfg.Crawler.Keywords...)
		},
	}
	crawlSvc := &appcrawl.Service{
		Pipeline: &ingest.Service{
			Repo:       evidenceRepo,
			Classifier: pageClassifier,
			Sink:       correlateSvc,
			Clock:      clock,
			Opts:       opts,
			Batches:    batches,
		},
	}

	alertSvc := &appalerts.Service{Repo: alertRepo, Audit: auditRepo, Clock: clock}
	caseSvc := &appcases.Service{
		Ledger:   ledger,
		Evidence: evidenceRepo,
		Alerts:   alertRepo,
		Clock:    clock,
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		MaxAge:         300,
	}))

	capacity, refill := cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate
	if capacity <= 0 {
		capacity = 100
	}
	if refill <= 0 {
		refill = 50
	}
	mux.Use(middleware.RateLimitMiddleware(capacity, refill))

	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}

	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"mysql":           &middleware.DatabaseHealthChecker{DB: db},
		"watchlist_index": &middleware.IndexHealthChecker{Loaded: watchSvc.Loaded},
	}))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Mount("/", httpserver.NewRouter(ingestSvc, crawlSvc, alertSvc, watchSvc, caseSvc, store, auditRepo))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
