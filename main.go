package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"backoffice-ledger/internal/audit"
	"backoffice-ledger/internal/config"
	"backoffice-ledger/internal/ledger/application"
	ledgerpostgres "backoffice-ledger/internal/ledger/infrastructure/postgres"
	ledgerhttp "backoffice-ledger/internal/ledger/interfaces/http"
	"backoffice-ledger/internal/logging"
	"backoffice-ledger/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := logging.WithComponent("main")
		l.Fatal().Err(err).Msg("config load failed")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		l := logging.WithComponent("main")
		l.Fatal().Err(err).Msg("logger setup failed")
	}
	logger := logging.WithComponent("main")

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("db ping failed")
	}

	metrics.Init(db, logging.WithComponent("metrics"))
	auditRepo := audit.NewRepository(db)

	store, err := ledgerpostgres.NewStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	clock := application.SystemClock{}
	ids := application.UUIDFactory{}

	saleService, err := application.NewSaleService(store, clock, ids)
	if err != nil {
		logger.Fatal().Err(err).Msg("sale service init failed")
	}
	expenseService, err := application.NewExpenseService(store, clock, ids)
	if err != nil {
		logger.Fatal().Err(err).Msg("expense service init failed")
	}
	settlementService, err := application.NewSettlementService(store, clock, ids)
	if err != nil {
		logger.Fatal().Err(err).Msg("settlement service init failed")
	}
	stockService, err := application.NewStockService(store, clock, ids)
	if err != nil {
		logger.Fatal().Err(err).Msg("stock service init failed")
	}

	handler, err := ledgerhttp.NewHandler(
		saleService,
		expenseService,
		settlementService,
		stockService,
		auditRepo,
		logging.WithComponent("http"),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("handler init failed")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logging.WithComponent("http")))

	handler.Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	logger.Info().Str("addr", cfg.HTTPAddr).Str("currency", cfg.Currency).Msg("listening")
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			resp := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(resp, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", resp.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
