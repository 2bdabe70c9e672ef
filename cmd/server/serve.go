package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/audit"
	"github.com/hangxigood/ERP-MES-sub000/internal/auth"
	"github.com/hangxigood/ERP-MES-sub000/internal/config"
	"github.com/hangxigood/ERP-MES-sub000/internal/db"
	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/metrics"
	"github.com/hangxigood/ERP-MES-sub000/internal/middleware"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

var (
	seedUsersFile string
	migrateOnBoot bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the audit HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&seedUsersFile, "users-file", "", "CSV of users to load into the in-memory directory")
	serveCmd.Flags().BoolVar(&migrateOnBoot, "migrate", false, "apply pending migrations before serving")
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.Storage.Type == "postgres" {
		if migrateOnBoot {
			if err := db.MigrateUp(cfg.Database); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()
		pool = conn.Pool
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	store, err := repository.NewStore(cfg.Storage.Type, pool)
	if err != nil {
		return err
	}
	if err := seedMemoryUsers(store); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := newAuditService(cfg.Audit, store, metrics.NewAudit(reg))
	if err != nil {
		return err
	}
	handler := audit.NewHTTPHandler(service, logger)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireActor)
		r.Use(middleware.DataLoaderMiddleware(store.Users))
		handler.RegisterHTTP(r)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", auth.HeaderUserID, auth.HeaderUserRole},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.LoggingMiddleware(logger)(corsHandler.Handler(router)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("audit API listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newAuditService(cfg config.AuditConfig, store repository.Store, m *metrics.Audit) (*audit.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return audit.NewService(
		store.Snapshots,
		store.Users,
		audit.WithLogger(logger),
		audit.WithMetrics(m),
		audit.WithMatchStrategy(domain.ParseFieldMatchStrategy(cfg.DiffStrategy)),
		audit.WithMaxWriteRetries(cfg.MaxWriteRetries),
		audit.WithPageSizes(cfg.DefaultPageSize, cfg.MaxPageSize),
		audit.WithLookupConcurrency(cfg.LookupConcurrency),
		audit.WithExportLimit(cfg.ExportLimit),
		audit.WithLocation(loc),
	), nil
}

func seedMemoryUsers(store repository.Store) error {
	if seedUsersFile == "" {
		return nil
	}
	dir, ok := store.Users.(*repository.MemoryUserDirectory)
	if !ok {
		return fmt.Errorf("--users-file only applies to memory storage, use `users import` for postgres")
	}

	users, err := readUsersFile(seedUsersFile)
	if err != nil {
		return err
	}
	for _, user := range users {
		dir.Put(user)
	}
	logger.Info("seeded user directory", "users", len(users), "file", seedUsersFile)
	return nil
}

func shutdownTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.ShutdownTimeout
}
