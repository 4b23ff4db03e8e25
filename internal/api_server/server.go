package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/config"
	handlers "github.com/sitescan/sitescan/internal/handlers/v1alpha1"
	"github.com/sitescan/sitescan/internal/scan/jobs"
	"github.com/sitescan/sitescan/internal/service"
	"github.com/sitescan/sitescan/internal/sitemap"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
}

// New returns a new instance of a sitescan API server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()
	router.Use(
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{s.cfg.Service.BaseUrl},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	// pgx pool for the job queue (river needs LISTEN/NOTIFY)
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		s.cfg.Database.Hostname,
		s.cfg.Database.User,
		s.cfg.Database.Password,
		s.cfg.Database.Port,
		s.cfg.Database.Name,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse pgx config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer dbPool.Close()

	queueClient, err := jobs.NewClient(ctx, dbPool, s.store, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to create queue client: %w", err)
	}

	if err := queueClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue client: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queueClient.Stop(stopCtx); err != nil {
			zap.S().Named("api_server").Warnw("failed to stop queue client", "error", err)
		}
	}()

	zap.S().Named("api_server").Info("Job queue initialized")

	creditSrv := service.NewCreditService(s.store, s.cfg.Scanner.SignupBonus, s.cfg.Scanner.MaxTopUp)
	scanSrv := service.NewScanService(
		s.store,
		sitemap.NewResolver(sitemap.WithMaxURLs(s.cfg.Scanner.MaxUrlsPerScan)),
		queueClient,
		creditSrv,
	)
	jobSrv := service.NewJobService(s.store)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Group(func(r chi.Router) {
		r.Use(auth.Identity)
		handlers.NewServiceHandler(scanSrv, creditSrv, jobSrv).RegisterRoutes(r)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
