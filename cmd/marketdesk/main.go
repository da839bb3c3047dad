package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marketdesk/marketdesk/cmd/marketdesk/cli"
	"github.com/marketdesk/marketdesk/internal/app"
	"github.com/marketdesk/marketdesk/internal/auth"
	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/observability"
	"github.com/marketdesk/marketdesk/internal/pages"
	"github.com/marketdesk/marketdesk/internal/platform/cache"
	"github.com/marketdesk/marketdesk/internal/platform/db"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/roles"
	"github.com/marketdesk/marketdesk/internal/shared"
	"github.com/marketdesk/marketdesk/internal/stores"
	"github.com/marketdesk/marketdesk/internal/users"
	"github.com/marketdesk/marketdesk/jobs"
)

const sessionCookie = "marketdesk_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	capabilities := shared.Capabilities()
	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	auditLogger := shared.NewAuditLogger(dbpool)

	principalCache := users.NewPrincipalCache(redisClient, users.CacheConfig{
		LocalSize: cfg.PrincipalLocalSize,
		LocalTTL:  cfg.PrincipalLocalTTL,
		RedisTTL:  cfg.PrincipalCacheTTL,
	})
	usersService := users.NewService(users.NewRepository(dbpool), principalCache, metrics, logger)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacMiddleware := rbac.Middleware{
		Guard:    authz.NewGuard(),
		Resolver: rbac.SessionResolver{Principals: usersService, Tokens: tokens, Logger: logger},
		Logger:   logger,
		Metrics:  metrics,
	}
	if cfg.AuditDenies {
		rbacMiddleware.Auditor = jobClient
	}

	storesService := stores.NewService(stores.NewRepository(dbpool), usersService, auditLogger, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		Capabilities:   capabilities,
		Metrics:        metrics,
		AuthHandler:    auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)), sessionManager, csrfManager, tokens, rbacMiddleware),
		UsersHandler:   users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:   roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool)), rbacMiddleware),
		StoresHandler:  stores.NewHandler(logger, storesService, rbacMiddleware),
		PagesHandler:   pages.NewHandler(logger, storesService, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger, rbacMiddleware),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("capabilities", len(capabilities.All())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runJobs handles `marketdesk jobs trigger <task> [arg]` and `marketdesk jobs stats`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	if len(args) == 0 {
		return errors.New("usage: marketdesk jobs trigger <task> [arg] | stats")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: marketdesk jobs trigger <task> [arg]")
		}
		opts := cli.TriggerOptions{Retention: cfg.AuditRetention}
		if len(args) > 2 {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[2], err)
			}
			opts.UserID = id
		}
		info, err := jobsCLI.Trigger(ctx, args[1], opts)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
