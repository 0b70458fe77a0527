package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/config"
	"github.com/fixhub/fixhub/internal/entities"
	"github.com/fixhub/fixhub/internal/logging"
	"github.com/fixhub/fixhub/internal/orm/crud"
	"github.com/fixhub/fixhub/internal/orm/transaction"
	"github.com/fixhub/fixhub/internal/web/ratelimit"
	"github.com/fixhub/fixhub/internal/web/router"
	"github.com/fixhub/fixhub/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the entity API server",
		Long: `Start the HTTP entity API.

Configuration comes from ./fixhub.yaml (or --config), FIXHUB_* environment
variables and DATABASE_URL. The server drains in-flight requests on SIGINT
or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.RequireServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := entities.Registry()
	if err != nil {
		return fmt.Errorf("invalid entity definitions: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	err = server.ConfigurePool(ctx, db, server.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: 10 * time.Minute,
	})
	if err != nil {
		db.Close()
		return err
	}

	opts := []crud.Option{
		crud.WithLogger(logger.Named("crud")),
		crud.WithTransactionManager(transaction.NewManager(db,
			transaction.WithTimeout(cfg.Database.StatementTimeout),
			transaction.WithLogger(logger.Named("tx")),
		)),
	}
	if cfg.Audit.Enabled {
		opts = append(opts, crud.WithAuditLogger(audit.NewDBLogger(db, logger.Named("audit"))))
	}
	service := crud.NewService(registry, db, opts...)

	limiter, closeLimiter, err := newLimiter(ctx, cfg.RateLimit, logger)
	if err != nil {
		db.Close()
		return err
	}

	handler := router.New(router.Config{
		Service:   service,
		Tokens:    auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Limiter:   limiter,
		DB:        db,
		Logger:    logger,
		APIPrefix: cfg.Server.APIPrefix,
		Audit:     cfg.Audit.Enabled,
	})

	srvConfig := server.DefaultConfig(handler)
	srvConfig.Address = cfg.Server.Addr()
	srvConfig.Logger = logger
	if cfg.Server.ShutdownTimeout > 0 {
		srvConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}

	srv, err := server.New(srvConfig)
	if err != nil {
		db.Close()
		closeLimiter()
		return err
	}
	srv.RegisterHook(func(context.Context) error {
		closeLimiter()
		return nil
	})
	srv.RegisterHook(func(context.Context) error {
		return db.Close()
	})

	logger.Info("starting fixhub",
		zap.String("version", Version),
		zap.Int("entities", registry.Count()),
		zap.Bool("audit", cfg.Audit.Enabled),
		zap.Bool("rate_limit", limiter != nil),
	)
	return srv.Run(ctx)
}

// newLimiter builds the configured rate limiter: Redis when an address is
// set so every instance shares counters, otherwise an in-process bucket.
// A nil limiter disables rate limiting.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	if cfg.RedisAddr == "" {
		bucket := ratelimit.NewTokenBucket(cfg.Limit, cfg.Window)
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(cfg.Window)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					bucket.Prune()
				case <-done:
					return
				}
			}
		}()
		return bucket, func() { close(done) }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		// requests still pass while redis is down
		logger.Warn("rate limit store unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
		Client: client,
		Limit:  cfg.Limit,
		Window: cfg.Window,
	})
	if err != nil {
		client.Close()
		return nil, noop, err
	}
	return limiter, func() {
		if err := client.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "closing redis client:", err)
		}
	}, nil
}
