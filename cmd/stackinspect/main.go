// Command stackinspect serves the read-only inspection API over a session
// store.
//
// Environment:
//
//	STACK_STORE   memory (default), mysql or redis
//	MYSQL_DSN     gorm MySQL DSN when STACK_STORE=mysql
//	REDIS_URL     redis URL when STACK_STORE=redis
//	LISTEN_ADDR   listen address, default :8080
//	LOG_FORMAT    json, text or tint (default)
//	LOG_LEVEL     debug, info, warn or error
//	JWT_SECRET    require HS256 bearer tokens when set
//	CORS_ORIGINS  comma separated origins allowed to call the API
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

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/inspect"
	"github.com/hupe1980/agentstack/logging"
	"github.com/hupe1980/agentstack/storage/memory"
	"github.com/hupe1980/agentstack/storage/redisstore"
	"github.com/hupe1980/agentstack/storage/sqlstore"
)

type backend interface {
	core.RecordStore
	core.FileStore
}

func openStore(ctx context.Context, cfg config) (backend, func(), error) {
	switch cfg.Store {
	case "mysql":
		st, err := sqlstore.Open(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}

		return st, func() {}, nil
	case "redis":
		st, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}

		return st, func() { _ = st.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultLoggerConfig()
	logCfg.Level = level
	logCfg.Format = cfg.LogFormat
	logCfg.AddSource = false

	logger := logging.NewLogger(logCfg).WithComponent("stackinspect")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer closeStore()

	env := core.NewEnvironment(core.NewRegistryBuilder().MustBuild(), func(o *core.EnvironmentOptions) {
		o.Records = store
		o.Files = store
		o.Logger = logger
	})

	gin.SetMode(gin.ReleaseMode)

	router := inspect.New(env.Storage(), func(o *inspect.Options) {
		o.Logger = logger
		o.Fresh = cfg.Store != "memory"
		o.AllowOrigins = cfg.AllowOrigins

		if cfg.JWTSecret != "" {
			o.JWTSecret = []byte(cfg.JWTSecret)
		}
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	logger.Info("stackinspect.listening", "addr", cfg.ListenAddr, "store", cfg.Store)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	return srv.Shutdown(shutCtx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stackinspect:", err)
		os.Exit(1)
	}
}
