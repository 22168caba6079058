package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challengetracker/cache"
	"challengetracker/config"
	"challengetracker/database"
	"challengetracker/directory"
	"challengetracker/handlers"
	"challengetracker/logging"
	"challengetracker/middleware"
	"challengetracker/observability"
	"challengetracker/session"
	"challengetracker/storage"
	"challengetracker/templates"

	"go.uber.org/zap"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Closer()

	if err := run(cfg, logger); err != nil {
		logger.Base.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *logging.Log) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		logger.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	// Initialize JWT secret
	middleware.SetJWTSecret(cfg.SessionSecret)

	// Initialize database
	if err := database.Init(cfg, logger); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	sessions, err := session.Open(cfg.SessionDBPath)
	if err != nil {
		return err
	}
	defer sessions.Close()
	go sessions.RunPurge(ctx, 15*time.Minute, func(err error) {
		logger.Base.Warn("session purge failed", zap.Error(err))
		observability.CaptureErr(err)
	})

	files, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	var dir directory.Authenticator
	if cfg.DirectoryEnabled() {
		dir = directory.NewLDAP(directory.LDAPConfig{
			URL:          cfg.LDAPURL,
			BindDN:       cfg.LDAPBindDN,
			BindPassword: cfg.LDAPBindPassword,
			BaseDN:       cfg.LDAPBaseDN,
			UserFilter:   cfg.LDAPUserFilter,
			Timeout:      5 * time.Second,
		})
		logger.Base.Info("directory login enabled", zap.String("url", cfg.LDAPURL))
	}

	var responses cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Base.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			responses = redisCache
		}
	}

	pages, err := templates.Load(template.FuncMap{"fileURL": files.URL})
	if err != nil {
		return err
	}

	router := handlers.Router(handlers.Deps{
		Config:    cfg,
		Log:       logger,
		DB:        database.GetDB(),
		Files:     files,
		Sessions:  sessions,
		Directory: dir,
		Cache:     responses,
		Templates: pages,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Base.Info("server starting", zap.String("port", cfg.ServerPort), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		observability.CaptureErr(err)
		return err
	case <-ctx.Done():
	}

	logger.Base.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "b2" {
		return storage.NewB2Store(ctx, cfg.B2KeyID, cfg.B2AppKey, cfg.B2Bucket, cfg.UploadURLPrefix)
	}
	return storage.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
}
