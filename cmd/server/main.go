// Command server wires the collaboration core's components into a running
// process: config load, store construction, the session registry, the
// permission resolver, and the thin HTTP/WebSocket adapter. Graceful
// shutdown on SIGINT/SIGTERM follows the standard gin bootstrap convention.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/collabforge/core/internal/authctx"
	"github.com/collabforge/core/internal/cache"
	"github.com/collabforge/core/internal/config"
	"github.com/collabforge/core/internal/db"
	"github.com/collabforge/core/internal/httpapi"
	"github.com/collabforge/core/internal/logging"
	"github.com/collabforge/core/internal/permissions"
	"github.com/collabforge/core/internal/session"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("server: config load failed: %v", err)
	}

	gormDB, err := openStore(cfg)
	if err != nil {
		log.Fatalf("server: store connection failed: %v", err)
	}

	store := permissions.NewGormStore(gormDB)
	resolver := permissions.NewResolver(store, cfg.MaxInheritanceDepth)
	auditor := permissions.NewAuditor(store)
	verifier := authctx.NewVerifier(cfg.JWTSigningKey)

	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCacheFromURL(cfg.RedisURL, nil)
		if err != nil {
			logging.L().Sugar().Warnf("server: redis unavailable, resolver running without secondary cache: %v", err)
		} else {
			resolver.SetSecondaryCache(cache.NewPermissionCache(redisCache, 30*time.Second))
		}
	}

	registry := session.NewRegistry(cfg.BroadcastBuffer)
	registry.SetAuthGate(resolver)
	registry.SetCheckpointSink(session.NewStoreCheckpointSink(store))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := session.NewPeriodicSweeper(registry, store, 30*time.Second)
	go sweeper.Run(ctx)

	if cfg.SessionIdleTimeoutSecs > 0 {
		go runIdleSweep(ctx, registry, time.Duration(cfg.SessionIdleTimeoutSecs)*time.Second)
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	httpapi.NewServer(registry, resolver, auditor, verifier).Routes(engine)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	serverErrors := make(chan error, 1)
	go func() {
		logging.L().Sugar().Infof("server: listening on %s", cfg.HTTPAddr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: listen error: %v", err)
		}
	case sig := <-shutdown:
		logging.L().Sugar().Infof("server: received %v, shutting down", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
	}
}

// openStore picks Postgres when DATABASE_URL is configured and the process
// is running in production, falling back to an embedded SQLite file
// otherwise — matching DESIGN.md's stated dev/test-vs-production split.
func openStore(cfg *config.Config) (*gorm.DB, error) {
	if cfg.IsProduction && cfg.DatabaseURL != "" {
		return db.NewPostgresDB(cfg.DatabaseURL)
	}
	return db.NewSQLiteDB("collabforge.db")
}

func runIdleSweep(ctx context.Context, registry *session.Registry, idleAfter time.Duration) {
	ticker := time.NewTicker(idleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.CloseIdleSince(idleAfter); n > 0 {
				logging.L().Sugar().Infof("server: closed %d idle sessions", n)
			}
		}
	}
}
