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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/api"
	"github.com/0gfoundation/0g-voucher-payments/internal/auth"
	"github.com/0gfoundation/0g-voucher-payments/internal/claimqueue"
	"github.com/0gfoundation/0g-voucher-payments/internal/config"
	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
	"github.com/0gfoundation/0g-voucher-payments/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis (auth nonces, claim queue, and the redis store backend) ─────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Ledger ────────────────────────────────────────────────────────────────
	st, err := openStore(cfg, rdb)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer st.Close() //nolint:errcheck

	l := ledger.New(st, cfg.Issuer(), log)
	if err := fundOnce(ctx, cfg, l, log); err != nil {
		log.Fatal("initial deposit failed", zap.Error(err))
	}

	// ── Goroutines ────────────────────────────────────────────────────────────
	blockTimeout := time.Duration(cfg.Queue.BlockTimeoutSec) * time.Second
	queueDone := make(chan struct{})
	go func() {
		claimqueue.Run(ctx, rdb, l, blockTimeout, log)
		close(queueDone)
	}()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(api.NewHandler(l, rdb, log), rdb, cfg.Server.AdminKey),
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("issuer", cfg.Issuer().Hex()),
			zap.String("store", cfg.Store.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	// Stop the consumer only after in-flight HTTP claims have finished, and
	// wait for it before the store is closed.
	cancel()
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		log.Warn("claim queue consumer did not stop in time")
	}
	log.Info("shutdown complete")
}

// openStore returns the ledger store selected by store.backend.
func openStore(cfg *config.Config, rdb *redis.Client) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return store.NewRedis(rdb), nil
	case config.BackendBolt:
		return store.OpenBolt(cfg.Store.BoltPath)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// fundOnce applies ledger.initial_deposit the first time this store is used.
func fundOnce(ctx context.Context, cfg *config.Config, l *ledger.Ledger, log *zap.Logger) error {
	amount, err := cfg.InitialDeposit()
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	applied, err := l.Fund(ctx, amount)
	if err != nil {
		return err
	}
	if applied {
		log.Info("treasury funded from config", zap.String("amount", amount.String()))
	}
	return nil
}

func newRouter(h *api.Handler, rdb *redis.Client, adminKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	h.RegisterClaims(r.Group("/api", auth.Middleware(rdb)))
	h.RegisterResults(r.Group("/api"))
	h.RegisterAdmin(r.Group("/admin", auth.AdminMiddleware(adminKey)))
	h.RegisterQuery(r.Group("/query"))
	return r
}
