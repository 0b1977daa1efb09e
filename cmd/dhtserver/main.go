package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/dht_transport/cmd/internal/logcfg"
	"github.com/danmuck/dht_transport/src/dhtapi"
	logs "github.com/danmuck/smplog"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := parseCLI(os.Args[1:], os.Getenv)
	if err != nil {
		logs.Configure(logs.DefaultConfig())
		logs.Fatalf(err, "invalid arguments")
	}
	logcfg.Configure(cfg.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logs.Fatalf(err, "failed to open %s store", cfg.Backend)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logs.Warnf("closing store: %v", err)
		}
	}()

	srv := dhtapi.NewServer(cfg.Addr, store)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logs.Infof("DHT API listening on %s (store: %s)", cfg.Addr, cfg.Backend)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf(err, "server exited")
		}
		return
	case <-ctx.Done():
	}

	logs.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("shutdown: %v", err)
	}
}
