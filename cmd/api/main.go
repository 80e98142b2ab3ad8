package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	httpadp "rcv-cert-ledger/internal/adapter/http"
	"rcv-cert-ledger/internal/app"
	"rcv-cert-ledger/internal/config"
	"rcv-cert-ledger/internal/infrastructure/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	logging.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("startup")
	}
	defer a.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger(), middleware.Recover())

	httpadp.Register(e, httpadp.RouterDeps{
		Handler: httpadp.NewHandler(httpadp.LedgerInfo{
			Origin:        a.Origin,
			ChainID:       cfg.LedgerChainID,
			Configured:    cfg.LedgerConfigured(),
			ExplorerTxURL: cfg.ExplorerTxURL,
		}),
		Approvals: httpadp.NewApprovalHandler(a.Approvals),
		Recovery:  httpadp.NewRecoveryHandler(a.Recovery),
		JWTSecret: []byte(cfg.JWTSigningKey),
		Redis:     a.Redis,
		IdempTTL:  cfg.IdempotencyTTL(),
		Gatherer:  prometheus.DefaultGatherer,
	})

	go func() {
		addr := ":" + cfg.AppPort
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
