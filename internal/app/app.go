package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rcv-cert-ledger/internal/adapter/ledger/etherscan"
	"rcv-cert-ledger/internal/adapter/ledger/ethrpc"
	"rcv-cert-ledger/internal/adapter/repository/gormrepo"
	"rcv-cert-ledger/internal/config"
	"rcv-cert-ledger/internal/infrastructure/cache"
	"rcv-cert-ledger/internal/infrastructure/db"
	"rcv-cert-ledger/internal/infrastructure/metrics"
	"rcv-cert-ledger/internal/usecase/anchor"
	"rcv-cert-ledger/internal/usecase/approval"
	"rcv-cert-ledger/internal/usecase/materialize"
	"rcv-cert-ledger/internal/usecase/recovery"
	"rcv-cert-ledger/internal/usecase/signature"
)

// App holds the wired usecases shared by the API server and the CLI.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Approvals *approval.Usecase
	Recovery  *recovery.Engine
	// Origin is empty when no ledger key is configured.
	Origin string

	closers []func()
}

// Close releases connections in reverse open order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build opens the store, cache and ledger connections and wires every usecase.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New(reg)}

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	a.DB = gdb
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}
	if cfg.MigrateOnStart {
		if err := gormrepo.Migrate(gdb); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "migrate")
		}
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	tx := gormrepo.NewGormUoW(gdb)
	deps := approval.Deps{
		UoW:          tx,
		Approvals:    gormrepo.NewApprovalRepository(gdb),
		Identities:   gormrepo.NewIdentityRepository(gdb),
		Verifier:     signature.NewVerifier(),
		Materializer: materialize.NewMaterializer(),
	}

	var node *ethrpc.Client
	if cfg.LedgerConfigured() {
		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		c, closeNode, err := ethrpc.Dial(dialCtx, cfg.LedgerRPCURL, cfg.LedgerPrivateKey, cfg.LedgerChainID, cfg.LedgerGasLimit)
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		node = c
		a.Origin = c.Origin()
		a.closers = append(a.closers, closeNode)
		deps.Anchor = anchor.NewClient(tx, c, cfg.LedgerTimeout(), a.Metrics)
		log.WithFields(log.Fields{"origin": a.Origin, "chain_id": cfg.LedgerChainID}).Info("ledger: connected")
	} else {
		log.Warn("ledger not configured; approvals will not be anchored")
	}

	a.Approvals = approval.NewUsecase(deps,
		approval.WithMetrics(a.Metrics),
		approval.WithSigningWindow(cfg.SigningWindow()),
	)

	rd := recovery.Deps{
		UoW:       tx,
		Companies: gormrepo.NewCompanyRepository(gdb),
		Products:  gormrepo.NewProductRepository(gdb),
		Index: etherscan.New(etherscan.Config{
			BaseURL:       cfg.IndexAPIURL,
			APIKey:        cfg.IndexAPIKey,
			ChainID:       cfg.LedgerChainID,
			PageSize:      cfg.IndexPageSize,
			RatePerSecond: cfg.IndexRatePerSecond,
		}, &http.Client{Timeout: 30 * time.Second}),
		Origin:        a.Origin,
		Locker:        cache.NewLocker(rdb, "rcv:"),
		ExplorerTxURL: cfg.ExplorerTxURL,
		Metrics:       a.Metrics,
	}
	if node != nil {
		rd.Reader = node
	}
	a.Recovery = recovery.NewEngine(rd)
	return a, nil
}
