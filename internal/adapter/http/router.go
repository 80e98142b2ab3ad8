package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"rcv-cert-ledger/internal/adapter/middleware"
)

type RouterDeps struct {
	Handler   *Handler
	Approvals *ApprovalHandler
	Recovery  *RecoveryHandler
	JWTSecret []byte
	Redis     *redis.Client
	IdempTTL  time.Duration
	Gatherer  prometheus.Gatherer
}

// Register mounts every route on e.
func Register(e *echo.Echo, d RouterDeps) {
	e.Validator = NewValidator()

	e.GET("/health", d.Handler.Health)
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("", middleware.Authenticate(d.JWTSecret))
	api.GET("/ledger/info", d.Handler.LedgerInfo)

	// mutations go through the idempotency store so a retried vote is replayed, not recast
	idem := middleware.Idempotency(d.Redis, d.IdempTTL)

	ap := api.Group("/approvals")
	ap.GET("", d.Approvals.List)
	ap.GET("/mine", d.Approvals.Mine)
	ap.GET("/mine/rejected", d.Approvals.MyRejected)
	ap.GET("/history", d.Approvals.History)
	ap.GET("/quorum", d.Approvals.Quorum)
	ap.GET("/certificate/:certificateId", d.Approvals.ByCertificate)
	ap.GET("/entity/:type/:entityId", d.Approvals.ByEntity)
	ap.GET("/:id", d.Approvals.Get)
	ap.POST("", d.Approvals.Submit, idem)
	ap.POST("/:id/resubmit", d.Approvals.Resubmit, idem)

	admin := ap.Group("", middleware.RequireAdmin)
	admin.GET("/ready-for-ledger", d.Approvals.ReadyForLedger)
	admin.GET("/:id/signing-message", d.Approvals.SigningMessage)
	admin.GET("/:id/rejection-message", d.Approvals.RejectionMessage)
	admin.POST("/:id/approve", d.Approvals.Approve, idem)
	admin.POST("/:id/reject", d.Approvals.Reject, idem)
	admin.POST("/:id/ledger", d.Approvals.RegisterOnLedger, idem)
	admin.POST("/:id/materialize", d.Approvals.Rematerialize, idem)
	admin.POST("/ledger/retry", d.Approvals.RetryUnanchored)

	api.GET("/ledger/verify/:tx", d.Recovery.Verify)
	api.POST("/ledger/verify/:tx/pdf", d.Recovery.VerifyPDF)

	rc := api.Group("/ledger/recovery", middleware.RequireAdmin)
	rc.GET("/status", d.Recovery.Status)
	rc.GET("/certificates", d.Recovery.Certificates)
	rc.POST("/run", d.Recovery.Run)
	rc.POST("/tx/:tx", d.Recovery.RecoverOne)
	rc.POST("/rebuild/:tx", d.Recovery.Rebuild, idem)
}
