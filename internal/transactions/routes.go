package transactions

import (
	"github.com/Aidin1998/txconsole/common/apiutil"
	"github.com/Aidin1998/txconsole/common/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes configures the transaction console under /transactions. authn
// authenticates the operator; nil leaves authentication to the caller.
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	if err := apiutil.RegisterBindingValidators(); err != nil {
		logger.Error("failed to register binding validators", zap.Error(err))
	}
	handler := NewHandler(service, logger)

	group := router.Group("/transactions")
	group.Use(apiutil.RFC7807ErrorMiddleware(logger))
	if authn != nil {
		group.Use(authn)
	}

	read := auth.RequirePermission(auth.PermissionRead)
	moderate := auth.RequirePermission(auth.PermissionModerate)
	exportPerm := auth.RequirePermission(auth.PermissionExport)

	// Listing and lookups
	group.GET("", read, handler.ListTransactions)
	group.GET("/stats", read, handler.GetStats)
	group.GET("/export", exportPerm, handler.ExportTransactions)
	group.GET("/audit/integrity", moderate, handler.VerifyAuditChain)
	group.GET("/:id", read, handler.GetTransaction)
	group.GET("/:id/user", read, handler.GetTransactionUser)
	group.GET("/:id/audit", read, handler.GetTransactionAudit)

	// Moderation
	group.PATCH("/:id/status", moderate, handler.UpdateStatus)
	group.POST("/:id/flag", moderate, handler.Flag)
	group.DELETE("/:id/flag", moderate, handler.Unflag)
	group.POST("/:id/approve", moderate, handler.Approve)
	group.POST("/:id/cancel", moderate, handler.Cancel)
	group.POST("/:id/verify", moderate, handler.Verify)

	bulk := group.Group("/bulk", moderate)
	{
		bulk.POST("/status", handler.BulkUpdateStatus)
		bulk.POST("/flag", handler.BulkFlag)
	}
}
