package middleware

import (
	"github.com/gin-gonic/gin"

	"stocktrace/internal/core/dbctx"
	"stocktrace/internal/infrastructure/storage/postgres"
)

// Database middleware injects the connection pool and transaction manager
// into the request context. It MUST run before any handler that touches
// the database: repositories resolve their TxManager from the context.
func Database(pool *postgres.Pool, txManager *postgres.TxManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = dbctx.WithPool(ctx, pool.Unwrap())
		ctx = dbctx.WithTxManager(ctx, txManager)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
