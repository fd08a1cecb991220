package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/metakgp/iqps-backend/pkg/middleware/requestid"
)

// Audit logs every successful admin mutation with the acting admin.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		admin := ""
		if claims := Claims(c); claims != nil {
			admin = claims.Username
		}
		logger.Info("admin action",
			zap.String("action", action),
			zap.String("admin", admin),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestid.Value(c)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
