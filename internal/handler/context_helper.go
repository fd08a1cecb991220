package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/middleware"
	"github.com/metakgp/iqps-backend/internal/models"
)

func claimsFromContext(c *gin.Context) *models.AdminClaims {
	return middleware.Claims(c)
}
