package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/middleware"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
	"github.com/metakgp/iqps-backend/pkg/response"
)

type authService interface {
	Authenticate(ctx context.Context, req dto.OAuthRequest) (*dto.TokenResponse, error)
}

// AuthHandler exposes the GitHub OAuth login.
type AuthHandler struct {
	service authService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service authService) *AuthHandler {
	return &AuthHandler{service: service}
}

// OAuth godoc
// @Summary Exchange a GitHub OAuth code for an admin token
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body dto.OAuthRequest true "OAuth code"
// @Success 200 {object} response.Envelope{data=dto.TokenResponse}
// @Failure 401 {object} response.Envelope
// @Router /oauth [post]
func (h *AuthHandler) OAuth(c *gin.Context) {
	var req dto.OAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid oauth payload"))
		return
	}
	token, err := h.service.Authenticate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token)
}

// Profile godoc
// @Summary Return the authenticated admin
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.ProfileResponse}
// @Router /profile [get]
func (h *AuthHandler) Profile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, dto.ProfileResponse{
		Token:    c.GetString(middleware.ContextTokenKey),
		Username: claims.Username,
	})
}
