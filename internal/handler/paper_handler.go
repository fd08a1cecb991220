package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
	"github.com/metakgp/iqps-backend/pkg/response"
)

type paperQueries interface {
	Similar(ctx context.Context, q dto.SimilarQuery) ([]dto.AdminPaperResponse, error)
	Unapproved(ctx context.Context) ([]dto.AdminPaperResponse, error)
	Trash(ctx context.Context) ([]dto.AdminPaperResponse, error)
}

type paperLifecycle interface {
	Edit(ctx context.Context, req dto.EditPaperRequest, actor *models.AdminClaims) (*dto.AdminPaperResponse, error)
	SoftDelete(ctx context.Context, id int64, actor *models.AdminClaims) (bool, error)
	PermanentDelete(ctx context.Context, id int64, actor *models.AdminClaims) error
}

// PaperHandler serves the admin review dashboard.
type PaperHandler struct {
	queries   paperQueries
	lifecycle paperLifecycle
}

// NewPaperHandler constructs the handler.
func NewPaperHandler(queries paperQueries, lifecycle paperLifecycle) *PaperHandler {
	return &PaperHandler{queries: queries, lifecycle: lifecycle}
}

// Unapproved godoc
// @Summary List papers awaiting review
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope{data=[]dto.AdminPaperResponse}
// @Router /unapproved [get]
func (h *PaperHandler) Unapproved(c *gin.Context) {
	papers, err := h.queries.Unapproved(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, map[string]interface{}{"count": len(papers)})
}

// Trash godoc
// @Summary List soft-deleted papers
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope{data=[]dto.AdminPaperResponse}
// @Router /trash [get]
func (h *PaperHandler) Trash(c *gin.Context) {
	papers, err := h.queries.Trash(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, map[string]interface{}{"count": len(papers)})
}

// Similar godoc
// @Summary Find papers similar to the given details
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param course_code query string true "Course code"
// @Param year query int false "Year"
// @Param semester query string false "autumn or spring"
// @Param exam query string false "midsem, endsem, ct or ctN"
// @Success 200 {object} response.Envelope{data=[]dto.AdminPaperResponse}
// @Failure 400 {object} response.Envelope
// @Router /similar [get]
func (h *PaperHandler) Similar(c *gin.Context) {
	var q dto.SimilarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	papers, err := h.queries.Similar(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, map[string]interface{}{"count": len(papers)})
}

// Edit godoc
// @Summary Edit, approve or unapprove a paper
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.EditPaperRequest true "Edit payload"
// @Success 200 {object} response.Envelope{data=dto.AdminPaperResponse}
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /edit [post]
func (h *PaperHandler) Edit(c *gin.Context) {
	var req dto.EditPaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	paper, err := h.lifecycle.Edit(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, paper)
}

// Delete godoc
// @Summary Soft-delete a paper
// @Description Library papers cannot be soft-deleted.
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.PaperIDRequest true "Paper id"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /delete [post]
func (h *PaperHandler) Delete(c *gin.Context) {
	req, ok := bindPaperID(c)
	if !ok {
		return
	}
	changed, err := h.lifecycle.SoftDelete(c.Request.Context(), req.ID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !changed {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation,
			"no paper was changed: it does not exist, is a library paper, or is already deleted"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": req.ID, "deleted": true})
}

// PermanentDelete godoc
// @Summary Permanently delete a paper and its file
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Param payload body dto.PaperIDRequest true "Paper id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /permanent-delete [post]
func (h *PaperHandler) PermanentDelete(c *gin.Context) {
	req, ok := bindPaperID(c)
	if !ok {
		return
	}
	if err := h.lifecycle.PermanentDelete(c.Request.Context(), req.ID, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func bindPaperID(c *gin.Context) (dto.PaperIDRequest, bool) {
	var req dto.PaperIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a positive paper id is required"))
		return req, false
	}
	if claimsFromContext(c) == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return req, false
	}
	return req, true
}
