package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/middleware"
	"github.com/metakgp/iqps-backend/pkg/response"
)

type searchService interface {
	Search(ctx context.Context, query, exam string) ([]dto.PaperResponse, error)
}

// SearchHandler serves the public paper search.
type SearchHandler struct {
	service searchService
}

// NewSearchHandler constructs the handler.
func NewSearchHandler(service searchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search godoc
// @Summary Search approved question papers
// @Description Ranks approved papers by course code and name using fuzzy, full-text and prefix matching.
// @Tags Search
// @Produce json
// @Param query query string true "Free text query"
// @Param exam query string false "Comma separated exam filter, e.g. midsem,endsem or ct"
// @Success 200 {object} response.Envelope{data=[]dto.PaperResponse}
// @Failure 400 {object} response.Envelope
// @Router /search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	papers, err := h.service.Search(c.Request.Context(), c.Query("query"), c.Query("exam"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(papers))
	response.JSON(c, http.StatusOK, papers, middleware.ExtractMeta(c))
}
