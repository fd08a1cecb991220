package handler

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/service"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
	"github.com/metakgp/iqps-backend/pkg/response"
)

type uploadService interface {
	Upload(ctx context.Context, uploads []dto.UploadFile) ([]dto.UploadStatus, error)
}

// UploadHandler accepts public paper uploads.
type UploadHandler struct {
	service         uploadService
	maxRequestBytes int64
}

// NewUploadHandler constructs the handler. maxRequestBytes caps the whole multipart body.
func NewUploadHandler(service uploadService, maxRequestBytes int64) *UploadHandler {
	if maxRequestBytes <= 0 {
		maxRequestBytes = 50 << 20
	}
	return &UploadHandler{service: service, maxRequestBytes: maxRequestBytes}
}

// Upload godoc
// @Summary Upload question papers for review
// @Description Each file is paired with the entry at the same index of the file_details JSON array. Results are reported per file.
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "PDF files"
// @Param file_details formData string true "JSON array of dto.UploadDetails"
// @Success 200 {object} response.Envelope{data=[]dto.UploadStatus}
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrTooLarge, "upload exceeds the request size limit"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid multipart form"))
		return
	}
	defer form.RemoveAll() //nolint:errcheck

	rawDetails := form.Value["file_details"]
	if len(rawDetails) != 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exactly one file_details field is required"))
		return
	}
	var details []dto.UploadDetails
	if err := json.Unmarshal([]byte(rawDetails[0]), &details); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file_details must be a JSON array"))
		return
	}

	headers := form.File["files"]
	files := make([]dto.UploadFile, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open uploaded file"))
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(src)
		files = append(files, dto.UploadFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     src,
		})
	}

	paired, err := service.PairUploads(files, details)
	if err != nil {
		response.Error(c, err)
		return
	}
	statuses, err := h.service.Upload(c.Request.Context(), paired)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses)
}
