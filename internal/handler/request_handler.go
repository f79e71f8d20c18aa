package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/middleware"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	"github.com/noah-isme/academic-enrollment-api/pkg/response"
)

type requestService interface {
	CreateGroupChange(ctx context.Context, req dto.CreateGroupChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	CreateSubjectChange(ctx context.Context, req dto.CreateSubjectChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Review(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Approve(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Reject(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Cancel(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Stats(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.RequestStats, bool, error)
	History(ctx context.Context, studentID string, actor *models.JWTClaims) ([]*models.ChangeRequest, error)
	ExportHistory(ctx context.Context, studentID string, format dto.ExportFormat, actor *models.JWTClaims) (*dto.ExportFile, error)
}

// RequestHandler exposes the change request workflow.
type RequestHandler struct {
	requests requestService
}

// NewRequestHandler constructs RequestHandler.
func NewRequestHandler(requests requestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// CreateGroupChange godoc
// @Summary Request a move to another group
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupChangeRequest true "Group change payload"
// @Success 201 {object} response.Envelope
// @Router /requests/group-change [post]
func (h *RequestHandler) CreateGroupChange(c *gin.Context) {
	var req dto.CreateGroupChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	created, err := h.requests.CreateGroupChange(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// CreateSubjectChange godoc
// @Summary Request a subject replacement
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubjectChangeRequest true "Subject change payload"
// @Success 201 {object} response.Envelope
// @Router /requests/subject-change [post]
func (h *RequestHandler) CreateSubjectChange(c *gin.Context) {
	var req dto.CreateSubjectChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	created, err := h.requests.CreateSubjectChange(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Review godoc
// @Summary Take a pending request into review
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/review [post]
func (h *RequestHandler) Review(c *gin.Context) {
	updated, err := h.requests.Review(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Approve godoc
// @Summary Approve and apply a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ResolveRequest false "Resolution comment"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	req, ok := bindResolution(c)
	if !ok {
		return
	}
	updated, err := h.requests.Approve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Reject godoc
// @Summary Reject a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ResolveRequest false "Resolution comment"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	req, ok := bindResolution(c)
	if !ok {
		return
	}
	updated, err := h.requests.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Cancel godoc
// @Summary Withdraw an unresolved request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *RequestHandler) Cancel(c *gin.Context) {
	removed, err := h.requests.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, removed, nil)
}

// Stats godoc
// @Summary Request statistics of a student
// @Tags Requests
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/requests/stats [get]
func (h *RequestHandler) Stats(c *gin.Context) {
	stats, cacheHit, err := h.requests.Stats(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary Resolved requests of a student
// @Tags Requests
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/requests/history [get]
func (h *RequestHandler) History(c *gin.Context) {
	history, err := h.requests.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil, map[string]interface{}{"count": len(history)})
}

// ExportHistory godoc
// @Summary Download resolved requests
// @Tags Requests
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /students/{id}/requests/history/export [get]
func (h *RequestHandler) ExportHistory(c *gin.Context) {
	format := dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportFormatCSV)))
	file, err := h.requests.ExportHistory(c.Request.Context(), c.Param("id"), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// bindResolution accepts an empty body as a resolution without comment.
func bindResolution(c *gin.Context) (dto.ResolveRequest, bool) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err))
		return req, false
	}
	return req, true
}
