package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	"github.com/noah-isme/academic-enrollment-api/pkg/response"
)

type catalogService interface {
	ListSubjects(ctx context.Context, query dto.SubjectQuery) ([]models.Subject, *models.Pagination, error)
	CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context, filter models.GroupFilter) ([]*models.Group, error)
	CreateGroup(ctx context.Context, req dto.CreateGroupRequest) (*models.Group, error)
	OpenGroup(ctx context.Context, id string) (*models.Group, error)
	CloseGroup(ctx context.Context, id string) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
}

// CatalogHandler exposes subject and group endpoints.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListSubjects godoc
// @Summary List subjects
// @Tags Catalog
// @Produce json
// @Param semester query int false "Semester"
// @Param search query string false "Name search"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *CatalogHandler) ListSubjects(c *gin.Context) {
	var query dto.SubjectQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	subjects, pagination, err := h.catalog.ListSubjects(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, pagination)
}

// CreateSubject godoc
// @Summary Create subject
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /subjects [post]
func (h *CatalogHandler) CreateSubject(c *gin.Context) {
	var req dto.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	subject, err := h.catalog.CreateSubject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// ListGroups godoc
// @Summary List groups
// @Tags Catalog
// @Produce json
// @Param subject query string false "Subject name"
// @Param state query string false "OPEN or CLOSED"
// @Param professorId query string false "Professor"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *CatalogHandler) ListGroups(c *gin.Context) {
	filter := models.GroupFilter{
		SubjectName: c.Query("subject"),
		State:       models.GroupState(strings.ToUpper(c.Query("state"))),
		ProfessorID: c.Query("professorId"),
	}
	groups, err := h.catalog.ListGroups(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// GetGroup godoc
// @Summary Get group
// @Tags Catalog
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *CatalogHandler) GetGroup(c *gin.Context) {
	group, err := h.catalog.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// CreateGroup godoc
// @Summary Create group
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /groups [post]
func (h *CatalogHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	group, err := h.catalog.CreateGroup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// OpenGroup godoc
// @Summary Re-open a group
// @Tags Catalog
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/open [post]
func (h *CatalogHandler) OpenGroup(c *gin.Context) {
	group, err := h.catalog.OpenGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// CloseGroup godoc
// @Summary Close a group to new admissions
// @Tags Catalog
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/close [post]
func (h *CatalogHandler) CloseGroup(c *gin.Context) {
	group, err := h.catalog.CloseGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// DeleteGroup godoc
// @Summary Delete an empty group
// @Tags Catalog
// @Param id path string true "Group ID"
// @Success 204
// @Router /groups/{id} [delete]
func (h *CatalogHandler) DeleteGroup(c *gin.Context) {
	if err := h.catalog.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
