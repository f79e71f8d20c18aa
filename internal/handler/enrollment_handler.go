package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	"github.com/noah-isme/academic-enrollment-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, req dto.EnrollRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error)
	Unenroll(ctx context.Context, req dto.UnenrollRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error)
	Grade(ctx context.Context, req dto.GradeRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error)
	Eligibility(ctx context.Context, studentID string, query dto.EligibilityQuery, actor *models.JWTClaims) (*models.Eligibility, error)
	StudentEnrollments(ctx context.Context, studentID string, actor *models.JWTClaims) ([]*models.SubjectEnrollment, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll student in a subject group
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Unenroll godoc
// @Summary Withdraw from a subject
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.UnenrollRequest true "Unenroll payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/unenroll [post]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	var req dto.UnenrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.enrollments.Unenroll(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Grade godoc
// @Summary Approve or fail an in-progress subject
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/grade [post]
func (h *EnrollmentHandler) Grade(c *gin.Context) {
	var req dto.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.enrollments.Grade(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StudentEnrollments godoc
// @Summary List a student's subject records
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) StudentEnrollments(c *gin.Context) {
	records, err := h.enrollments.StudentEnrollments(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Eligibility godoc
// @Summary Check whether a student may enroll
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Param subject query string true "Subject name"
// @Param group query string false "Group ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/eligibility [get]
func (h *EnrollmentHandler) Eligibility(c *gin.Context) {
	var query dto.EligibilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.enrollments.Eligibility(c.Request.Context(), c.Param("id"), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
