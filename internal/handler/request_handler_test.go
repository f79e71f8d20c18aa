package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type requestServiceMock struct {
	lastID      string
	lastResolve dto.ResolveRequest
	lastFormat  dto.ExportFormat
	cancelErr   error
}

func (m *requestServiceMock) CreateGroupChange(ctx context.Context, req dto.CreateGroupChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	return &models.ChangeRequest{ID: "req-1", Kind: models.RequestKindGroupChange, State: models.RequestStatePending}, nil
}

func (m *requestServiceMock) CreateSubjectChange(ctx context.Context, req dto.CreateSubjectChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	return &models.ChangeRequest{ID: "req-2", Kind: models.RequestKindSubjectChange, State: models.RequestStatePending}, nil
}

func (m *requestServiceMock) Review(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	m.lastID = requestID
	return &models.ChangeRequest{ID: requestID, State: models.RequestStateInReview}, nil
}

func (m *requestServiceMock) Approve(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	m.lastID = requestID
	m.lastResolve = req
	return &models.ChangeRequest{ID: requestID, State: models.RequestStateApproved}, nil
}

func (m *requestServiceMock) Reject(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	m.lastID = requestID
	m.lastResolve = req
	return &models.ChangeRequest{ID: requestID, State: models.RequestStateRejected}, nil
}

func (m *requestServiceMock) Cancel(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	return &models.ChangeRequest{ID: requestID}, nil
}

func (m *requestServiceMock) Stats(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.RequestStats, bool, error) {
	return &models.RequestStats{StudentID: studentID, Total: 2}, true, nil
}

func (m *requestServiceMock) History(ctx context.Context, studentID string, actor *models.JWTClaims) ([]*models.ChangeRequest, error) {
	return []*models.ChangeRequest{{ID: "req-1"}}, nil
}

func (m *requestServiceMock) ExportHistory(ctx context.Context, studentID string, format dto.ExportFormat, actor *models.JWTClaims) (*dto.ExportFile, error) {
	m.lastFormat = format
	return &dto.ExportFile{Filename: "requests-" + studentID + ".csv", ContentType: "text/csv", Content: []byte("ID\nreq-1\n")}, nil
}

func TestRequestHandlerApproveWithoutBody(t *testing.T) {
	svc := &requestServiceMock{}
	handler := NewRequestHandler(svc)
	c, w := newJSONContext(t, http.MethodPost, "/requests/req-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", svc.lastID)
	assert.Empty(t, svc.lastResolve.Comment)
}

func TestRequestHandlerRejectWithComment(t *testing.T) {
	svc := &requestServiceMock{}
	handler := NewRequestHandler(svc)
	c, w := newJSONContext(t, http.MethodPost, "/requests/req-1/reject", dto.ResolveRequest{Comment: "group is full"})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "group is full", svc.lastResolve.Comment)
	assert.Contains(t, w.Body.String(), string(models.RequestStateRejected))
}

func TestRequestHandlerRejectMalformedBody(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{})
	c, w := newJSONContext(t, http.MethodPost, "/requests/req-1/reject", []byte(`{"comment":`))
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerCreateGroupChange(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{})
	c, w := newJSONContext(t, http.MethodPost, "/requests/group-change", dto.CreateGroupChangeRequest{StudentID: "s-1", SubjectName: "Algebra", TargetGroupID: "alg-2"})

	handler.CreateGroupChange(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "GROUP_CHANGE")
}

func TestRequestHandlerCancelNotFound(t *testing.T) {
	svc := &requestServiceMock{cancelErr: appErrors.Clone(appErrors.ErrRequestNotFound, "request req-9 not found")}
	handler := NewRequestHandler(svc)
	c, w := newJSONContext(t, http.MethodDelete, "/requests/req-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-9"}}

	handler.Cancel(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", decodeError(t, w))
}

func TestRequestHandlerExportHistory(t *testing.T) {
	svc := &requestServiceMock{}
	handler := NewRequestHandler(svc)
	c, w := newJSONContext(t, http.MethodGet, "/students/s-1/requests/history/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}

	handler.ExportHistory(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportFormatCSV, svc.lastFormat)
	assert.Equal(t, `attachment; filename="requests-s-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID\nreq-1\n", w.Body.String())
}

func TestRequestHandlerHistoryMeta(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{})
	c, w := newJSONContext(t, http.MethodGet, "/students/s-1/requests/history", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}

	handler.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestRequestHandlerStatsReportsCacheHit(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{})
	c, w := newJSONContext(t, http.MethodGet, "/students/s-1/requests/stats", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}

	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Contains(t, w.Body.String(), `"total":2`)
}
