package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsServiceRecordsDomainOutcomes(t *testing.T) {
	m := NewMetricsService()
	group := &models.Group{ID: "alg-1", SubjectName: "Algebra", Capacity: 4, Enrolled: 1}

	m.RecordEnrollment("enroll", nil)
	m.RecordEnrollment("enroll", appErrors.Clone(appErrors.ErrGroupFull, "full"))
	m.RecordRequestTransition("approve", nil)
	m.SetGroupOccupancy(group)
	m.RecordCommitFailure()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/groups", http.StatusOK, 20*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `enrollment_operations_total{operation="enroll",result="OK"} 1`)
	assert.Contains(t, body, `enrollment_operations_total{operation="enroll",result="GROUP_FULL"} 1`)
	assert.Contains(t, body, `change_request_transitions_total{action="approve",result="OK"} 1`)
	assert.Contains(t, body, `group_occupancy_ratio{group="alg-1",subject="Algebra"} 0.25`)
	assert.Contains(t, body, "change_set_commit_failures_total 1")

	m.ForgetGroup(group)
	assert.NotContains(t, scrape(t, m), `group="alg-1"`)

	snapshot := m.Snapshot()
	assert.Equal(t, uint64(2), snapshot.EnrollmentOperations)
	assert.Equal(t, uint64(1), snapshot.RequestTransitions)
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)
	assert.InDelta(t, 20, snapshot.AverageRequestDurationMs, 0.5)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordEnrollment("enroll", nil)
		m.RecordRequestTransition("review", nil)
		m.SetGroupOccupancy(&models.Group{ID: "g", Capacity: 1})
		m.RecordCommitFailure()
		m.RecordCacheOperation(true, time.Millisecond)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}
