package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"barrel-market-api/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	m := New("test")

	m.Report(model.Persisted(model.Submission{}, &model.Record{}))
	m.Report(model.Skipped(model.Submission{}, model.ReasonDuplicate, model.ErrDuplicate))
	m.Report(model.Skipped(model.Submission{}, model.ReasonDuplicate, model.ErrDuplicate))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("persisted", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("skipped", "duplicate")))
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.ObserveInference(time.Second, errors.New("boom"))
	m.ObserveHTTP(http.MethodGet, "/api/v1/listings/types", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_inference_request_duration_seconds_count{result="error"} 1`)
	assert.Contains(t, rec.Body.String(), "test_http_request_duration_seconds")
}

func TestPipelineObservers(t *testing.T) {
	m := New("test")

	m.ObserveBatch(2 * time.Second)
	m.ObserveFlush(4, nil)
	m.ObserveFlush(0, errors.New("tx aborted"))
	m.SetQueueDepth(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RowsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
}
