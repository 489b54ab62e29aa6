package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/your-username/logsgate/internal/models"
)

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("failure"))
	RecordQuery(0.01, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(queriesTotal.WithLabelValues("failure")))
}

func TestRecordSubmission(t *testing.T) {
	before := testutil.ToFloat64(indexedDocumentsTotal.WithLabelValues("failed"))
	statusBefore := testutil.ToFloat64(submissionsTotal.WithLabelValues("partial"))

	RecordSubmission(models.Submission{Status: models.SubmissionPartial, Indexed: 3, Failed: 2})

	assert.Equal(t, before+2, testutil.ToFloat64(indexedDocumentsTotal.WithLabelValues("failed")))
	assert.Equal(t, statusBefore+1, testutil.ToFloat64(submissionsTotal.WithLabelValues("partial")))
}

func TestRecordIngestCountsRecords(t *testing.T) {
	before := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("rejected"))
	RecordIngest(false, 4)
	assert.Equal(t, before+4, testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("rejected")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/submissions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := httpRequestsTotal.WithLabelValues("/submissions/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/submissions/"+id, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/quiet", func(w http.ResponseWriter, r *http.Request) {})

	counter := httpRequestsTotal.WithLabelValues("/quiet", "200")
	before := testutil.ToFloat64(counter)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
