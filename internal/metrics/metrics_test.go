package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleMetrics(t *testing.T) {
	TripsStarted.Store(0)
	TripsStarted.Add(3)

	rec := httptest.NewRecorder()
	HandleMetrics(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "fleet_trips_started_total 3\n")
	assert.Contains(t, rec.Body.String(), "fleet_stream_entries_acked_total ")
}
