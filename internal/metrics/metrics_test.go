package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AnalysisStarted()
		m.AnalysisFinished("ok", 0.5)
		m.AddFramesSampled(3)
		m.IncFrameFailure("saliency")
		m.ObserveStage("fuse", time.Second)
		m.IncRequests()
		m.IncErrors()
	})
	assert.Nil(t, m.Registry())
}

func TestAnalysisCounters(t *testing.T) {
	m := New()
	m.AnalysisStarted()
	m.AddFramesSampled(10)
	m.IncFrameFailure("motion")
	m.AnalysisFinished("ok", 0.42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.analysesTotal.WithLabelValues("ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.framesSampled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frameFailures.WithLabelValues("motion")))
	assert.Equal(t, 0.42, testutil.ToFloat64(m.overallScore))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeAnalyses))
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ok", "/bad", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AddFramesSampled(4)

	path := filepath.Join(t.TempDir(), "adattention.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "adattention_frames_sampled_total 4")
}
