package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keagan/adattention/internal/config"
	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/metrics"
	"github.com/keagan/adattention/internal/pipeline"
	"github.com/keagan/adattention/internal/report"
	"github.com/keagan/adattention/pkg/util"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyzer writes a report into the output directory and remembers the
// options it was called with
type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []pipeline.AnalyzeOptions
	err   error
	block chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, opts pipeline.AnalyzeOptions) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	if err := util.EnsureDir(opts.OutputDir); err != nil {
		return nil, err
	}
	sc := &report.Scorecard{OverallScore: 0.61, Weights: map[string]float64{"saliency": 0.625, "motion": 0.375}}
	data, err := sc.Marshal()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(opts.OutputDir, report.ReportFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return &pipeline.Result{
		Scorecard: sc,
		Artifacts: &report.Artifacts{Dir: opts.OutputDir, Report: path},
		Frames:    10,
	}, nil
}

func (f *fakeAnalyzer) lastCall() pipeline.AnalyzeOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestServer(t *testing.T, analyzer Analyzer) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	s := New(zerolog.Nop(), cfg, analyzer, metrics.New())
	t.Cleanup(s.Close)
	return s, s.Router()
}

func videoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ad.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0644))
	return path
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAnalysis(t *testing.T, rec *httptest.ResponseRecorder) Analysis {
	t.Helper()
	var a Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitWait(t *testing.T) {
	fa := &fakeAnalyzer{}
	_, h := newTestServer(t, fa)

	rec := postJSON(t, h, map[string]any{"path": videoFile(t), "wait": true, "pacing": true, "audience": "gen_z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	a := decodeAnalysis(t, rec)
	assert.Equal(t, StatusDone, a.Status)
	require.NotNil(t, a.Scorecard)
	assert.Equal(t, 0.61, a.Scorecard.OverallScore)
	assert.Equal(t, []string{report.ReportFile}, a.Files)
	assert.NotNil(t, a.FinishedAt)

	opts := fa.lastCall()
	assert.True(t, opts.Pacing)
	assert.False(t, opts.Relevance)
	assert.Equal(t, "gen_z", opts.Audience)
	assert.Equal(t, a.ID, filepath.Base(opts.OutputDir))

	// artifacts are served by name
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/"+a.ID+"/files/"+report.ReportFile, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overall_score": 0.61`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/"+a.ID+"/files/..%2Fsecret", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitAsync(t *testing.T) {
	fa := &fakeAnalyzer{block: make(chan struct{})}
	_, h := newTestServer(t, fa)

	rec := postJSON(t, h, map[string]any{"path": videoFile(t)})
	require.Equal(t, http.StatusAccepted, rec.Code)
	a := decodeAnalysis(t, rec)
	assert.Equal(t, "/v1/analyses/"+a.ID, rec.Header().Get("Location"))

	close(fa.block)
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/"+a.ID, nil))
		return rec.Code == http.StatusOK && decodeAnalysis(t, rec).Status == StatusDone
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))
	var list []Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestSubmitFailure(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{err: frames.ErrEmptyVideo})

	rec := postJSON(t, h, map[string]any{"path": videoFile(t), "wait": true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	a := decodeAnalysis(t, rec)
	assert.Equal(t, StatusFailed, a.Status)
	assert.Contains(t, a.Error, "no frames")
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{})
	video := videoFile(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing file", map[string]any{"path": "/nonexistent/ad.mp4"}},
		{"unknown audience", map[string]any{"path": video, "audience": "martians"}},
		{"unknown goal", map[string]any{"path": video, "goal": "viral"}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if s, ok := tt.body.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(s))
				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, req)
			} else {
				rec = postJSON(t, h, tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestSubmitUpload(t *testing.T) {
	fa := &fakeAnalyzer{}
	s, h := newTestServer(t, fa)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", "Spot.MP4")
	require.NoError(t, err)
	part.Write([]byte("fake video bytes"))
	mw.WriteField("fps", "4")
	mw.WriteField("relevance", "true")
	mw.WriteField("wait", "true")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	opts := fa.lastCall()
	assert.Equal(t, 4.0, opts.FPS)
	assert.True(t, opts.Relevance)
	assert.Equal(t, filepath.Join(s.cfg.Server.DataDir, decodeAnalysis(t, rec).ID, "input.mp4"), opts.Input)

	data, err := os.ReadFile(opts.Input)
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(data))
}

func TestRejectedUploadLeavesNoDirectory(t *testing.T) {
	tests := []struct {
		name   string
		file   bool
		fields map[string]string
	}{
		{"missing file field", false, map[string]string{"fps": "2"}},
		{"invalid fps", true, map[string]string{"fps": "fast"}},
		{"negative fps", true, map[string]string{"fps": "-1"}},
		{"unknown audience", true, map[string]string{"audience": "martians"}},
		{"unknown goal", true, map[string]string{"goal": "viral"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAnalyzer{}
			s, h := newTestServer(t, fa)

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if tt.file {
				part, err := mw.CreateFormFile("video", "spot.mp4")
				require.NoError(t, err)
				part.Write([]byte("fake video bytes"))
			}
			for k, v := range tt.fields {
				mw.WriteField(k, v)
			}
			require.NoError(t, mw.Close())

			req := httptest.NewRequest(http.MethodPost, "/v1/analyses", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			entries, err := os.ReadDir(s.cfg.Server.DataDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, fa.calls)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresets(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/presets", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var presets []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presets))
	assert.Len(t, presets, 6)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, &fakeAnalyzer{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adattention_http_requests_total 1")
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	fa := &fakeAnalyzer{block: make(chan struct{})}
	s, h := newTestServer(t, fa)

	rec := postJSON(t, h, map[string]any{"path": videoFile(t)})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decodeAnalysis(t, rec).ID

	s.Close()
	a, err := s.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, a.Status)
	assert.Contains(t, a.Error, context.Canceled.Error())
}

func TestStoreUpdateUnknown(t *testing.T) {
	err := NewStore().Update("missing", func(a *Analysis) {})
	assert.True(t, errors.Is(err, ErrNotFound))
}
