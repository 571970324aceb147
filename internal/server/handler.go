package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keagan/adattention/internal/audience"
	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/pipeline"
	"github.com/keagan/adattention/pkg/util"
)

// uploadField is the multipart field carrying the video
const uploadField = "video"

// submitRequest is the JSON body of POST /v1/analyses. Unset booleans fall
// back to the server config.
type submitRequest struct {
	Path      string  `json:"path"`
	FPS       float64 `json:"fps"`
	Relevance *bool   `json:"relevance"`
	Pacing    *bool   `json:"pacing"`
	Audience  string  `json:"audience"`
	Goal      string  `json:"goal"`
	Wait      bool    `json:"wait"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := make([]audience.Preset, 0)
	for _, key := range audience.Keys() {
		presets = append(presets, audience.MustLookup(key))
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleFile serves one finished artifact by its file name
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	name := chi.URLParam(r, "name")
	for _, f := range a.Files {
		if f == name {
			http.ServeFile(w, r, filepath.Join(a.OutputDir, name))
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("no artifact %q for analysis %s", name, a.ID))
}

// handleSubmit accepts either a JSON body naming a local file or a multipart
// upload. With wait set it answers once the analysis finished; otherwise it
// answers 202 and the client polls GET /v1/analyses/{id}.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	outDir := filepath.Join(s.cfg.Server.DataDir, id)

	var req submitRequest
	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = s.receiveUpload(w, r, outDir)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
		if err == nil && !util.FileExists(req.Path) {
			err = fmt.Errorf("input %q does not exist", req.Path)
		}
	}
	if err == nil && req.Audience != "" {
		_, err = audience.Lookup(req.Audience)
	}
	if err == nil && req.Goal != "" && !audience.ValidGoal(req.Goal) {
		err = fmt.Errorf("unknown goal %q", req.Goal)
	}
	if err != nil {
		// outDir is only ever this request's fresh directory
		util.CleanupFiles(outDir)
		s.logger.Debug().Err(err).Msg("invalid analysis request")
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.options(req, outDir)
	s.store.Put(Analysis{
		ID:        id,
		Status:    StatusPending,
		Input:     opts.Input,
		OutputDir: outDir,
		CreatedAt: time.Now().UTC(),
	})

	s.logger.Info().Str("id", id).Str("input", opts.Input).Bool("wait", req.Wait).Msg("analysis submitted")

	if req.Wait {
		s.run(r.Context(), id, opts)
		a, _ := s.store.Get(id)
		status := http.StatusCreated
		if a.Status == StatusFailed {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, a)
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.run(s.jobCtx, id, opts)
	}()

	a, _ := s.store.Get(id)
	w.Header().Set("Location", "/v1/analyses/"+id)
	writeJSON(w, http.StatusAccepted, a)
}

// receiveUpload stores the uploaded video under outDir and reads the
// remaining form fields as options.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request, outDir string) (submitRequest, error) {
	var req submitRequest
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return req, fmt.Errorf("parse upload: %w", err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return req, fmt.Errorf("missing %q file field: %w", uploadField, err)
	}
	defer file.Close()

	if err := util.EnsureDir(outDir); err != nil {
		return req, err
	}
	dst := filepath.Join(outDir, "input"+strings.ToLower(filepath.Ext(header.Filename)))
	out, err := os.Create(dst)
	if err != nil {
		return req, err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return req, fmt.Errorf("save upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return req, err
	}

	req.Path = dst
	req.Audience = r.FormValue("audience")
	req.Goal = r.FormValue("goal")
	req.Wait = formBool(r.FormValue("wait"))
	if v := r.FormValue("fps"); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil || fps <= 0 {
			return req, fmt.Errorf("invalid fps %q", v)
		}
		req.FPS = fps
	}
	if v := r.FormValue("relevance"); v != "" {
		b := formBool(v)
		req.Relevance = &b
	}
	if v := r.FormValue("pacing"); v != "" {
		b := formBool(v)
		req.Pacing = &b
	}
	return req, nil
}

func (s *Server) options(req submitRequest, outDir string) pipeline.AnalyzeOptions {
	opts := pipeline.AnalyzeOptions{
		Input:     req.Path,
		OutputDir: outDir,
		FPS:       req.FPS,
		Relevance: s.cfg.Relevance.Enabled,
		Pacing:    s.cfg.Pacing.Enabled,
		Audience:  s.cfg.Audience,
		Goal:      req.Goal,
	}
	if req.Relevance != nil {
		opts.Relevance = *req.Relevance
	}
	if req.Pacing != nil {
		opts.Pacing = *req.Pacing
	}
	if req.Audience != "" {
		opts.Audience = req.Audience
	}
	return opts
}

func (s *Server) run(ctx context.Context, id string, opts pipeline.AnalyzeOptions) {
	s.store.Update(id, func(a *Analysis) { a.Status = StatusRunning })

	res, err := s.analyzer.Analyze(ctx, opts)
	finished := time.Now().UTC()

	s.store.Update(id, func(a *Analysis) {
		a.FinishedAt = &finished
		if err != nil {
			a.Status = StatusFailed
			a.Error = err.Error()
			return
		}
		a.Status = StatusDone
		a.Scorecard = res.Scorecard
		if arts := res.Artifacts; arts != nil {
			for _, p := range []string{arts.Report, arts.Plot, arts.Overlay} {
				if p != "" {
					a.Files = append(a.Files, filepath.Base(p))
				}
			}
		}
	})

	if err != nil {
		event := s.logger.Error()
		if errors.Is(err, frames.ErrEmptyVideo) || errors.Is(err, context.Canceled) {
			event = s.logger.Warn()
		}
		event.Err(err).Str("id", id).Msg("analysis failed")
		return
	}
	s.logger.Info().Str("id", id).Float64("overall", res.Scorecard.OverallScore).Msg("analysis finished")
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
