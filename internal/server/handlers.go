package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/db/gorm"
	"github.com/thebtf/procluster/internal/export"
	"github.com/thebtf/procluster/internal/input"
	"github.com/thebtf/procluster/internal/render"
	"github.com/thebtf/procluster/internal/runner"
	"github.com/thebtf/procluster/internal/server/sse"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

// maxBodyBytes caps request bodies for /api/cluster.
const maxBodyBytes = 10 << 20

// clusterRequest is the JSON body of POST /api/cluster. Selector fields left
// empty fall back to the configured defaults.
type clusterRequest struct {
	Threshold    *float64                     `json:"threshold,omitempty"`
	ClusterCount *int                         `json:"cluster_count,omitempty"`
	Save         *bool                        `json:"save,omitempty"`
	Linkage      string                       `json:"linkage,omitempty"`
	Delimiter    string                       `json:"delimiter,omitempty"`
	Procedures   []models.ProcedureRecordJSON `json:"procedures"`
}

type clusterResponse struct {
	Run *models.RunSummary `json:"run,omitempty"`
	export.Document
	Cached bool `json:"cached"`
}

type runResponse struct {
	export.Document
	Run      models.RunSummary `json:"run"`
	Sections []string          `json:"sections"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInputMissing),
		errors.Is(err, models.ErrInputShape),
		errors.Is(err, models.ErrConfiguration),
		errors.Is(err, models.ErrDegenerateInput):
		return http.StatusBadRequest
	case errors.Is(err, gorm.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if !s.ready.Load() {
		status = http.StatusServiceUnavailable
		state = "shutting_down"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  state,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"storage": s.runStore != nil,
		"clients": s.sseBroadcaster.ClientCount(),
	})
}

// handleCluster accepts either a JSON clusterRequest or a raw CSV body
// (Content-Type text/csv) with threshold, clusters, linkage and delimiter
// as query parameters.
func (s *Service) handleCluster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		req     clusterRequest
		records []models.ProcedureRecord
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		records, err = input.ReadCSV(r.Body)
		if err == nil {
			req, err = requestFromQuery(r)
		}
	} else {
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			err = fmt.Errorf("%w: decode request: %v", models.ErrInputShape, derr)
		}
		for _, p := range req.Procedures {
			records = append(records, p.ToRecord())
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	opts := s.config.PipelineOptions()
	if req.Threshold != nil || req.ClusterCount != nil {
		opts.Selector = hierarchy.Selector{Threshold: req.Threshold, ClusterCount: req.ClusterCount}
	}
	if req.Linkage != "" {
		opts.Linkage = hierarchy.Linkage(strings.ToLower(req.Linkage))
	}
	if req.Delimiter != "" {
		opts.Delimiter = req.Delimiter
	}

	job := runner.Runner{Cache: s.runner.Cache}
	if s.runStore != nil && (req.Save == nil || *req.Save) {
		job.Runs = s.runStore
	}

	out, err := job.Execute(r.Context(), "api", records, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	if out.Summary != nil {
		s.sseBroadcaster.Publish(sse.Event{
			Type:   sse.EventRun,
			Source: "api",
			Run:    out.Summary,
			Labels: out.Result.Assignment.Map(),
		})
	}

	writeJSON(w, http.StatusOK, clusterResponse{
		Run:      out.Summary,
		Document: export.NewDocument(out.Result),
		Cached:   out.Cached,
	})
}

func requestFromQuery(r *http.Request) (clusterRequest, error) {
	q := r.URL.Query()
	req := clusterRequest{Linkage: q.Get("linkage"), Delimiter: q.Get("delimiter")}
	if v := q.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
		req.Threshold = &t
	}
	if v := q.Get("clusters"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
		req.ClusterCount = &k
	}
	if v := q.Get("save"); v != "" {
		save, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
		req.Save = &save
	}
	return req, nil
}

func (s *Service) requireStore(w http.ResponseWriter) bool {
	if s.runStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run storage is not configured"})
		return false
	}
	return true
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	runs, err := s.runStore.ListRuns(r.Context(), gorm.ParseLimitParam(r, gorm.DefaultListLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	detail, err := s.runStore.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Document: export.NewDocument(detail.Result),
		Run:      detail.Summary,
		Sections: detail.Sections,
	})
}

func (s *Service) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.runStore.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDendrogram serves the stored PDF, or with ?format=dot|text a
// rendering of the stored merge tree.
func (s *Service) handleDendrogram(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")

	format := r.URL.Query().Get("format")
	if format == "" || format == "pdf" {
		a, err := s.runStore.GetArtifact(r.Context(), id, export.SectionDendrogram)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Disposition", `inline; filename="`+id+`_Dendrogram.pdf"`)
		_, _ = w.Write(a.Data)
		return
	}

	detail, err := s.runStore.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	res := detail.Result
	var threshold *float64
	if t, ok := res.Threshold(); ok {
		threshold = &t
	}

	switch format {
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		err = render.WriteDOT(w, res.Tree, res.Names, threshold)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = render.WriteText(w, res.Tree, res.Names, threshold)
	default:
		writeError(w, fmt.Errorf("%w: unknown format %q", models.ErrConfiguration, format))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run", id).Msg("Rendering dendrogram failed")
	}
}
