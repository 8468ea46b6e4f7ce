package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/mulewatch/pkg/archive"
	"github.com/dd0wney/mulewatch/pkg/disruption"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/graphql"
	"github.com/dd0wney/mulewatch/pkg/ingest"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

// WhatIfRequest selects the accounts to remove in a counterfactual run.
type WhatIfRequest struct {
	Nodes []string `json:"nodes"`
}

// GraphQLRequest is the standard POST body of a GraphQL query.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// handleAnalyze ingests a transaction batch and runs the full pipeline.
// The batch arrives either as a multipart upload under the "file" field or
// as a raw CSV request body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reader, closeUpload, err := s.openUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeUpload()

	graph, meta, err := ingest.ParseCSV(reader)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid transaction batch: %v", err))
		return
	}
	if graph.NodeCount() == 0 {
		s.respondError(w, http.StatusBadRequest, "batch contains no transactions")
		return
	}

	analysis, err := s.engine.Analyze(r.Context(), graph, meta)
	if err != nil {
		s.logger.Error("analysis failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	s.store.Set(analysis)
	s.archive(analysis)

	if s.notifier != nil {
		go s.notifier.NotifyRunComplete(analysis.Report)
	}

	s.respondJSON(w, http.StatusOK, analysis.Report)
}

// openUpload returns a reader over the uploaded CSV, from either the
// multipart "file" field or the raw body.
func (s *Server) openUpload(r *http.Request) (io.Reader, func(), error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart upload: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New(`multipart upload is missing the "file" field`)
	}
	return file, func() { file.Close() }, nil
}

func (s *Server) archive(analysis *engine.Analysis) {
	for _, a := range s.archivers {
		if err := a.Save(analysis.Report); err != nil {
			s.logger.Error("report archive failed",
				logging.RunID(analysis.Report.RunID),
				logging.Error(err))
		}
	}
}

// CleanReport is the investigator-facing download: the report contract
// fields without the internal partition and graph detail.
type CleanReport struct {
	RunID              string                     `json:"run_id"`
	GeneratedAt        time.Time                  `json:"generated_at"`
	FraudRings         []rings.Ring               `json:"fraud_rings"`
	SuspiciousAccounts []fusion.SuspiciousAccount `json:"suspicious_accounts"`
	Summary            fusion.Summary             `json:"summary"`
}

// handleDownload serves the latest report as a JSON attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	analysis, ok := s.store.Latest()
	if !ok {
		s.respondError(w, http.StatusNotFound, "no analysis has completed yet")
		return
	}
	report := analysis.Report

	filename := fmt.Sprintf("mulewatch_report_%s.json", report.RunID)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	s.respondJSON(w, http.StatusOK, CleanReport{
		RunID:              report.RunID,
		GeneratedAt:        report.GeneratedAt,
		FraudRings:         report.FraudRings,
		SuspiciousAccounts: report.SuspiciousAccounts,
		Summary:            report.Summary,
	})
}

// handleWebhookPing answers automation pollers with the latest run summary.
func (s *Server) handleWebhookPing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	analysis, ok := s.store.Latest()
	if !ok {
		s.respondError(w, http.StatusNotFound, "no analysis has completed yet")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"run_id":       analysis.Report.RunID,
		"generated_at": analysis.Report.GeneratedAt,
		"summary":      analysis.Report.Summary,
	})
}

// handleWhatIf simulates removing accounts from the latest analyzed graph.
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req WhatIfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysis, ok := s.store.Latest()
	if !ok {
		s.respondError(w, http.StatusNotFound, "no analysis has completed yet")
		return
	}

	result, err := s.engine.WhatIf(analysis, req.Nodes)
	if errors.Is(err, disruption.ErrInvalidRemoval) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("what-if simulation failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "simulation failed")
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handleListRuns serves the archived run history, newest first. The optional
// limit query parameter caps the page size.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.history == nil {
		s.respondError(w, http.StatusNotFound, "run history is not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("run history query failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "run history unavailable")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun serves one archived report by run id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.history == nil {
		s.respondError(w, http.StatusNotFound, "run history is not configured")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		s.respondError(w, http.StatusNotFound, "unknown run")
		return
	}

	report, err := s.history.GetRun(r.Context(), runID)
	if errors.Is(err, archive.ErrRunNotFound) {
		s.respondError(w, http.StatusNotFound, "unknown run")
		return
	}
	if err != nil {
		s.logger.Error("run history query failed",
			logging.RunID(runID),
			logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "run history unavailable")
		return
	}

	s.respondJSON(w, http.StatusOK, report)
}

// handleGraphQL runs a query against the read-only schema over the latest
// snapshot. Resolver errors come back in the result's errors list, so the
// response is 200 either way.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GraphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := graphql.ExecuteQueryWithVariables(req.Query, s.gqlSchema, req.Variables)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("response encoding failed", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// updateMetricsPeriodically refreshes uptime and runtime gauges.
func (s *Server) updateMetricsPeriodically() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsRegistry.UpdateSystemMetrics(s.startTime)
	}
}
