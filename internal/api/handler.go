package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/regtools/internal/bus"
	"github.com/opensource-finance/regtools/internal/classifier"
	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/metrics"
	"github.com/opensource-finance/regtools/internal/pipeline"
	"github.com/opensource-finance/regtools/internal/repository"
	"github.com/opensource-finance/regtools/internal/rules"
	"github.com/opensource-finance/regtools/internal/thresholds"
	"github.com/opensource-finance/regtools/internal/worker"
)

const (
	// DefaultMaxBatchSize caps POST /evaluate/batch when the config sets no limit.
	DefaultMaxBatchSize = 1000

	// maxProfileBytes bounds the body of a batch at this many bytes per
	// allowed profile.
	maxProfileBytes = 16 << 10
)

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline     *pipeline.Pipeline
	metrics      *metrics.Metrics
	worker       *worker.Worker
	version      string
	maxBatchSize int
	policyAdmin  string
}

// NewHandler creates a new API handler. Repository, cache and bus come from
// the pipeline and may be nil.
func NewHandler(p *pipeline.Pipeline, m *metrics.Metrics, maxBatchSize int, version string) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Handler{
		pipeline:     p,
		metrics:      m,
		version:      version,
		maxBatchSize: maxBatchSize,
	}
}

// Evaluate handles POST /evaluate. The body is a client profile; it is
// stored, evaluated, and the evaluation is returned.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var profile domain.ClientProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	if repo := h.pipeline.Repo; repo != nil {
		if err := repo.SaveProfile(ctx, tenantID, &profile); err != nil {
			slog.Error("failed to save profile",
				"profile_id", profile.ID,
				"error", err,
			)
		}
	}

	eval := h.pipeline.Run(ctx, pipeline.Request{
		TenantID: tenantID,
		TraceID:  GetTraceID(ctx),
		Source:   "api",
		Profile:  &profile,
	})

	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// BatchRequest is the request body for POST /evaluate/batch.
type BatchRequest struct {
	Profiles []*domain.ClientProfile `json:"profiles"`
}

// BatchResponse summarises a batch evaluation.
type BatchResponse struct {
	Count     int                        `json:"count"`
	Alerts    int                        `json:"alerts"`
	Triggered map[int]int                `json:"triggered"` // indicator id -> profiles
	Reports   []*domain.EvaluationReport `json:"reports"`
	TotalMs   int64                      `json:"totalMs"`
}

// EvaluateBatch handles POST /evaluate/batch. Profiles are evaluated
// concurrently without persistence, for portfolio backtesting.
func (h *Handler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxBatchSize)*maxProfileBytes)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Profiles) > h.maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d profiles", h.maxBatchSize))
		return
	}

	reports, err := h.pipeline.Engine.EvaluateBatch(r.Context(), req.Profiles, rules.DefaultBatchWorkers)
	if err != nil {
		slog.Warn("batch evaluation aborted", "error", err)
		writeError(w, http.StatusServiceUnavailable, "batch evaluation aborted")
		return
	}

	resp := BatchResponse{
		Count:     len(reports),
		Triggered: make(map[int]int),
		Reports:   reports,
	}
	var perReport time.Duration
	if len(reports) > 0 {
		perReport = time.Since(start) / time.Duration(len(reports))
	}
	for _, report := range reports {
		h.metrics.RecordReport("batch", report, perReport)
		if report.Triggered {
			resp.Alerts++
		}
		for _, res := range report.TriggeredResults() {
			resp.Triggered[res.ID]++
		}
	}
	resp.TotalMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// ClassifyRequest is the request body for POST /classify.
type ClassifyRequest struct {
	Occupation string `json:"occupation"`
}

// ClassifyResponse reports the risk group and the keyword that decided it.
type ClassifyResponse struct {
	Occupation string           `json:"occupation"`
	Group      domain.RiskGroup `json:"group"`
	Keyword    string           `json:"keyword,omitempty"`
}

// Classify handles POST /classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	group, keyword := classifier.Match(req.Occupation)
	writeJSON(w, http.StatusOK, ClassifyResponse{
		Occupation: req.Occupation,
		Group:      group,
		Keyword:    keyword,
	})
}

// CreateProfile handles POST /profiles. The profile is stored and queued
// for asynchronous evaluation by the worker.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	repo := h.pipeline.Repo
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	var profile domain.ClientProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	if err := repo.SaveProfile(ctx, tenantID, &profile); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to save profile", "profile_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	queued := false
	if b := h.pipeline.Bus; b != nil {
		msg := worker.ProfileMessage{TenantID: tenantID, TraceID: GetTraceID(ctx), Profile: profile}
		if err := bus.PublishJSON(ctx, b, tenantID, domain.TopicProfileIngested, msg); err != nil {
			slog.Error("failed to publish profile", "profile_id", profile.ID, "error", err)
		} else {
			queued = true
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"profileId": profile.ID,
		"queued":    queued,
	})
}

// ListProfiles handles GET /profiles. The optional limit query parameter
// caps the result; the repository applies its own default otherwise.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	repo := h.pipeline.Repo
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	profiles, err := repo.ListProfiles(ctx, GetTenantID(ctx), limit)
	if err != nil {
		writeRepoError(w, "profiles", "", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// GetProfile retrieves a profile by ID.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := chi.URLParam(r, "id")

	repo := h.pipeline.Repo
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	profile, err := repo.GetProfile(ctx, GetTenantID(ctx), profileID)
	if err != nil {
		writeRepoError(w, "profile", profileID, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ListProfileEvaluations returns a profile's evaluations, newest first.
func (h *Handler) ListProfileEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	profileID := chi.URLParam(r, "id")

	repo := h.pipeline.Repo
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	if _, err := repo.GetProfile(ctx, tenantID, profileID); err != nil {
		writeRepoError(w, "profile", profileID, err)
		return
	}

	evals, err := repo.ListEvaluationsByProfile(ctx, tenantID, profileID)
	if err != nil {
		writeRepoError(w, "evaluations", profileID, err)
		return
	}

	responses := make([]*domain.EvaluationResponse, len(evals))
	for i, eval := range evals {
		responses[i] = eval.ToResponse()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": responses,
		"count":       len(responses),
	})
}

// ClientContracts handles GET /clients/{clientId}/contracts: the number of
// subscriptions stored for the client within the active-contracts window.
func (h *Handler) ClientContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "clientId")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required")
		return
	}

	svc := h.pipeline.History
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "client history not available")
		return
	}

	count, err := svc.ActiveContracts(ctx, GetTenantID(ctx), clientID)
	if err != nil {
		slog.Error("failed to count client contracts", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count client contracts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clientId":          clientID,
		"activeContracts3Y": count,
		"windowDays":        int(domain.ActiveContractsWindow.Hours() / 24),
	})
}

// GetEvaluation retrieves an evaluation by ID, from the cache when possible.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	if c := h.pipeline.Cache; c != nil {
		eval, err := c.GetEvaluation(ctx, tenantID, evalID)
		if err != nil {
			slog.Warn("evaluation cache read failed", "evaluation_id", evalID, "error", err)
		}
		if eval != nil {
			writeJSON(w, http.StatusOK, eval.ToResponse())
			return
		}
	}

	repo := h.pipeline.Repo
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	eval, err := repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeRepoError(w, "evaluation", evalID, err)
		return
	}

	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// Catalogue lists the indicator definitions.
func (h *Handler) Catalogue(w http.ResponseWriter, r *http.Request) {
	indicators := h.pipeline.Engine.Catalogue()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    rules.CatalogueVersion,
		"indicators": indicators,
		"count":      len(indicators),
	})
}

// Thresholds returns the active threshold policy.
func (h *Handler) Thresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Engine.Policy())
}

// ReplaceThresholds swaps the active policy for the one in the body.
// The policy is process-wide, so only the configured admin tenant may
// replace it. Evaluations already running keep the policy they started with.
func (h *Handler) ReplaceThresholds(w http.ResponseWriter, r *http.Request) {
	if h.policyAdmin == "" {
		writeError(w, http.StatusForbidden, "threshold policy updates are disabled")
		return
	}
	if GetTenantID(r.Context()) != h.policyAdmin {
		writeError(w, http.StatusForbidden, "tenant may not replace the threshold policy")
		return
	}

	var policy thresholds.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := h.pipeline.Engine.SetPolicy(&policy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("threshold policy replaced",
		"version", policy.Version,
		"tenant_id", GetTenantID(r.Context()),
		"request_id", GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"version": policy.Version,
	})
}

// HealthResponse is the body of GET /health. Component stats are present
// only when the component exposes them.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Policy  string        `json:"policy"`
	Cache   *CacheStats   `json:"cache,omitempty"`
	Bus     *bus.Stats    `json:"bus,omitempty"`
	Worker  *worker.Stats `json:"worker,omitempty"`
}

// CacheStats reports the local cache tier.
type CacheStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Policy:  h.pipeline.Engine.Policy().Version,
	}

	if repo := h.pipeline.Repo; repo != nil {
		if err := repo.Ping(ctx); err != nil {
			resp.Status = "degraded"
		}
	}
	if c := h.pipeline.Cache; c != nil {
		if err := c.Ping(ctx); err != nil {
			resp.Status = "degraded"
		}
		if sc, ok := c.(interface{ Stats() (int, int) }); ok {
			size, capacity := sc.Stats()
			resp.Cache = &CacheStats{Size: size, Capacity: capacity}
		}
	}
	if b := h.pipeline.Bus; b != nil {
		if err := b.Ping(ctx); err != nil {
			resp.Status = "degraded"
		}
		if sb, ok := b.(interface{ Stats() bus.Stats }); ok {
			stats := sb.Stats()
			resp.Bus = &stats
		}
	}
	if h.worker != nil {
		stats := h.worker.GetStats()
		resp.Worker = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the repository is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if repo := h.pipeline.Repo; repo != nil {
		if err := repo.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "repository not reachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeRepoError maps repository errors to HTTP statuses.
func writeRepoError(w http.ResponseWriter, kind, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, kind+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository read failed", "kind", kind, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read "+kind)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
