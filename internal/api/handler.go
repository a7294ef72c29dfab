package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/worker"
)

// Handler holds dependencies for API handlers. All report endpoints are
// read-only views over the Gold tables; POST /runs publishes a run
// request for the worker instead of running the pipeline inline.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	cacheTTL time.Duration
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, cacheTTL time.Duration, version string) *Handler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		cacheTTL: cacheTTL,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRiskScores handles GET /reports/risk-scores.
func (h *Handler) ListRiskScores(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	h.cachedList(w, r, fmt.Sprintf("reports:risk-scores:%d:%d", limit, offset), func() (any, error) {
		records, err := h.repo.ListRiskScores(r.Context(), limit, offset)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"records": records,
			"count":   len(records),
			"limit":   limit,
			"offset":  offset,
		}, nil
	})
}

// ListFraudAttribution handles GET /reports/fraud-attribution.
func (h *Handler) ListFraudAttribution(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	h.cachedList(w, r, fmt.Sprintf("reports:fraud-attribution:%d:%d", limit, offset), func() (any, error) {
		records, err := h.repo.ListFraudAttribution(r.Context(), limit, offset)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"records": records,
			"count":   len(records),
			"limit":   limit,
			"offset":  offset,
		}, nil
	})
}

// ListUserRiskProfiles handles GET /reports/user-risk-profiles.
func (h *Handler) ListUserRiskProfiles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	h.cachedList(w, r, fmt.Sprintf("reports:user-risk-profiles:%d:%d", limit, offset), func() (any, error) {
		profiles, err := h.repo.ListUserRiskProfiles(r.Context(), limit, offset)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"profiles": profiles,
			"count":    len(profiles),
			"limit":    limit,
			"offset":   offset,
		}, nil
	})
}

// GetModelEvaluation handles GET /reports/model-evaluation.
func (h *Handler) GetModelEvaluation(w http.ResponseWriter, r *http.Request) {
	h.cachedList(w, r, "reports:model-evaluation", func() (any, error) {
		rows, err := h.repo.GetModelEvaluation(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"rows":  rows,
			"count": len(rows),
		}, nil
	})
}

// GetThresholdCalibration handles GET /reports/threshold-calibration.
func (h *Handler) GetThresholdCalibration(w http.ResponseWriter, r *http.Request) {
	h.cachedList(w, r, "reports:threshold-calibration", func() (any, error) {
		points, err := h.repo.GetThresholdCalibration(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"points": points,
			"count":  len(points),
		}, nil
	})
}

// RunRequestBody is the request body for POST /runs.
type RunRequestBody struct {
	FullRefresh bool `json:"fullRefresh"`
}

// RequestRun handles POST /runs: publish a run request and return 202.
func (h *Handler) RequestRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequestBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	payload, err := json.Marshal(worker.RunRequest{FullRefresh: req.FullRefresh})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode run request",
		})
		return
	}

	if err := h.bus.Publish(r.Context(), domain.TopicRunRequested, payload); err != nil {
		slog.Error("failed to publish run request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish run request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":    true,
		"fullRefresh": req.FullRefresh,
	})
}

// cachedList serves a report payload through the cache. Cache failures
// fall through to the repository; report reads must not depend on cache
// availability.
func (h *Handler) cachedList(w http.ResponseWriter, r *http.Request, key string, load func() (any, error)) {
	if h.cache != nil {
		if data, err := h.cache.Get(r.Context(), key); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	payload, err := load()
	if err != nil {
		slog.Error("failed to load report", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode report",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(r.Context(), key, data, h.cacheTTL)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// pageParams extracts limit and offset query parameters with defaults.
func pageParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
