package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// LimitView is the API form of a limit.
type LimitView struct {
	PackageName string `json:"package_name"`
	*bridge.LimitReport
	UpdatedAt time.Time `json:"updated_at"`
}

func newLimitView(l limits.AppLimit) LimitView {
	return LimitView{
		PackageName: l.AppID,
		LimitReport: bridge.NewLimitReport(l),
		UpdatedAt:   l.UpdatedAt,
	}
}

// setLimitRequest is the body of PUT /limits/{app}/{type}.
type setLimitRequest struct {
	Value    *int64 `json:"value"`
	AppName  string `json:"app_name,omitempty"`
	IsPublic *bool  `json:"is_public,omitempty"`
}

// LimitsHandler handles limit API requests.
type LimitsHandler struct {
	store   *limits.Store
	monitor Monitor
	logger  zerolog.Logger
}

// NewLimitsHandler creates a new limits handler.
func NewLimitsHandler(store *limits.Store, monitor Monitor, logger zerolog.Logger) *LimitsHandler {
	return &LimitsHandler{
		store:   store,
		monitor: monitor,
		logger:  logger.With().Str("handler", "limits").Logger(),
	}
}

// List returns all limits of the session owner.
func (h *LimitsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListLimits(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list limits")
		writeFailure(w, err, "Failed to retrieve limits")
		return
	}

	views := make([]LimitView, 0, len(list))
	for _, l := range list {
		views = append(views, newLimitView(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits": views,
		"count":  len(views),
	})
}

// Get returns the limit of one app.
func (h *LimitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["app"]

	limit, err := h.store.GetLimit(r.Context(), appID)
	if err != nil {
		h.logger.Error().Err(err).Str("app", appID).Msg("Failed to get limit")
		writeFailure(w, err, "Failed to retrieve limit")
		return
	}
	if limit == nil {
		writeError(w, http.StatusNotFound, "not_found", "No limit configured for "+appID)
		return
	}
	writeJSON(w, http.StatusOK, newLimitView(*limit))
}

// Set sets and enables one limit type.
func (h *LimitsHandler) Set(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appID := vars["app"]

	limitType, err := storage.ParseLimitType(vars["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_type", err.Error())
		return
	}

	var req setLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "value is required")
		return
	}
	if *req.Value < 0 || *req.Value > math.MaxUint32 {
		writeError(w, http.StatusBadRequest, "invalid_body", "value must be a non-negative 32-bit integer")
		return
	}

	meta := limits.Meta{AppName: req.AppName, Public: req.IsPublic}
	limit, err := h.store.SetLimitWithMeta(r.Context(), appID, limitType, uint32(*req.Value), meta)
	if err != nil {
		h.logger.Error().Err(err).Str("app", appID).Str("type", string(limitType)).Msg("Failed to set limit")
		writeFailure(w, err, "Failed to set limit")
		return
	}

	h.monitor.Trigger()
	writeJSON(w, http.StatusOK, newLimitView(*limit))
}

// Remove disables and clears one limit type. The response carries what is
// left of the limit, or null once nothing is configured.
func (h *LimitsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appID := vars["app"]

	limitType, err := storage.ParseLimitType(vars["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_type", err.Error())
		return
	}

	limit, err := h.store.RemoveLimit(r.Context(), appID, limitType)
	if err != nil {
		h.logger.Error().Err(err).Str("app", appID).Str("type", string(limitType)).Msg("Failed to remove limit")
		writeFailure(w, err, "Failed to remove limit")
		return
	}

	h.monitor.Trigger()

	var remaining *LimitView
	if limit != nil {
		v := newLimitView(*limit)
		remaining = &v
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_name": appID,
		"limit":        remaining,
	})
}
