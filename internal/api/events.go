package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/events"
	"github.com/rs/zerolog"
)

// maxBatchBytes bounds an ingested event batch.
const maxBatchBytes = 4 << 20

// EventsHandler handles event ingestion and usage-access permission.
type EventsHandler struct {
	source   events.Source
	recorder bridge.Recorder
	monitor  Monitor
	logger   zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(source events.Source, recorder bridge.Recorder, monitor Monitor, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		source:   source,
		recorder: recorder,
		monitor:  monitor,
		logger:   logger.With().Str("handler", "events").Logger(),
	}
}

// Ingest appends a device event batch to the journal.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Event batch exceeds size limit")
		return
	}

	n, err := bridge.IngestBytes(r.Context(), h.recorder, "api", data)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Event batch not ingested")
		writeFailure(w, err, "Failed to ingest events")
		return
	}

	h.monitor.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": n,
	})
}

type permissionResponse struct {
	State events.PermissionState `json:"state"`
}

// GetPermission reports the current usage-access state.
func (h *EventsHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, r)
}

// SetPermission records a usage-access grant or revocation from the device.
func (h *EventsHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Granted *bool `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Granted == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "granted is required")
		return
	}

	if err := h.recorder.SetPermission(r.Context(), *req.Granted); err != nil {
		h.logger.Error().Err(err).Msg("Failed to store usage access")
		writeFailure(w, err, "Failed to update permission")
		return
	}

	h.monitor.Trigger()
	h.writeState(w, r)
}

// Recheck is the resume signal: the permission is queried again and a poll
// is requested so restrictions reflect whatever changed while away.
func (h *EventsHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	h.monitor.Trigger()
	h.writeState(w, r)
}

func (h *EventsHandler) writeState(w http.ResponseWriter, r *http.Request) {
	state, err := h.source.RequestPermission(r.Context())
	if err != nil {
		writeFailure(w, err, "Failed to query permission")
		return
	}
	writeJSON(w, http.StatusOK, permissionResponse{State: state})
}
