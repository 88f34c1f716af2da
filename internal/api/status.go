package api

import (
	"net/http"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/monitor"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
)

// BudgetView is what is left of each enabled limit today.
type BudgetView struct {
	TimeRemainingMs   *int64  `json:"time_remaining_ms,omitempty"`
	TimeRemaining     string  `json:"time_remaining,omitempty"`
	SessionsRemaining *uint32 `json:"sessions_remaining,omitempty"`
}

// AppStatusView is one app in the status response.
type AppStatusView struct {
	bridge.AppReport
	Remaining *BudgetView `json:"remaining,omitempty"`
}

// StatusResponse is the latest monitor snapshot.
type StatusResponse struct {
	TakenAtMs     int64           `json:"taken_at_ms"`
	WindowStartMs int64           `json:"window_start_ms"`
	WindowEndMs   int64           `json:"window_end_ms"`
	NoData        bool            `json:"no_data"`
	Restricted    []string        `json:"restricted"`
	Apps          []AppStatusView `json:"apps"`
}

func newStatusResponse(s *monitor.Snapshot) StatusResponse {
	resp := StatusResponse{
		TakenAtMs:     s.TakenAt.UnixMilli(),
		WindowStartMs: s.Start.UnixMilli(),
		WindowEndMs:   s.End.UnixMilli(),
		NoData:        s.NoData(),
		Restricted:    []string{},
		Apps:          make([]AppStatusView, 0, len(s.Apps)),
	}

	for _, a := range s.Apps {
		view := AppStatusView{
			AppReport: bridge.NewAppReport(a.Usage).WithProjection(a.Projection).WithLimit(a.Limit, a.Decision),
		}
		if a.Budget.HasTime || a.Budget.HasSessions {
			b := &BudgetView{}
			if a.Budget.HasTime {
				ms := a.Budget.TimeRemaining.Milliseconds()
				b.TimeRemainingMs = &ms
				b.TimeRemaining = usage.FormatDuration(a.Budget.TimeRemaining)
			}
			if a.Budget.HasSessions {
				n := a.Budget.SessionsRemaining
				b.SessionsRemaining = &n
			}
			view.Remaining = b
		}
		if a.Decision.IsRestricted {
			resp.Restricted = append(resp.Restricted, a.Usage.AppID)
		}
		resp.Apps = append(resp.Apps, view)
	}
	return resp
}

// StatusHandler serves the latest restriction state.
type StatusHandler struct {
	monitor Monitor
	logger  zerolog.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(monitor Monitor, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		monitor: monitor,
		logger:  logger.With().Str("handler", "status").Logger(),
	}
}

// Get returns the latest complete snapshot, or the error that the latest
// poll ended in when no usable snapshot exists.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.monitor.Latest()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "No poll has completed yet")
		return
	}
	if snap.Err != nil {
		writeFailure(w, snap.Err, "Latest poll failed")
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(snap))
}
