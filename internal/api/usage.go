package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// UsageHandler serves aggregated usage.
type UsageHandler struct {
	service *usage.Service
	logger  zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(service *usage.Service, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		service: service,
		logger:  logger.With().Str("handler", "usage").Logger(),
	}
}

// List returns the aggregates for a window given by ?period= or by
// ?start=&end= (RFC 3339 or epoch milliseconds). Without either, the window
// covers yesterday and today.
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}

	stats, err := h.service.GetUsageStats(r.Context(), start, end)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Usage query failed")
		writeFailure(w, err, "Failed to query usage")
		return
	}

	apps := make([]bridge.AppReport, 0, len(stats.Apps))
	for _, a := range stats.Apps {
		apps = append(apps, bridge.NewAppReport(a).WithProjection(usage.Project(a, stats.Now)))
	}

	body, err := bridge.EncodeUsageReport(bridge.NewUsageReport(stats.Now, stats.Start, stats.End, apps))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode usage report")
		writeError(w, http.StatusInternalServerError, "internal", "Failed to encode usage report")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// Projection returns the timeframe rollups of one app.
func (h *UsageHandler) Projection(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["app"]

	now := h.service.Clock().Now()
	stats, err := h.service.GetUsageStats(r.Context(), defaultStart(now), now)
	if err != nil {
		writeFailure(w, err, "Failed to query usage")
		return
	}

	a, ok := stats.Find(appID)
	if !ok {
		writeError(w, http.StatusNotFound, "no_data", "No usage recorded for "+appID)
		return
	}

	report := bridge.NewAppReport(a).WithProjection(h.service.GetProjections(a, stats.Now))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_name": appID,
		"projection":   report.Projection,
		"today":        usage.FormatDuration(a.TodayDuration),
		"yesterday":    usage.FormatDuration(a.YesterdayDuration),
	})
}

func (h *UsageHandler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := h.service.Clock().Now()

	if period := q.Get("period"); period != "" {
		if q.Get("start") != "" || q.Get("end") != "" {
			return time.Time{}, time.Time{}, fmt.Errorf("period cannot be combined with start/end")
		}
		tf, err := usage.ParseTimeframe(period)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return usage.RangeFor(tf, now)
	}

	start := defaultStart(now)
	end := now
	if v := q.Get("start"); v != "" {
		t, err := parseInstant(v, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseInstant(v, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
		end = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be before end")
	}
	return start, end, nil
}

// defaultStart is yesterday's midnight, the earliest day aggregates report.
func defaultStart(now time.Time) time.Time {
	return usage.StartOfDay(now).AddDate(0, 0, -1)
}

func parseInstant(v string, loc *time.Location) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
