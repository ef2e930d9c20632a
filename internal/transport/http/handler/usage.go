package handler

import (
	"net/http"
	"strconv"
	"time"

	"streamgate/internal/storage"
	"streamgate/internal/types"
)

// GetDailyUsage handles GET /api/usage/daily
func (h *Handlers) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Default to last 30 days if not specified
	if startDate == "" {
		startDate = time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	}
	if endDate == "" {
		endDate = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.ErrInvalidRequest("invalid start_date, use YYYY-MM-DD"))
		return
	}
	if _, err := time.Parse("2006-01-02", endDate); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.ErrInvalidRequest("invalid end_date, use YYYY-MM-DD"))
		return
	}

	usage, err := h.Storage.GetDailyUsage(startDate, endDate)
	if err != nil {
		h.Logger.Error("daily usage query failed", "error", err)
		types.WriteError(w, http.StatusInternalServerError, types.ErrServer("failed to get daily usage"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"daily_usage": usage,
		"start_date":  startDate,
		"end_date":    endDate,
	})
}

// GetRequestLogs handles GET /api/logs
func (h *Handlers) GetRequestLogs(w http.ResponseWriter, r *http.Request) {
	filter := parseLogFilter(r)

	logs, err := h.Storage.GetRequestLogs(filter)
	if err != nil {
		h.Logger.Error("request log query failed", "error", err)
		types.WriteError(w, http.StatusInternalServerError, types.ErrServer("failed to get request logs"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// parseLogFilter creates a LogFilter from query parameters
func parseLogFilter(r *http.Request) storage.LogFilter {
	filter := storage.LogFilter{
		Limit:  50, // default
		Offset: 0,
	}

	if v := r.URL.Query().Get("model"); v != "" {
		filter.Model = v
	}
	if v := r.URL.Query().Get("status_code"); v != "" {
		if code, err := strconv.Atoi(v); err == nil {
			filter.StatusCode = &code
		}
	}
	if v := r.URL.Query().Get("streaming"); v != "" {
		if streaming, err := strconv.ParseBool(v); err == nil {
			filter.IsStreaming = &streaming
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	return filter
}
