package handler

import (
	"time"

	"github.com/google/uuid"

	"streamgate/internal/storage"
)

// storageLog carries one finished request to the store.
type storageLog struct {
	RequestID string
	Result    *chatResult
	Duration  time.Duration
}

// write persists the request log entry and bumps the daily aggregate.
// Runs in an async context; errors are intentionally dropped.
func (l *storageLog) write(h *Handlers) {
	res := l.Result

	entry := &storage.RequestLog{
		ID:               uuid.New().String(),
		RequestID:        l.RequestID,
		Model:            res.Model,
		Provider:         ProviderName,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
		UsageEstimated:   res.UsageEstimated,
		IsStreaming:      res.IsStreaming,
		StatusCode:       res.StatusCode,
		ErrorMessage:     res.ErrorMessage,
		DurationMs:       l.Duration.Milliseconds(),
		CreatedAt:        time.Now(),
	}
	_ = h.Storage.LogRequest(entry)

	errorCount := 0
	if res.StatusCode >= 400 {
		errorCount = 1
	}
	_ = h.Storage.UpdateDailyUsage(&storage.DailyUsage{
		Date:             time.Now().Format("2006-01-02"),
		Model:            res.Model,
		RequestCount:     1,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
		ErrorCount:       errorCount,
	})
}
