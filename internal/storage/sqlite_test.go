package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) (*SQLite, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "streamgate-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLite(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestRequestLogRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	entry := &RequestLog{
		RequestID:        "req-abc",
		Model:            "gpt-4o",
		Provider:         "aggregator",
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
		UsageEstimated:   true,
		IsStreaming:      true,
		StatusCode:       200,
		DurationMs:       1234,
	}

	if err := store.LogRequest(entry); err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected ID to be generated")
	}

	logs, err := store.GetRequestLogs(LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("GetRequestLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}

	got := logs[0]
	if got.RequestID != "req-abc" {
		t.Errorf("expected request id %q, got %q", "req-abc", got.RequestID)
	}
	if got.TotalTokens != 30 {
		t.Errorf("expected total tokens 30, got %d", got.TotalTokens)
	}
	if !got.UsageEstimated {
		t.Error("usage_estimated flag lost in round trip")
	}
	if !got.IsStreaming {
		t.Error("is_streaming flag lost in round trip")
	}
}

func TestRequestLogFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	streaming := []bool{true, false, true}
	statuses := []int{200, 502, 200}
	for i := range streaming {
		err := store.LogRequest(&RequestLog{
			RequestID:   "req",
			Model:       "gpt-4o",
			Provider:    "aggregator",
			IsStreaming: streaming[i],
			StatusCode:  statuses[i],
		})
		if err != nil {
			t.Fatalf("LogRequest failed: %v", err)
		}
	}

	isStreaming := true
	logs, err := store.GetRequestLogs(LogFilter{IsStreaming: &isStreaming, Limit: 10})
	if err != nil {
		t.Fatalf("GetRequestLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 streaming logs, got %d", len(logs))
	}

	status := 502
	logs, err = store.GetRequestLogs(LogFilter{StatusCode: &status, Limit: 10})
	if err != nil {
		t.Fatalf("GetRequestLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("expected 1 error log, got %d", len(logs))
	}
}

func TestDailyUsageUpsert(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	day := time.Now().UTC().Format("2006-01-02")

	for i := 0; i < 3; i++ {
		err := store.UpdateDailyUsage(&DailyUsage{
			Date:             day,
			Model:            "gpt-4o",
			RequestCount:     1,
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		})
		if err != nil {
			t.Fatalf("UpdateDailyUsage failed: %v", err)
		}
	}

	usages, err := store.GetDailyUsage(day, day)
	if err != nil {
		t.Fatalf("GetDailyUsage failed: %v", err)
	}
	if len(usages) != 1 {
		t.Fatalf("expected 1 aggregated row, got %d", len(usages))
	}
	if usages[0].RequestCount != 3 {
		t.Errorf("expected request count 3, got %d", usages[0].RequestCount)
	}
	if usages[0].TotalTokens != 45 {
		t.Errorf("expected total tokens 45, got %d", usages[0].TotalTokens)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	hasKeys, err := store.HasAPIKeys()
	if err != nil {
		t.Fatalf("HasAPIKeys failed: %v", err)
	}
	if hasKeys {
		t.Error("fresh database must report no keys")
	}

	key := &ClientAPIKey{
		Name:      "test key",
		KeyHash:   "$argon2id$fake",
		KeyPrefix: "sg_a1B2c3D4",
		RateLimit: 60,
		IsActive:  true,
	}
	if err := store.CreateAPIKey(key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if key.ID == "" {
		t.Error("expected ID to be generated")
	}

	hasKeys, err = store.HasAPIKeys()
	if err != nil {
		t.Fatalf("HasAPIKeys failed: %v", err)
	}
	if !hasKeys {
		t.Error("expected keys after create")
	}

	keys, err := store.GetAPIKeyByPrefix("sg_a1B2c3D4")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if keys[0].Name != "test key" || !keys[0].IsActive {
		t.Errorf("unexpected key %+v", keys[0])
	}
	if keys[0].LastUsedAt != nil {
		t.Error("fresh key must have no last-used timestamp")
	}

	if err := store.UpdateAPIKeyLastUsed(key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}
	keys, err = store.GetAPIKeyByPrefix("sg_a1B2c3D4")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if keys[0].LastUsedAt == nil {
		t.Error("expected last-used timestamp after update")
	}
}

func TestClosedStorageRejectsOperations(t *testing.T) {
	store, cleanup := setupTestDB(t)
	cleanup()

	if err := store.LogRequest(&RequestLog{RequestID: "x", Model: "m", Provider: "p"}); err != ErrStorageClosed {
		t.Errorf("expected ErrStorageClosed, got %v", err)
	}
	if _, err := store.HasAPIKeys(); err != ErrStorageClosed {
		t.Errorf("expected ErrStorageClosed, got %v", err)
	}
}
