package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using modernc.org/sqlite
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLite creates a new SQLite storage instance
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// createSchema creates the database schema
func (s *SQLite) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_logs (
		id                TEXT PRIMARY KEY,
		request_id        TEXT NOT NULL,
		api_key_id        TEXT,
		model             TEXT NOT NULL,
		provider          TEXT NOT NULL,
		prompt_tokens     INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		total_tokens      INTEGER DEFAULT 0,
		usage_estimated   INTEGER DEFAULT 0,
		is_streaming      INTEGER DEFAULT 0,
		status_code       INTEGER,
		error_message     TEXT,
		duration_ms       INTEGER,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS usage_daily (
		date              TEXT NOT NULL,
		model             TEXT NOT NULL,
		request_count     INTEGER DEFAULT 0,
		prompt_tokens     INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		total_tokens      INTEGER DEFAULT 0,
		error_count       INTEGER DEFAULT 0,
		PRIMARY KEY (date, model)
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		key_hash     TEXT NOT NULL,
		key_prefix   TEXT NOT NULL,
		rate_limit   INTEGER DEFAULT 0,
		is_active    INTEGER DEFAULT 1,
		last_used_at DATETIME,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at   DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_model ON request_logs(model);
	CREATE INDEX IF NOT EXISTS idx_usage_date ON usage_daily(date);
	CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
	CREATE INDEX IF NOT EXISTS idx_api_keys_active ON api_keys(is_active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// LogRequest stores a request log entry
func (s *SQLite) LogRequest(log *RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	if log.ID == "" {
		log.ID = generateID("log")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO request_logs (id, request_id, api_key_id, model, provider,
			prompt_tokens, completion_tokens, total_tokens, usage_estimated,
			is_streaming, status_code, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.RequestID, nullString(log.APIKeyID), log.Model, log.Provider,
		log.PromptTokens, log.CompletionTokens, log.TotalTokens, boolToInt(log.UsageEstimated),
		boolToInt(log.IsStreaming), log.StatusCode, log.ErrorMessage, log.DurationMs, log.CreatedAt)

	return err
}

// GetRequestLogs retrieves request logs with filtering
func (s *SQLite) GetRequestLogs(filter LogFilter) ([]*RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	query := `SELECT id, request_id, COALESCE(api_key_id, ''), model, provider,
		prompt_tokens, completion_tokens, total_tokens, usage_estimated,
		is_streaming, status_code, COALESCE(error_message, ''), duration_ms, created_at
		FROM request_logs WHERE 1=1`

	var args []interface{}

	if filter.Model != "" {
		query += " AND model = ?"
		args = append(args, filter.Model)
	}
	if filter.StatusCode != nil {
		query += " AND status_code = ?"
		args = append(args, *filter.StatusCode)
	}
	if filter.IsStreaming != nil {
		query += " AND is_streaming = ?"
		args = append(args, boolToInt(*filter.IsStreaming))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*RequestLog
	for rows.Next() {
		var log RequestLog
		var usageEstimated, isStreaming int

		err := rows.Scan(&log.ID, &log.RequestID, &log.APIKeyID, &log.Model, &log.Provider,
			&log.PromptTokens, &log.CompletionTokens, &log.TotalTokens, &usageEstimated,
			&isStreaming, &log.StatusCode, &log.ErrorMessage, &log.DurationMs, &log.CreatedAt)
		if err != nil {
			return nil, err
		}

		log.UsageEstimated = usageEstimated == 1
		log.IsStreaming = isStreaming == 1
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// UpdateDailyUsage upserts the daily usage aggregate row for a model
func (s *SQLite) UpdateDailyUsage(usage *DailyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO usage_daily (date, model, request_count, prompt_tokens,
			completion_tokens, total_tokens, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, model) DO UPDATE SET
			request_count     = request_count + excluded.request_count,
			prompt_tokens     = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens,
			total_tokens      = total_tokens + excluded.total_tokens,
			error_count       = error_count + excluded.error_count
	`, usage.Date, usage.Model, usage.RequestCount, usage.PromptTokens,
		usage.CompletionTokens, usage.TotalTokens, usage.ErrorCount)

	return err
}

// GetDailyUsage retrieves daily aggregates in the inclusive [from, to] range
func (s *SQLite) GetDailyUsage(from, to string) ([]*DailyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rows, err := s.db.Query(`
		SELECT date, model, request_count, prompt_tokens, completion_tokens,
			total_tokens, error_count
		FROM usage_daily
		WHERE date >= ? AND date <= ?
		ORDER BY date DESC, model
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []*DailyUsage
	for rows.Next() {
		var u DailyUsage
		err := rows.Scan(&u.Date, &u.Model, &u.RequestCount, &u.PromptTokens,
			&u.CompletionTokens, &u.TotalTokens, &u.ErrorCount)
		if err != nil {
			return nil, err
		}
		usages = append(usages, &u)
	}

	return usages, rows.Err()
}

// CreateAPIKey stores a new client API key
func (s *SQLite) CreateAPIKey(key *ClientAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	if key.ID == "" {
		key.ID = generateID("key")
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO api_keys (id, name, key_hash, key_prefix, rate_limit,
			is_active, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.RateLimit,
		boolToInt(key.IsActive), key.CreatedAt, key.ExpiresAt)

	return err
}

// GetAPIKeyByPrefix retrieves all keys matching an identifying prefix
func (s *SQLite) GetAPIKeyByPrefix(prefix string) ([]*ClientAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rows, err := s.db.Query(`
		SELECT id, name, key_hash, key_prefix, rate_limit, is_active,
			last_used_at, created_at, expires_at
		FROM api_keys WHERE key_prefix = ?
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*ClientAPIKey
	for rows.Next() {
		var k ClientAPIKey
		var isActive int

		err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.RateLimit,
			&isActive, &k.LastUsedAt, &k.CreatedAt, &k.ExpiresAt)
		if err != nil {
			return nil, err
		}

		k.IsActive = isActive == 1
		keys = append(keys, &k)
	}

	return keys, rows.Err()
}

// HasAPIKeys reports whether any client API key has been created
func (s *SQLite) HasAPIKeys() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStorageClosed
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM api_keys`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateAPIKeyLastUsed stamps the key's last use time
func (s *SQLite) UpdateAPIKeyLastUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	_, err := s.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

// generateID creates a new unique ID with a prefix
func generateID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
