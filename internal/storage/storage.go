// Package storage persists request logs, usage aggregates and client API
// keys in SQLite.
package storage

import "errors"

// ErrStorageClosed is returned by operations on a closed store.
var ErrStorageClosed = errors.New("storage is closed")

// Storage is the persistence interface used by handlers and middleware.
type Storage interface {
	// Request logging
	LogRequest(log *RequestLog) error
	GetRequestLogs(filter LogFilter) ([]*RequestLog, error)

	// Usage aggregates
	UpdateDailyUsage(usage *DailyUsage) error
	GetDailyUsage(from, to string) ([]*DailyUsage, error)

	// API keys
	CreateAPIKey(key *ClientAPIKey) error
	GetAPIKeyByPrefix(prefix string) ([]*ClientAPIKey, error)
	UpdateAPIKeyLastUsed(id string) error
	HasAPIKeys() (bool, error)

	Close() error
}
