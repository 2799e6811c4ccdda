package models

import "time"

// Event represents a recorded step of a backup run.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	Type      string    `json:"type"`  // e.g., "backup.create", "backup.prune.local"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	Backup    *string   `json:"backup,omitempty"` // Nullable for run-wide events
	CreatedAt time.Time `json:"createdAt"`
}
