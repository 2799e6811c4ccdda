package models

import "time"

// RunSummary describes the outcome of a single backup run.
type RunSummary struct {
	RunID         string    `json:"runId"`
	Backup        string    `json:"backup"`
	Bytes         int64     `json:"bytes"`
	ServerDeleted string    `json:"serverDeleted,omitempty"`
	LocalDeleted  []string  `json:"localDeleted,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}
