package model

import "time"

// RunMode distinguishes the two analysis engines.
type RunMode string

const (
	RunModeSequential RunMode = "sequential"
	RunModeParallel   RunMode = "parallel"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the bookkeeping record for one analysis.
type Run struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Mode         RunMode   `json:"mode"`
	DocumentType string    `json:"document_type"`
	Jurisdiction string    `json:"jurisdiction"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	Degraded     int       `json:"degraded,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RunSummary is what a run reports when it finishes.
type RunSummary struct {
	Status   RunStatus
	Error    string
	Degraded int
}
