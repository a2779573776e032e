package domain

import "time"

// CycleStatus enumerates how a weekly cycle ended.
type CycleStatus string

const (
	StatusPublished CycleStatus = "published"
	StatusDryRun    CycleStatus = "dry_run"
	StatusRejected  CycleStatus = "rejected"
)

// CycleRun is the persisted record of one reconcile-and-publish cycle.
type CycleRun struct {
	ID        string
	Day       time.Time
	StartedAt time.Time
	Status    CycleStatus
	Previous  int
	Generated int
	Matched   int
	New       int
	Warnings  int
	// Summary is the plain-text digest, or the validation errors of a rejected run.
	Summary string
	// Snapshot is a JSON object with the run's statistics and warnings.
	Snapshot string
}
