package models

import "time"

type SyncRunStatus string

const (
	SyncRunStatusCompleted SyncRunStatus = "completed"
	SyncRunStatusAborted   SyncRunStatus = "aborted"
	SyncRunStatusCanceled  SyncRunStatus = "canceled"
)

// SyncRun is the persisted summary of one ingest run.
type SyncRun struct {
	ID          string        `json:"id" db:"id"`
	DatasetID   string        `json:"dataset_id" db:"dataset_id"`
	ProductType string        `json:"product_type" db:"product_type"`
	Status      SyncRunStatus `json:"status" db:"status"`
	Report      *Report       `json:"report" db:"-"`
	StartedAt   time.Time     `json:"started_at" db:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" db:"finished_at"`
}

func StatusOf(r *Report) SyncRunStatus {
	switch {
	case r.Aborted:
		return SyncRunStatusAborted
	case r.Canceled:
		return SyncRunStatusCanceled
	default:
		return SyncRunStatusCompleted
	}
}
