package models

import (
	"time"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
)

type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeUpdated            Outcome = "updated"
	OutcomeSkippedUnchanged   Outcome = "skipped_unchanged"
	OutcomeRejectedValidation Outcome = "rejected_validation"
	OutcomeFailedTransaction  Outcome = "failed_transaction"
	OutcomeSuperseded         Outcome = "superseded"
)

// RecordDetail explains one record that did not take the created, updated or
// skipped path.
type RecordDetail struct {
	Seq        int                     `json:"seq"`
	NaturalKey string                  `json:"natural_key,omitempty"`
	Outcome    Outcome                 `json:"outcome"`
	Kind       syncerrors.Kind         `json:"kind,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Fields     []syncerrors.FieldError `json:"fields,omitempty"`
	Attempts   int                     `json:"attempts,omitempty"`
}

// ProductChange records a product written by the run.
type ProductChange struct {
	Seq        int     `json:"seq"`
	NaturalKey string  `json:"natural_key"`
	ProductID  string  `json:"product_id"`
	ProdCode   string  `json:"prod_code"`
	Outcome    Outcome `json:"outcome"`
}

type Report struct {
	RunID              string          `json:"run_id"`
	DatasetID          string          `json:"dataset_id"`
	ProductType        ProductType     `json:"product_type,omitempty"`
	TaxonomyVersion    string          `json:"taxonomy_version,omitempty"`
	DryRun             bool            `json:"dry_run"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
	Received           int             `json:"received"`
	Accepted           int             `json:"accepted"`
	Created            int             `json:"created"`
	Updated            int             `json:"updated"`
	SkippedUnchanged   int             `json:"skipped_unchanged"`
	RejectedValidation int             `json:"rejected_validation"`
	FailedTransaction  int             `json:"failed_transaction"`
	Superseded         int             `json:"superseded"`
	Aborted            bool            `json:"aborted"`
	AbortReason        string          `json:"abort_reason,omitempty"`
	Canceled           bool            `json:"canceled"`
	NotAttempted       int             `json:"not_attempted"`
	Details            []RecordDetail  `json:"details,omitempty"`
	Changes            []ProductChange `json:"changes,omitempty"`
}

// Committed is the number of records whose transaction committed.
func (r *Report) Committed() int {
	return r.Created + r.Updated
}

func (r *Report) AddDetail(d RecordDetail) {
	switch d.Outcome {
	case OutcomeRejectedValidation:
		r.RejectedValidation++
	case OutcomeFailedTransaction:
		r.FailedTransaction++
	case OutcomeSuperseded:
		r.Superseded++
	}
	r.Details = append(r.Details, d)
}

func (r *Report) AddChange(c ProductChange) {
	switch c.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	}
	r.Changes = append(r.Changes, c)
}

// Merge folds a stage's counts and details into r. Identity fields are kept.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, d := range other.Details {
		r.AddDetail(d)
	}
	for _, c := range other.Changes {
		r.AddChange(c)
	}
	r.SkippedUnchanged += other.SkippedUnchanged
	r.NotAttempted += other.NotAttempted
	if other.Aborted {
		r.Aborted = true
		r.AbortReason = other.AbortReason
	}
	if other.Canceled {
		r.Canceled = true
	}
}
