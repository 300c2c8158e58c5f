package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies sync failures. Record-scoped kinds are reported against one
// record and the batch continues; batch-fatal kinds abort the run.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindDuplicateKey         Kind = "duplicate_key"
	KindReferentialIntegrity Kind = "referential_integrity"
	KindTransactionTimeout   Kind = "transaction_timeout"
	KindTransaction          Kind = "transaction"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindCatalogUnavailable   Kind = "catalog_unavailable"
	KindLocked               Kind = "dataset_locked"
)

// FieldError is one field of a record failing the taxonomy check.
type FieldError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

type SyncError struct {
	Kind       Kind
	Message    string
	NaturalKey string
	Seq        *int
	Fields     []FieldError
	Err        error
}

func New(kind Kind, msg string) *SyncError {
	return &SyncError{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *SyncError {
	return &SyncError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to err. An err that already is a SyncError keeps its kind.
func Wrap(kind Kind, err error, msg string) *SyncError {
	if err == nil {
		return nil
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return &SyncError{Kind: kind, Message: msg, Err: err}
}

func (e *SyncError) Error() string {
	var b strings.Builder
	if e.NaturalKey != "" {
		fmt.Fprintf(&b, "record '%s' -> ", e.NaturalKey)
	}
	b.WriteString(e.Message)
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s %s", f.Field, f.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) AddNaturalKey(key string) *SyncError {
	e.NaturalKey = key
	return e
}

func (e *SyncError) AddSeq(seq int) *SyncError {
	e.Seq = &seq
	return e
}

func (e *SyncError) AddField(field string, value any, msg string) *SyncError {
	e.Fields = append(e.Fields, FieldError{Field: field, Value: value, Message: msg})
	return e
}

func (e *SyncError) ToHTTPError() *httperror.HTTPError {
	status := http.StatusInternalServerError
	switch e.Kind {
	case KindValidation:
		status = http.StatusUnprocessableEntity
	case KindLocked, KindDuplicateKey:
		status = http.StatusConflict
	case KindStoreUnavailable, KindCatalogUnavailable:
		status = http.StatusServiceUnavailable
	}
	return httperror.NewHTTPError(status, e.Error()).AddMetaValue("kind", string(e.Kind)).AddMetaValue("natural_key", e.NaturalKey)
}

func NewValidationError() *SyncError {
	return New(KindValidation, "record failed taxonomy validation")
}

func NewDuplicateKeyError(key string, supersededBy int) *SyncError {
	return Newf(KindDuplicateKey, "superseded by record %d with the same natural key", supersededBy).AddNaturalKey(key)
}

func NewReferentialIntegrityError(err error) *SyncError {
	return &SyncError{Kind: KindReferentialIntegrity, Message: "referenced shared row is missing", Err: err}
}

func NewTransactionTimeoutError(err error) *SyncError {
	return &SyncError{Kind: KindTransactionTimeout, Message: "record transaction exceeded its timeout", Err: err}
}

func NewStoreUnavailableError(err error) *SyncError {
	return &SyncError{Kind: KindStoreUnavailable, Message: "entity store is unavailable", Err: err}
}

func NewCatalogUnavailableError(err error) *SyncError {
	return &SyncError{Kind: KindCatalogUnavailable, Message: "taxonomy catalog is unavailable", Err: err}
}

// KindOf returns the kind of err, or "" when err is not a SyncError.
func KindOf(err error) Kind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsBatchFatal(err error) bool {
	switch KindOf(err) {
	case KindStoreUnavailable, KindCatalogUnavailable, KindLocked:
		return true
	}
	return false
}

// IsRetryable reports record-scoped failures that get one more attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindReferentialIntegrity, KindTransactionTimeout:
		return true
	}
	return false
}
