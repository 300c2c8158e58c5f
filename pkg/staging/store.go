package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const stagedTable = "staged_records"

const schema = `CREATE TABLE IF NOT EXISTS staged_records (
	dataset_id         TEXT NOT NULL,
	entity_external_id TEXT NOT NULL,
	model_number       TEXT NOT NULL,
	seq                INTEGER NOT NULL,
	product_type       TEXT NOT NULL,
	payload            BLOB NOT NULL,
	staged_at          TIMESTAMP NOT NULL,
	PRIMARY KEY (dataset_id, entity_external_id, model_number)
)`

// Area is where validated records wait, one row per (dataset, natural key).
type Area interface {
	Clear(ctx context.Context, datasetID string) error
	Put(ctx context.Context, rec *models.StagedRecord) error
	List(ctx context.Context, datasetID string) ([]models.StagedRecord, error)
	Close() error
}

// SQLiteArea is an Area in a SQLite file, or in memory for ":memory:".
type SQLiteArea struct {
	db *sqlx.DB
}

var _ Area = (*SQLiteArea)(nil)

func OpenSQLite(path string) (*SQLiteArea, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open staging sqlite: %w", err)
	}
	// one connection: an in-memory database exists per connection, and a
	// file database has a single writer anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create staging table: %w", err)
	}
	return &SQLiteArea{db: db}, nil
}

func (a *SQLiteArea) Close() error {
	return a.db.Close()
}

func (a *SQLiteArea) Clear(ctx context.Context, datasetID string) error {
	ctx, span := tracing.StartSpan(ctx, "staging.SQLiteArea.Clear")
	defer span.End()

	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom(stagedTable)
	db.Where(db.Equal("dataset_id", datasetID))

	query, args := db.Build()
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear staging for %s: %w", datasetID, err)
	}
	return nil
}

// Put stages rec, replacing any earlier record with the same natural key.
func (a *SQLiteArea) Put(ctx context.Context, rec *models.StagedRecord) error {
	ctx, span := tracing.StartSpan(ctx, "staging.SQLiteArea.Put")
	defer span.End()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode staged record %s: %w", rec.Key, err)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto(stagedTable)
	ib.Cols("dataset_id", "entity_external_id", "model_number", "seq", "product_type", "payload", "staged_at")
	ib.Values(rec.DatasetID, rec.Key.EntityExternalID, rec.Key.ModelNumber, rec.Seq, string(rec.ProductType), payload, rec.StagedAt)

	query, args := ib.Build()
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("stage record %s: %w", rec.Key, err)
	}
	return nil
}

// List returns the dataset's staged records in natural-key order.
func (a *SQLiteArea) List(ctx context.Context, datasetID string) ([]models.StagedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.SQLiteArea.List")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("payload")
	sb.From(stagedTable)
	sb.Where(sb.Equal("dataset_id", datasetID))
	sb.OrderBy("entity_external_id", "model_number")

	query, args := sb.Build()
	var payloads [][]byte
	if err := a.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, fmt.Errorf("list staging for %s: %w", datasetID, err)
	}

	records := make([]models.StagedRecord, 0, len(payloads))
	for _, payload := range payloads {
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// decodeRecord keeps attribute numbers as json.Number so they fingerprint
// the same as before staging.
func decodeRecord(payload []byte) (*models.StagedRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var rec models.StagedRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode staged record: %w", err)
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]any{}
	}
	rec.StagedAt = rec.StagedAt.UTC()
	return &rec, nil
}
