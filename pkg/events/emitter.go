// Package events emits registry lifecycle events.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/kafka"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventSyncCompleted  = "sync.completed"
)

// Publisher sends events; *kafka.Producer is one.
type Publisher interface {
	Publish(ctx context.Context, events ...*kafka.Event) error
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// ProductChanged is the payload of product.created and product.updated.
type ProductChanged struct {
	SchemaVersion   string             `json:"schema_version"`
	ProductID       string             `json:"product_id"`
	ProdCode        string             `json:"prod_code"`
	EntityID        string             `json:"entity_external_id"`
	ModelNumber     string             `json:"model_number"`
	ProductType     models.ProductType `json:"product_type"`
	TaxonomyVersion string             `json:"taxonomy_version"`
	Fingerprint     string             `json:"fingerprint"`
}

// EmitProductChanged emits product.created or product.updated for a committed record.
func (e *Emitter) EmitProductChanged(ctx context.Context, rec *models.StagedRecord, change models.ProductChange, fingerprint, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitProductChanged")
	defer span.End()

	eventType := EventProductUpdated
	if change.Outcome == models.OutcomeCreated {
		eventType = EventProductCreated
	}

	data, err := json.Marshal(ProductChanged{
		SchemaVersion:   SchemaVersion,
		ProductID:       change.ProductID,
		ProdCode:        change.ProdCode,
		EntityID:        rec.Key.EntityExternalID,
		ModelNumber:     rec.Key.ModelNumber,
		ProductType:     rec.ProductType,
		TaxonomyVersion: rec.TaxonomyVersion,
		Fingerprint:     fingerprint,
	})
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventType: eventType,
		Key:       change.ProductID,
		DatasetID: rec.DatasetID,
		RunID:     runID,
		Data:      data,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}

// EmitSyncCompleted emits the summary counts of a finished run.
func (e *Emitter) EmitSyncCompleted(ctx context.Context, report *models.Report) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSyncCompleted")
	defer span.End()

	summary := *report
	summary.Details = nil
	summary.Changes = nil

	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventType: EventSyncCompleted,
		Key:       report.DatasetID,
		DatasetID: report.DatasetID,
		RunID:     report.RunID,
		Data:      data,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit sync.completed event")
		return err
	}
	return nil
}
