package main

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

func TestWriteReport(t *testing.T) {
	report := &models.Report{
		Changes: []models.ProductChange{
			{Seq: 2, NaturalKey: "ACME/M200", ProductID: "p-2", ProdCode: "ACME-M200", Outcome: models.OutcomeUpdated},
			{Seq: 0, NaturalKey: "ACME/M100", ProductID: "p-1", ProdCode: "ACME-M100", Outcome: models.OutcomeCreated},
		},
		Details: []models.RecordDetail{
			{
				Seq:     1,
				Outcome: models.OutcomeRejectedValidation,
				Kind:    syncerrors.KindValidation,
				Message: "record failed taxonomy validation",
				Fields: []syncerrors.FieldError{
					{Field: "ElectRating.0.PowerDC", Message: "not a decimal"},
					{Field: "Colour", Message: "unknown field"},
				},
			},
			{Seq: 3, NaturalKey: "ACME/M300", Outcome: models.OutcomeFailedTransaction, Kind: syncerrors.KindTransactionTimeout, Attempts: 2},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, reportHeader, rows[0])
	assert.Equal(t, []string{"0", "ACME/M100", "created", "", "p-1", "ACME-M100", "", "", ""}, rows[1])
	assert.Equal(t, "rejected_validation", rows[2][2])
	assert.Equal(t, "ElectRating.0.PowerDC: not a decimal; Colour: unknown field", rows[2][8])
	assert.Equal(t, "updated", rows[3][2])
	assert.Equal(t, []string{"3", "ACME/M300", "failed_transaction", "transaction_timeout", "", "", "2", "", ""}, rows[4])
}

func TestWriteReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, &models.Report{}))
	assert.Equal(t, "seq,natural_key,outcome,kind,product_id,prod_code,attempts,message,fields\n", buf.String())
}
