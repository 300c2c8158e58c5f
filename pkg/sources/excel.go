package sources

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// Reader turns a source document into raw records.
type Reader interface {
	Read(ctx context.Context, r io.Reader) ([]models.RawRecord, error)
}

// ExcelReader reads a workbook laid out as described by a ColumnMap.
type ExcelReader struct {
	columns *ColumnMap
}

var _ Reader = (*ExcelReader)(nil)

func NewExcelReader(columns *ColumnMap) *ExcelReader {
	return &ExcelReader{columns: columns}
}

func (r *ExcelReader) Read(ctx context.Context, src io.Reader) ([]models.RawRecord, error) {
	_, span := tracing.StartSpan(ctx, "sources.ExcelReader.Read")
	defer span.End()

	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.columns.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", sheet, err)
	}
	if len(rows) <= r.columns.SkipRows {
		return nil, nil
	}

	records := make([]models.RawRecord, 0, len(rows)-r.columns.SkipRows)
	for _, row := range rows[r.columns.SkipRows:] {
		if rec := r.columns.Record(row); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}
