package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/config"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/sources"
)

type sourceOptions struct {
	location    string
	mapping     string
	productType string
}

// builtin column maps per product type for CEC workbooks
var defaultColumnMaps = map[models.ProductType]string{
	models.ProductTypeModule:  "cec_modules",
	models.ProductTypeBattery: "cec_batteries",
}

// readSource fetches and parses a source document into a batch.
func readSource(ctx context.Context, cfg *config.Config, logger ectologger.Logger, datasetID string, opts sourceOptions) (models.Batch, error) {
	batch := models.Batch{DatasetID: datasetID}

	var wantType models.ProductType
	if opts.productType != "" {
		pt, err := models.ParseProductType(opts.productType)
		if err != nil {
			return batch, err
		}
		wantType = pt
	}

	reader, mapType, err := newReader(opts, wantType)
	if err != nil {
		return batch, err
	}
	if wantType != "" && wantType != mapType {
		return batch, fmt.Errorf("map produces %s records, not %s", mapType, wantType)
	}
	batch.ProductType = mapType

	fetcher, err := newFetcher(ctx, cfg, logger, opts.location)
	if err != nil {
		return batch, err
	}
	body, err := fetcher.Open(ctx, opts.location)
	if err != nil {
		return batch, err
	}
	defer body.Close()

	batch.Records, err = reader.Read(ctx, body)
	if err != nil {
		return batch, fmt.Errorf("failed to read %s: %w", opts.location, err)
	}
	return batch, nil
}

func newReader(opts sourceOptions, wantType models.ProductType) (sources.Reader, models.ProductType, error) {
	switch ext := sourceExt(opts.location); ext {
	case ".xlsx", ".xlsm":
		name := opts.mapping
		if name == "" {
			name = defaultColumnMaps[wantType]
		}
		if name == "" {
			return nil, "", fmt.Errorf("--map is required for %s workbooks without a built-in layout", valueOr(string(wantType), "untyped"))
		}
		columns, err := sources.ColumnMapFile(name)
		if err != nil {
			return nil, "", err
		}
		return sources.NewExcelReader(columns), columns.Type(), nil

	case ".json":
		if opts.mapping == "" {
			return nil, "", fmt.Errorf("--map is required for JSON sources")
		}
		f, err := os.Open(opts.mapping)
		if err != nil {
			return nil, "", fmt.Errorf("open field map: %w", err)
		}
		defer f.Close()

		fields, err := sources.LoadFieldMap(f)
		if err != nil {
			return nil, "", err
		}
		reader, err := sources.NewJSONReader(fields)
		if err != nil {
			return nil, "", err
		}
		pt, err := models.ParseProductType(fields.ProductType)
		if err != nil {
			return nil, "", err
		}
		return reader, pt, nil

	default:
		return nil, "", fmt.Errorf("unsupported source format %q", ext)
	}
}

func newFetcher(ctx context.Context, cfg *config.Config, logger ectologger.Logger, location string) (*sources.Fetcher, error) {
	var s3Client sources.S3API
	if strings.HasPrefix(location, "s3://") {
		client, err := sources.NewS3Client(ctx, cfg.S3())
		if err != nil {
			return nil, fmt.Errorf("failed to configure S3: %w", err)
		}
		s3Client = client
	}
	return sources.NewFetcher(s3Client, sources.NewHTTPClient(cfg.SourceHTTPTimeout), logger), nil
}

func sourceExt(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
