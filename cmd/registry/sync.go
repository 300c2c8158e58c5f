package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry/memory"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/staging"
)

type syncOptions struct {
	source     sourceOptions
	datasetID  string
	apply      bool
	reportPath string
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Stage a source document and synchronize it into the registry",
		Long: "Reads a CEC workbook or a JSON document, validates it against the taxonomy\n" +
			"and upserts it into the registry. Without --apply the run goes against an\n" +
			"empty in-memory registry and only reports what it would write.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetID, "dataset", "", "Dataset id the records belong to (required)")
	cmd.Flags().StringVar(&opts.source.location, "source", "", "Source document: a path, file://, s3:// or http(s):// URL (required)")
	cmd.Flags().StringVar(&opts.source.mapping, "map", "", "Column map name or path for workbooks, field map path for JSON")
	cmd.Flags().StringVar(&opts.source.productType, "type", "", "Product type: Module, Battery or Inverter")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the registry database (default is a dry run)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write the insertion report as CSV to this path")

	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runSync(cmd *cobra.Command, root *rootOptions, opts syncOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	c := &components{cfg: cfg, logger: logger}
	defer c.Close(ctx)

	if err := c.setupTracing(ctx); err != nil {
		return err
	}
	if err := c.loadCatalog(); err != nil {
		return err
	}

	var (
		store registry.Store
		runs  registry.RunStore
	)
	if opts.apply {
		if err := c.openStaging(); err != nil {
			return err
		}
		if err := c.connectPostgres(ctx); err != nil {
			return err
		}
		if err := c.connectRedis(ctx); err != nil {
			return err
		}
		c.openKafka()

		pg := registry.NewPostgresStore(c.db, logger)
		store, runs = pg, pg
	} else {
		area, err := staging.OpenSQLite(":memory:")
		if err != nil {
			return err
		}
		c.staging = area

		mem := memory.NewStore()
		store, runs = mem, mem
	}

	batch, err := readSource(ctx, cfg, logger, opts.datasetID, opts.source)
	if err != nil {
		return err
	}

	report, runErr := c.ingestService(store, runs, !opts.apply).Run(ctx, batch)
	if report == nil {
		return runErr
	}

	if opts.reportPath != "" {
		if err := writeReportFile(opts.reportPath, report); err != nil {
			return err
		}
	}

	summary := *report
	summary.Changes = nil
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	return runErr
}
