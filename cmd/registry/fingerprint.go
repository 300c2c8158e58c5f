package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/checksum"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/staging"
)

func newFingerprintCmd(root *rootOptions) *cobra.Command {
	var (
		source    sourceOptions
		datasetID string
	)

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the natural key and content fingerprint of each valid source record",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := c.loadCatalog(); err != nil {
				return err
			}
			area, err := staging.OpenSQLite(":memory:")
			if err != nil {
				return err
			}
			c.staging = area

			batch, err := readSource(ctx, cfg, logger, datasetID, source)
			if err != nil {
				return err
			}
			loaded, err := staging.NewLoader(c.catalog, area, logger).Load(ctx, batch)
			if err != nil {
				return err
			}

			tracker := checksum.NewTracker(nil)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NATURAL KEY\tBASE PROD CODE\tFINGERPRINT")
			for i := range loaded.Records {
				rec := &loaded.Records[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Key, rec.ProdCode, tracker.Compute(rec))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if rejected := loaded.Report.RejectedValidation; rejected > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d records failed validation\n", rejected, loaded.Received)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source.location, "source", "", "Source document (required)")
	cmd.Flags().StringVar(&source.mapping, "map", "", "Column map name or path for workbooks, field map path for JSON")
	cmd.Flags().StringVar(&source.productType, "type", "", "Product type: Module, Battery or Inverter")
	cmd.Flags().StringVar(&datasetID, "dataset", "adhoc", "Dataset id used for staging")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}
