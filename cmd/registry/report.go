package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

var reportHeader = []string{"seq", "natural_key", "outcome", "kind", "product_id", "prod_code", "attempts", "message", "fields"}

// writeReport writes one CSV row per written product and per detail, in
// input order.
func writeReport(w io.Writer, report *models.Report) error {
	rows := make([][]string, 0, len(report.Changes)+len(report.Details))
	seqs := make([]int, 0, cap(rows))

	for _, c := range report.Changes {
		rows = append(rows, []string{strconv.Itoa(c.Seq), c.NaturalKey, string(c.Outcome), "", c.ProductID, c.ProdCode, "", "", ""})
		seqs = append(seqs, c.Seq)
	}
	for _, d := range report.Details {
		fields := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			fields[i] = f.Field + ": " + f.Message
		}
		attempts := ""
		if d.Attempts > 0 {
			attempts = strconv.Itoa(d.Attempts)
		}
		rows = append(rows, []string{strconv.Itoa(d.Seq), d.NaturalKey, string(d.Outcome), string(d.Kind), "", "", attempts, d.Message, strings.Join(fields, "; ")})
		seqs = append(seqs, d.Seq)
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return seqs[order[i]] < seqs[order[j]] })

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, i := range order {
		if err := cw.Write(rows[i]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeReportFile(path string, report *models.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := writeReport(f, report); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
