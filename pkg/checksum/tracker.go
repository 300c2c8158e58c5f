// Package checksum tracks the fingerprint of the last applied import of each
// product so unchanged records can be skipped.
package checksum

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/fingerprint"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// Reader looks up stored fingerprints by natural key.
type Reader interface {
	GetChecksum(ctx context.Context, key models.NaturalKey) (*models.Checksum, error)
}

// Writer stores a fingerprint; it is called inside the record transaction.
type Writer interface {
	StoreChecksum(ctx context.Context, checksum *models.Checksum) error
}

type Tracker struct {
	reader Reader
}

func NewTracker(reader Reader) *Tracker {
	return &Tracker{reader: reader}
}

// Bookkeeping paths of the canonical record that are never hashed. The
// product code is assigned by the store and stays fixed once a product exists.
var excludedFields = map[string]bool{
	"dataset_id":       true,
	"seq":              true,
	"staged_at":        true,
	"taxonomy_version": true,
	"prod_code":        true,
}

// Compute fingerprints the record's content. Bookkeeping fields are not part
// of it, and rating, certification and country order does not matter.
func (t *Tracker) Compute(rec *models.StagedRecord) string {
	return fingerprint.GenerateWithExclusions(Canonical(rec), excludedFields)
}

// Unchanged reports whether fp matches the stored fingerprint.
func (t *Tracker) Unchanged(stored, fp string) bool {
	return !fingerprint.HasChanged(stored, fp)
}

// Lookup returns the stored fingerprint for key, or false when the product
// has never been imported.
func (t *Tracker) Lookup(ctx context.Context, key models.NaturalKey) (string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "checksum.Tracker.Lookup")
	defer span.End()

	cs, err := t.reader.GetChecksum(ctx, key)
	if err != nil {
		return "", false, err
	}
	if cs == nil {
		return "", false, nil
	}
	return cs.Fingerprint, true, nil
}

// Store records fp as the product's applied fingerprint through w.
func (t *Tracker) Store(ctx context.Context, w Writer, productID, fp, datasetID string) error {
	return w.StoreChecksum(ctx, &models.Checksum{
		ProductID:   productID,
		Fingerprint: fp,
		DatasetID:   datasetID,
		UpdatedAt:   time.Now().UTC(),
	})
}

// Canonical is the full record in the form fingerprints are computed over.
func Canonical(rec *models.StagedRecord) map[string]any {
	out := map[string]any{
		"product_type":     string(rec.ProductType),
		"entity":           rec.Key.EntityExternalID,
		"entity_name":      rec.EntityName,
		"model":            rec.Key.ModelNumber,
		"prod_code":        rec.ProdCode,
		"description":      rec.Description,
		"dataset_id":       rec.DatasetID,
		"seq":              rec.Seq,
		"staged_at":        rec.StagedAt,
		"taxonomy_version": rec.TaxonomyVersion,
	}

	attrs := make(map[string]any, len(rec.Attributes))
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	out["attributes"] = attrs

	if d := rec.Dimension; d != nil {
		out["dimension"] = map[string]any{
			"length": d.Length,
			"width":  d.Width,
			"depth":  d.Depth,
			"weight": d.Weight,
		}
	}

	ratings := append([]models.ElectricalRating(nil), rec.ElectricalRatings...)
	sort.Slice(ratings, func(i, j int) bool { return ratings[i].Condition < ratings[j].Condition })
	rs := make([]any, len(ratings))
	for i, r := range ratings {
		rs[i] = map[string]any{
			"condition":             r.Condition,
			"power_dc":              r.PowerDC,
			"power_ac":              r.PowerAC,
			"voltage_open_circuit":  r.VoltageOpenCircuit,
			"current_short_circuit": r.CurrentShortCircuit,
			"voltage_max_power":     r.VoltageMaxPower,
			"current_max_power":     r.CurrentMaxPower,
		}
	}
	out["ratings"] = rs

	certs := make([]string, len(rec.Certifications))
	for i, c := range rec.Certifications {
		certs[i] = c.Key()
	}
	sort.Strings(certs)
	out["certifications"] = certs

	countries := make([]string, len(rec.SourceCountries))
	for i, c := range rec.SourceCountries {
		countries[i] = strings.ToUpper(c)
	}
	sort.Strings(countries)
	out["source_countries"] = countries

	if fw := rec.Firmware; fw != nil {
		out["firmware"] = map[string]any{"version": fw.Version, "revision": fw.Revision}
	}

	return out
}
