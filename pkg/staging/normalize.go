package staging

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/normalizers"
)

// Fields that map onto registry columns rather than the attributes document.
var structuralFields = map[string]bool{
	"ProdMfr":         true,
	"ProdMfrCode":     true,
	"ProdModelNumber": true,
	"ProdType":        true,
	"Description":     true,
}

// Dimension members with a column of their own. Other Dimension.* members
// stay in the attributes document.
var dimensionColumns = map[string]bool{
	"Length": true,
	"Width":  true,
	"Depth":  true,
	"Weight": true,
}

// normalize shapes validated values into a staged record. It reports the
// cross-field problems a single field lookup cannot see.
func normalize(values map[string]any, pt models.ProductType) (*models.StagedRecord, []syncerrors.FieldError) {
	var errs []syncerrors.FieldError
	fail := func(field string, value any, msg string) {
		errs = append(errs, syncerrors.FieldError{Field: field, Value: value, Message: msg})
	}

	name, _ := values["ProdMfr"].(string)
	model, _ := values["ProdModelNumber"].(string)
	description, _ := values["Description"].(string)

	externalID, _ := values["ProdMfrCode"].(string)
	externalID = strings.ToUpper(externalID)
	if externalID == "" {
		externalID = normalizers.EntityCode(name)
		if externalID == "" && name != "" {
			fail("ProdMfr", name, "does not yield a manufacturer code")
		}
	}

	rec := &models.StagedRecord{
		ProductType: pt,
		Key:         models.NaturalKey{EntityExternalID: externalID, ModelNumber: model},
		EntityName:  name,
		ProdCode:    normalizers.ProdCode(externalID, model),
		Description: description,
		Attributes:  map[string]any{},
	}

	groups := map[string]map[int]map[string]any{}
	for field, value := range values {
		if structuralFields[field] {
			continue
		}

		parts := strings.Split(field, ".")
		switch {
		case parts[0] == "Dimension" && len(parts) == 2 && dimensionColumns[parts[1]]:
			d, ok := value.(decimal.Decimal)
			if !ok {
				fail(field, value, "must be a decimal measurement")
				continue
			}
			if rec.Dimension == nil {
				rec.Dimension = &models.Dimension{}
			}
			switch parts[1] {
			case "Length":
				rec.Dimension.Length = decimal.NewNullDecimal(d)
			case "Width":
				rec.Dimension.Width = decimal.NewNullDecimal(d)
			case "Depth":
				rec.Dimension.Depth = decimal.NewNullDecimal(d)
			case "Weight":
				rec.Dimension.Weight = decimal.NewNullDecimal(d)
			}
		case parts[0] == "Firmware" && len(parts) == 2:
			if rec.Firmware == nil {
				rec.Firmware = &models.Firmware{}
			}
			s, _ := value.(string)
			if parts[1] == "Version" {
				rec.Firmware.Version = s
			} else {
				rec.Firmware.Revision = s
			}
		case parts[0] == "SourceCountry" && len(parts) == 2:
			if s, ok := value.(string); ok {
				addGrouped(groups, "SourceCountry", parts[1], "Code", strings.ToUpper(s))
			}
		case (parts[0] == "ElectRating" || parts[0] == "ProdCertification") && len(parts) == 3:
			addGrouped(groups, parts[0], parts[1], parts[2], value)
		default:
			rec.Attributes[field] = attributeValue(value)
		}
	}

	if rec.Firmware != nil && rec.Firmware.Version == "" {
		fail("Firmware.Version", nil, "is required when a firmware revision is given")
	}

	seenConditions := map[string]int{}
	for _, idx := range sortedIndexes(groups["ElectRating"]) {
		g := groups["ElectRating"][idx]
		condition, _ := g["RatingCondition"].(string)
		if condition == "" {
			fail(indexedField("ElectRating", idx, "RatingCondition"), nil, "is required for every rating")
			continue
		}
		if prev, dup := seenConditions[condition]; dup {
			fail(indexedField("ElectRating", idx, "RatingCondition"), condition,
				"duplicates the condition of ElectRating."+strconv.Itoa(prev))
			continue
		}
		seenConditions[condition] = idx
		rec.ElectricalRatings = append(rec.ElectricalRatings, models.ElectricalRating{
			Condition:           condition,
			PowerDC:             nullDecimal(g["PowerDC"]),
			PowerAC:             nullDecimal(g["PowerAC"]),
			VoltageOpenCircuit:  nullDecimal(g["VoltageOpenCircuit"]),
			CurrentShortCircuit: nullDecimal(g["CurrentShortCircuit"]),
			VoltageMaxPower:     nullDecimal(g["VoltageMaxPower"]),
			CurrentMaxPower:     nullDecimal(g["CurrentMaxPower"]),
		})
	}

	seenCerts := map[string]bool{}
	for _, idx := range sortedIndexes(groups["ProdCertification"]) {
		g := groups["ProdCertification"][idx]
		agency, _ := g["CertificationAgency"].(string)
		standard, _ := g["CertificationStandard"].(string)
		if agency == "" {
			fail(indexedField("ProdCertification", idx, "CertificationAgency"), nil, "is required for every certification")
		}
		if standard == "" {
			fail(indexedField("ProdCertification", idx, "CertificationStandard"), nil, "is required for every certification")
		}
		if agency == "" || standard == "" {
			continue
		}

		ref := models.CertificationRef{AgencyName: agency, Standard: standard}
		if n, ok := g["CertificateNumber"].(string); ok {
			ref.CertificateNumber = &n
		}
		if t, ok := g["CertificationDate"].(time.Time); ok {
			ref.IssuedOn = &t
		}
		if t, ok := g["CertificationExpirationDate"].(time.Time); ok {
			ref.ExpiresOn = &t
		}
		if seenCerts[ref.Key()] {
			continue
		}
		seenCerts[ref.Key()] = true
		rec.Certifications = append(rec.Certifications, ref)
	}

	seenCountries := map[string]bool{}
	for _, idx := range sortedIndexes(groups["SourceCountry"]) {
		code, _ := groups["SourceCountry"][idx]["Code"].(string)
		if code == "" || seenCountries[code] {
			continue
		}
		seenCountries[code] = true
		rec.SourceCountries = append(rec.SourceCountries, code)
	}

	return rec, errs
}

func addGrouped(groups map[string]map[int]map[string]any, list, index, member string, value any) {
	idx, err := strconv.Atoi(index)
	if err != nil {
		return
	}
	if groups[list] == nil {
		groups[list] = map[int]map[string]any{}
	}
	if groups[list][idx] == nil {
		groups[list][idx] = map[string]any{}
	}
	groups[list][idx][member] = value
}

func sortedIndexes(group map[int]map[string]any) []int {
	idx := make([]int, 0, len(group))
	for i := range group {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func indexedField(list string, idx int, member string) string {
	return list + "." + strconv.Itoa(idx) + "." + member
}

func nullDecimal(v any) decimal.NullDecimal {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// attributeValue converts a coerced value to the form it keeps after a JSON
// round trip, so fingerprints match before and after staging.
func attributeValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return json.Number(t.String())
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case time.Time:
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339Nano)
	}
	return v
}
