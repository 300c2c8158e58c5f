package models

import (
	"strings"
	"time"
)

type CertificationAgency struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Certification is shared by every product citing the same full tuple.
type Certification struct {
	ID                string     `json:"id" db:"id"`
	AgencyID          string     `json:"agency_id" db:"agency_id"`
	Standard          string     `json:"standard" db:"standard"`
	CertificateNumber *string    `json:"certificate_number,omitempty" db:"certificate_number"`
	IssuedOn          *time.Time `json:"issued_on,omitempty" db:"issued_on"`
	ExpiresOn         *time.Time `json:"expires_on,omitempty" db:"expires_on"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// CertificationRef is a certification as cited by a staged record, before the
// agency is resolved to a row.
type CertificationRef struct {
	AgencyName        string     `json:"agency_name"`
	Standard          string     `json:"standard"`
	CertificateNumber *string    `json:"certificate_number,omitempty"`
	IssuedOn          *time.Time `json:"issued_on,omitempty"`
	ExpiresOn         *time.Time `json:"expires_on,omitempty"`
}

// Key returns the identity of the full tuple. Agency names compare case-insensitively.
func (r CertificationRef) Key() string {
	return strings.Join([]string{
		strings.ToLower(r.AgencyName),
		r.Standard,
		derefString(r.CertificateNumber),
		formatDate(r.IssuedOn),
		formatDate(r.ExpiresOn),
	}, "|")
}

// TupleKey is the identity of a resolved certification row.
func (c Certification) TupleKey() string {
	return strings.Join([]string{
		c.AgencyID,
		c.Standard,
		derefString(c.CertificateNumber),
		formatDate(c.IssuedOn),
		formatDate(c.ExpiresOn),
	}, "|")
}

type SourceCountry struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AssociationDiff is the outcome of replacing a product's M:N associations.
type AssociationDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func (d AssociationDiff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
