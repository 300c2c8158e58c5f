package certification

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const (
	agencyTable        = "certification_agencies"
	certificationTable = "certifications"
)

var (
	agencyStruct        = database.NewStruct(new(models.CertificationAgency))
	certificationStruct = database.NewStruct(new(models.Certification))

	productCertifications = database.Association{
		Table:    "product_certifications",
		OwnerCol: "product_id",
		RefCol:   "certification_id",
	}
)

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureAgency returns the agency named name, compared case-insensitively,
// creating it when absent.
func (r *Repository) EnsureAgency(ctx context.Context, name string) (*models.CertificationAgency, error) {
	ctx, span := tracing.StartSpan(ctx, "certification.Repository.EnsureAgency")
	defer span.End()

	row := models.CertificationAgency{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	ib := agencyStruct.InsertInto(agencyTable, &row)
	ib.OnConflictDoNothing()
	ib.Returning("id", "name", "created_at")

	query, args := ib.Build()
	var created models.CertificationAgency
	err := database.Conn(ctx, r.db).GetContext(ctx, &created, query, args...)
	if err == nil {
		return &created, nil
	}
	if !database.IsNoRows(err) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"agency": name,
		}).Error("Failed to create certification agency")
		return nil, fmt.Errorf("failed to create certification agency %s: %w", name, err)
	}

	sb := agencyStruct.SelectFrom(agencyTable)
	sb.Where(fmt.Sprintf("LOWER(name) = LOWER(%s)", sb.Var(name)))

	query, args = sb.Build()
	var existing models.CertificationAgency
	if err := database.Conn(ctx, r.db).GetContext(ctx, &existing, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read back certification agency %s: %w", name, err)
	}
	return &existing, nil
}

// Ensure returns the certification matching cert's full tuple, creating it
// when absent. Missing tuple members match other missing members.
func (r *Repository) Ensure(ctx context.Context, cert *models.Certification) (*models.Certification, error) {
	ctx, span := tracing.StartSpan(ctx, "certification.Repository.Ensure")
	defer span.End()

	row := *cert
	row.ID = uuid.New().String()
	row.CreatedAt = time.Now().UTC()

	ib := certificationStruct.InsertInto(certificationTable, &row)
	ib.OnConflictDoNothing()
	ib.Returning("id", "agency_id", "standard", "certificate_number", "issued_on", "expires_on", "created_at")

	query, args := ib.Build()
	var created models.Certification
	err := database.Conn(ctx, r.db).GetContext(ctx, &created, query, args...)
	if err == nil {
		return &created, nil
	}
	if !database.IsNoRows(err) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"agency_id": cert.AgencyID,
			"standard":  cert.Standard,
		}).Error("Failed to create certification")
		return nil, fmt.Errorf("failed to create certification %s: %w", cert.Standard, err)
	}

	sb := certificationStruct.SelectFrom(certificationTable)
	sb.Where(
		sb.Equal("agency_id", cert.AgencyID),
		sb.Equal("standard", cert.Standard),
		fmt.Sprintf("certificate_number IS NOT DISTINCT FROM %s", sb.Var(cert.CertificateNumber)),
		fmt.Sprintf("issued_on IS NOT DISTINCT FROM %s::date", sb.Var(cert.IssuedOn)),
		fmt.Sprintf("expires_on IS NOT DISTINCT FROM %s::date", sb.Var(cert.ExpiresOn)),
	)

	query, args = sb.Build()
	var existing models.Certification
	if err := database.Conn(ctx, r.db).GetContext(ctx, &existing, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read back certification %s: %w", cert.Standard, err)
	}
	return &existing, nil
}

// ReplaceForProduct makes the product cite exactly certificationIDs.
func (r *Repository) ReplaceForProduct(ctx context.Context, productID string, certificationIDs []string) (models.AssociationDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "certification.Repository.ReplaceForProduct")
	defer span.End()

	added, removed, err := productCertifications.Replace(ctx, database.Conn(ctx, r.db), productID, certificationIDs)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
		}).Error("Failed to replace product certifications")
		return models.AssociationDiff{}, err
	}
	return models.AssociationDiff{Added: added, Removed: removed}, nil
}

func (r *Repository) ListByProduct(ctx context.Context, productID string) ([]models.Certification, error) {
	ctx, span := tracing.StartSpan(ctx, "certification.Repository.ListByProduct")
	defer span.End()

	sb := certificationStruct.SelectFrom(certificationTable)
	sb.Join(productCertifications.Table+" pc", "pc.certification_id = "+certificationTable+".id")
	sb.Where(sb.Equal("pc.product_id", productID))
	sb.OrderBy(certificationTable+".standard", certificationTable+".id")

	query, args := sb.Build()
	var certs []models.Certification
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list certifications for product %s: %w", productID, err)
	}
	return certs, nil
}
