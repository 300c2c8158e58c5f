// Package memory is an in-process registry.Store. Dry runs use it, and it is
// the store the synchronizer's behavior is tested against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/normalizers"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
)

// Hook runs before every store operation; a non-nil error fails the operation.
// Tests use it to inject faults and delays.
type Hook func(ctx context.Context, op string) error

// Operation names passed to Hook.
const (
	OpEnsureEntity              = "EnsureEntity"
	OpEnsureCertificationAgency = "EnsureCertificationAgency"
	OpEnsureCertification       = "EnsureCertification"
	OpEnsureSourceCountry       = "EnsureSourceCountry"
	OpGetChecksum               = "GetChecksum"
	OpUpsertProduct             = "UpsertProduct"
	OpReplaceDimension          = "ReplaceDimension"
	OpReplaceElectricalRatings  = "ReplaceElectricalRatings"
	OpReplaceFirmware           = "ReplaceFirmware"
	OpReplaceCertifications     = "ReplaceCertifications"
	OpReplaceSourceCountries    = "ReplaceSourceCountries"
	OpStoreChecksum             = "StoreChecksum"
)

type state struct {
	entities         map[string]models.Entity              // by external id
	entityIDs        map[string]bool                       // ids of entities
	agencies         map[string]models.CertificationAgency // by lower-cased name
	agencyIDs        map[string]bool                       // ids of agencies
	certifications   map[string]models.Certification       // by tuple key
	certKeys         map[string]string                     // certification id to tuple key
	countries        map[string]models.SourceCountry       // by code
	countryCodes     map[string]string                     // country id to code
	products         map[string]models.Product             // by entity id + model
	productKeys      map[string]string                     // product id to product key
	prodCodes        map[string]string                     // prod code to product key
	dimensions       map[string]models.Dimension           // by product id
	ratings          map[string][]models.ElectricalRating  // by product id
	firmware         map[string]models.Firmware            // by product id
	productCerts     map[string]map[string]bool
	productCountries map[string]map[string]bool
	checksums        map[string]models.Checksum // by product id
	runs             map[string]models.SyncRun
}

func newState() state {
	return state{
		entities:         map[string]models.Entity{},
		entityIDs:        map[string]bool{},
		agencies:         map[string]models.CertificationAgency{},
		agencyIDs:        map[string]bool{},
		certifications:   map[string]models.Certification{},
		certKeys:         map[string]string{},
		countries:        map[string]models.SourceCountry{},
		countryCodes:     map[string]string{},
		products:         map[string]models.Product{},
		productKeys:      map[string]string{},
		prodCodes:        map[string]string{},
		dimensions:       map[string]models.Dimension{},
		ratings:          map[string][]models.ElectricalRating{},
		firmware:         map[string]models.Firmware{},
		productCerts:     map[string]map[string]bool{},
		productCountries: map[string]map[string]bool{},
		checksums:        map[string]models.Checksum{},
		runs:             map[string]models.SyncRun{},
	}
}

// Store keeps the registry in memory. A transaction holds the store lock,
// writes to the live state and keeps an undo log that restores the state
// when the transaction does not commit.
type Store struct {
	mu      sync.Mutex
	state   state
	hook    Hook
	nowFn   func() time.Time
	commits int
}

type Option func(*Store)

func WithHook(h Hook) Option {
	return func(s *Store) { s.hook = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ registry.Store    = (*Store)(nil)
	_ registry.RunStore = (*Store)(nil)
)

func (s *Store) runHook(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.hook == nil {
		return nil
	}
	return s.hook(ctx, op)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func productKey(entityID, model string) string {
	return entityID + "\x00" + model
}

func (s *Store) EnsureEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	if err := s.runHook(ctx, OpEnsureEntity); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.state.entities[entity.ExternalID]; ok {
		return &existing, nil
	}
	created := models.Entity{
		ID:         uuid.New().String(),
		ExternalID: entity.ExternalID,
		Name:       entity.Name,
		CreatedAt:  s.nowFn(),
	}
	s.state.entities[created.ExternalID] = created
	s.state.entityIDs[created.ID] = true
	return &created, nil
}

func (s *Store) EnsureCertificationAgency(ctx context.Context, name string) (*models.CertificationAgency, error) {
	if err := s.runHook(ctx, OpEnsureCertificationAgency); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if existing, ok := s.state.agencies[key]; ok {
		return &existing, nil
	}
	created := models.CertificationAgency{ID: uuid.New().String(), Name: name, CreatedAt: s.nowFn()}
	s.state.agencies[key] = created
	s.state.agencyIDs[created.ID] = true
	return &created, nil
}

func (s *Store) EnsureCertification(ctx context.Context, cert *models.Certification) (*models.Certification, error) {
	if err := s.runHook(ctx, OpEnsureCertification); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.agencyIDs[cert.AgencyID] {
		return nil, syncerrors.NewReferentialIntegrityError(fmt.Errorf("certification agency %s does not exist", cert.AgencyID))
	}

	key := cert.TupleKey()
	if existing, ok := s.state.certifications[key]; ok {
		return &existing, nil
	}
	created := *cert
	created.ID = uuid.New().String()
	created.CreatedAt = s.nowFn()
	s.state.certifications[key] = created
	s.state.certKeys[created.ID] = key
	return &created, nil
}

func (s *Store) EnsureSourceCountry(ctx context.Context, code string) (*models.SourceCountry, error) {
	if err := s.runHook(ctx, OpEnsureSourceCountry); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	code = strings.ToUpper(code)
	if existing, ok := s.state.countries[code]; ok {
		return &existing, nil
	}
	created := models.SourceCountry{ID: uuid.New().String(), Code: code, CreatedAt: s.nowFn()}
	s.state.countries[code] = created
	s.state.countryCodes[created.ID] = code
	return &created, nil
}

func (s *Store) findProduct(key models.NaturalKey) (models.Entity, models.Product, bool) {
	entity, ok := s.state.entities[key.EntityExternalID]
	if !ok {
		return models.Entity{}, models.Product{}, false
	}
	product, ok := s.state.products[productKey(entity.ID, key.ModelNumber)]
	return entity, product, ok
}

func (s *Store) GetChecksum(ctx context.Context, key models.NaturalKey) (*models.Checksum, error) {
	if err := s.runHook(ctx, OpGetChecksum); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, product, ok := s.findProduct(key)
	if !ok {
		return nil, nil
	}
	cs, ok := s.state.checksums[product.ID]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *Store) GetProduct(ctx context.Context, key models.NaturalKey) (*registry.ProductAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, product, ok := s.findProduct(key)
	if !ok {
		return nil, nil
	}

	agg := &registry.ProductAggregate{
		Entity:            entity,
		Product:           product,
		ElectricalRatings: append([]models.ElectricalRating(nil), s.state.ratings[product.ID]...),
	}
	if d, ok := s.state.dimensions[product.ID]; ok {
		agg.Dimension = &d
	}
	if fw, ok := s.state.firmware[product.ID]; ok {
		agg.Firmware = &fw
	}
	if cs, ok := s.state.checksums[product.ID]; ok {
		agg.Checksum = &cs
	}
	for id := range s.state.productCerts[product.ID] {
		if key, ok := s.state.certKeys[id]; ok {
			agg.Certifications = append(agg.Certifications, s.state.certifications[key])
		}
	}
	for id := range s.state.productCountries[product.ID] {
		if code, ok := s.state.countryCodes[id]; ok {
			agg.SourceCountries = append(agg.SourceCountries, s.state.countries[code])
		}
	}
	sort.Slice(agg.ElectricalRatings, func(i, j int) bool {
		return agg.ElectricalRatings[i].Condition < agg.ElectricalRatings[j].Condition
	})
	sort.Slice(agg.Certifications, func(i, j int) bool { return agg.Certifications[i].TupleKey() < agg.Certifications[j].TupleKey() })
	sort.Slice(agg.SourceCountries, func(i, j int) bool { return agg.SourceCountries[i].Code < agg.SourceCountries[j].Code })
	return agg, nil
}

// DeleteProduct removes a product and what it owns. Shared rows stay.
func (s *Store) DeleteProduct(ctx context.Context, key models.NaturalKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, product, ok := s.findProduct(key)
	if !ok {
		return false, nil
	}
	delete(s.state.products, productKey(entity.ID, product.ModelNumber))
	delete(s.state.productKeys, product.ID)
	delete(s.state.prodCodes, product.ProdCode)
	delete(s.state.dimensions, product.ID)
	delete(s.state.ratings, product.ID)
	delete(s.state.firmware, product.ID)
	delete(s.state.productCerts, product.ID)
	delete(s.state.productCountries, product.ID)
	delete(s.state.checksums, product.ID)
	return true, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, w registry.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &writer{store: s, state: &s.state, now: s.nowFn()}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	committed = true
	s.commits++
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run *models.SyncRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.runs[run.ID] = *run
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.state.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, datasetID string, limit int) ([]models.SyncRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []models.SyncRun
	for _, r := range s.state.runs {
		if datasetID == "" || r.DatasetID == datasetID {
			runs = append(runs, r)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Stats counts rows, for assertions about what a run wrote.
type Stats struct {
	Entities       int
	Agencies       int
	Certifications int
	Countries      int
	Products       int
	Ratings        int
	Commits        int
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := 0
	for _, r := range s.state.ratings {
		ratings += len(r)
	}
	return Stats{
		Entities:       len(s.state.entities),
		Agencies:       len(s.state.agencies),
		Certifications: len(s.state.certifications),
		Countries:      len(s.state.countries),
		Products:       len(s.state.products),
		Ratings:        ratings,
		Commits:        s.commits,
	}
}

// DeleteCertification removes a shared certification row, simulating a
// concurrent administrative delete.
func (s *Store) DeleteCertification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.state.certKeys[id]; ok {
		delete(s.state.certifications, key)
		delete(s.state.certKeys, id)
	}
}

// DeleteEntity removes a shared entity row the same way. Its products stay
// behind, unreachable by natural key.
func (s *Store) DeleteEntity(externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.state.entities[externalID]; ok {
		delete(s.state.entities, externalID)
		delete(s.state.entityIDs, e.ID)
	}
}

type writer struct {
	store *Store
	state *state
	now   time.Time
	undo  []func()
}

// remember logs how to restore m[k] if the transaction does not commit.
func remember[K comparable, V any](w *writer, m map[K]V, k K) {
	old, had := m[k]
	w.undo = append(w.undo, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (w *writer) rollback() {
	for i := len(w.undo) - 1; i >= 0; i-- {
		w.undo[i]()
	}
	w.undo = nil
}

// UpsertProduct keeps the product code of an existing product. A new product
// gets the first free suffix of its code.
func (w *writer) UpsertProduct(ctx context.Context, product *models.Product) (*models.UpsertResult, error) {
	if err := w.store.runHook(ctx, OpUpsertProduct); err != nil {
		return nil, err
	}

	if !w.state.entityIDs[product.EntityID] {
		return nil, syncerrors.NewReferentialIntegrityError(fmt.Errorf("entity %s does not exist", product.EntityID))
	}

	key := productKey(product.EntityID, product.ModelNumber)
	existing, exists := w.state.products[key]

	row := *product
	row.UpdatedAt = w.now
	if exists {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.ProdCode = existing.ProdCode
	} else {
		row.ID = uuid.New().String()
		row.CreatedAt = w.now
		row.ProdCode = normalizers.NextProdCode(product.ProdCode, func(code string) bool {
			_, used := w.state.prodCodes[code]
			return used
		})

		remember(w, w.state.productKeys, row.ID)
		w.state.productKeys[row.ID] = key
		remember(w, w.state.prodCodes, row.ProdCode)
		w.state.prodCodes[row.ProdCode] = key
	}
	remember(w, w.state.products, key)
	w.state.products[key] = row

	return &models.UpsertResult{ProductID: row.ID, IsNew: !exists, ProdCode: row.ProdCode}, nil
}

func (w *writer) productExists(id string) bool {
	_, ok := w.state.productKeys[id]
	return ok
}

func (w *writer) ReplaceDimension(ctx context.Context, productID string, dimension *models.Dimension) error {
	if err := w.store.runHook(ctx, OpReplaceDimension); err != nil {
		return err
	}
	if !w.productExists(productID) {
		return syncerrors.NewReferentialIntegrityError(fmt.Errorf("product %s does not exist", productID))
	}
	d := models.Dimension{}
	if dimension != nil {
		d = *dimension
	}
	d.ProductID = productID
	remember(w, w.state.dimensions, productID)
	w.state.dimensions[productID] = d
	return nil
}

func (w *writer) ReplaceElectricalRatings(ctx context.Context, productID string, ratings []models.ElectricalRating) error {
	if err := w.store.runHook(ctx, OpReplaceElectricalRatings); err != nil {
		return err
	}
	if !w.productExists(productID) {
		return syncerrors.NewReferentialIntegrityError(fmt.Errorf("product %s does not exist", productID))
	}
	rows := make([]models.ElectricalRating, len(ratings))
	seen := map[string]bool{}
	for i, r := range ratings {
		if seen[r.Condition] {
			return syncerrors.Newf(syncerrors.KindTransaction, "duplicate rating condition %s", r.Condition)
		}
		seen[r.Condition] = true
		r.ID = uuid.New().String()
		r.ProductID = productID
		rows[i] = r
	}
	remember(w, w.state.ratings, productID)
	w.state.ratings[productID] = rows
	return nil
}

func (w *writer) ReplaceFirmware(ctx context.Context, productID string, firmware *models.Firmware) error {
	if err := w.store.runHook(ctx, OpReplaceFirmware); err != nil {
		return err
	}
	remember(w, w.state.firmware, productID)
	if firmware == nil {
		delete(w.state.firmware, productID)
		return nil
	}
	fw := *firmware
	fw.ProductID = productID
	w.state.firmware[productID] = fw
	return nil
}

func (w *writer) ReplaceCertifications(ctx context.Context, productID string, certificationIDs []string) (models.AssociationDiff, error) {
	if err := w.store.runHook(ctx, OpReplaceCertifications); err != nil {
		return models.AssociationDiff{}, err
	}
	known := func(id string) bool {
		_, ok := w.state.certKeys[id]
		return ok
	}
	return w.replaceSet(w.state.productCerts, productID, certificationIDs, known, "certification")
}

func (w *writer) ReplaceSourceCountries(ctx context.Context, productID string, countryIDs []string) (models.AssociationDiff, error) {
	if err := w.store.runHook(ctx, OpReplaceSourceCountries); err != nil {
		return models.AssociationDiff{}, err
	}
	known := func(id string) bool {
		_, ok := w.state.countryCodes[id]
		return ok
	}
	return w.replaceSet(w.state.productCountries, productID, countryIDs, known, "source country")
}

func (w *writer) replaceSet(sets map[string]map[string]bool, productID string, ids []string, known func(string) bool, what string) (models.AssociationDiff, error) {
	var diff models.AssociationDiff
	if !w.productExists(productID) {
		return diff, syncerrors.NewReferentialIntegrityError(fmt.Errorf("product %s does not exist", productID))
	}
	want := map[string]bool{}
	for _, id := range ids {
		if !known(id) {
			return diff, syncerrors.NewReferentialIntegrityError(fmt.Errorf("%s %s does not exist", what, id))
		}
		want[id] = true
	}

	current := sets[productID]
	for id := range want {
		if !current[id] {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range current {
		if !want[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)

	remember(w, sets, productID)
	sets[productID] = want
	return diff, nil
}

func (w *writer) StoreChecksum(ctx context.Context, checksum *models.Checksum) error {
	if err := w.store.runHook(ctx, OpStoreChecksum); err != nil {
		return err
	}
	cs := *checksum
	cs.UpdatedAt = w.now
	remember(w, w.state.checksums, checksum.ProductID)
	w.state.checksums[checksum.ProductID] = cs
	return nil
}
