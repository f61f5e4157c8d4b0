package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rental-insight/internal/cluster"
	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/storage"
	"github.com/rental-insight/internal/types"
)

// memStore is an in-memory HierarchyStore, PropertyStore and DependentStore
// with failure injection
type memStore struct {
	mu     sync.Mutex
	nextID int64

	cities        map[string]*models.City
	districts     map[districtKey]*models.District
	neighborhoods map[int64]*models.Neighborhood
	properties    map[int64]*models.Property
	byExternal    map[string]int64
	dependents    map[types.DependentTable]map[int64]int

	pingErr       error
	pingFn        func() error
	lookupErr     error
	insertErr     func(props []models.Property) error
	updateErr     func(p *models.Property) error
	dependentErr  map[types.DependentTable]error
	cityRace      bool
	afterRefresh  func(neighborhoodID int64)
	lookupBatches [][]string
	cityLookups   int
	nbLookups     int
}

func newMemStore() *memStore {
	s := &memStore{
		cities:        make(map[string]*models.City),
		districts:     make(map[districtKey]*models.District),
		neighborhoods: make(map[int64]*models.Neighborhood),
		properties:    make(map[int64]*models.Property),
		byExternal:    make(map[string]int64),
		dependents:    make(map[types.DependentTable]map[int64]int),
		dependentErr:  make(map[types.DependentTable]error),
	}
	for _, t := range types.DependentTables {
		s.dependents[t] = make(map[int64]int)
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) Ping(ctx context.Context) error {
	if s.pingFn != nil {
		return s.pingFn()
	}
	return s.pingErr
}

func (s *memStore) FindCity(ctx context.Context, name string) (*models.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cityLookups++
	if c, ok := s.cities[name]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) CreateCity(ctx context.Context, name string) (*models.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cities[name]; ok {
		return nil, fmt.Errorf("%w: cities_name_key", apperrors.ErrDuplicate)
	}
	c := &models.City{ID: s.id(), Name: name, CreatedAt: time.Now()}
	s.cities[name] = c
	if s.cityRace {
		// another batch committed the same city first
		s.cityRace = false
		return nil, fmt.Errorf("%w: cities_name_key", apperrors.ErrDuplicate)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) FindDistrict(ctx context.Context, cityID int64, name string) (*models.District, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.districts[districtKey{cityID, name}]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) CreateDistrict(ctx context.Context, cityID int64, name string) (*models.District, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := districtKey{cityID, name}
	if _, ok := s.districts[k]; ok {
		return nil, apperrors.ErrDuplicate
	}
	d := &models.District{ID: s.id(), CityID: cityID, Name: name}
	s.districts[k] = d
	cp := *d
	return &cp, nil
}

func (s *memStore) FindNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nbLookups++
	for _, n := range s.neighborhoods {
		if n.DistrictID == districtID && n.Name == name {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &models.Neighborhood{ID: s.id(), DistrictID: districtID, Name: name}
	s.neighborhoods[n.ID] = n
	cp := *n
	return &cp, nil
}

func (s *memStore) GetNeighborhood(ctx context.Context, id int64) (*models.Neighborhood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.neighborhoods[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) RefreshNeighborhoodStats(ctx context.Context, neighborhoodID int64, syncedAt *time.Time) error {
	s.mu.Lock()
	n, ok := s.neighborhoods[neighborhoodID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrNotFound
	}
	count := 0
	for _, p := range s.properties {
		if p.NeighborhoodID == neighborhoodID {
			count++
		}
	}
	n.PropertyCount = count
	if syncedAt != nil {
		t := *syncedAt
		n.LastSyncedAt = &t
	}
	hook := s.afterRefresh
	s.mu.Unlock()

	if hook != nil {
		hook(neighborhoodID)
	}
	return nil
}

func (s *memStore) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]models.PropertyRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupBatches = append(s.lookupBatches, append([]string(nil), externalIDs...))
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	var refs []models.PropertyRef
	for _, ext := range externalIDs {
		if id, ok := s.byExternal[ext]; ok {
			p := s.properties[id]
			refs = append(refs, models.PropertyRef{ID: id, ExternalID: ext, NeighborhoodID: p.NeighborhoodID})
		}
	}
	return refs, nil
}

func (s *memStore) InsertProperties(ctx context.Context, props []models.Property) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		if err := s.insertErr(props); err != nil {
			return nil, err
		}
	}
	for _, p := range props {
		if _, ok := s.byExternal[p.ExternalID]; ok {
			return nil, apperrors.ErrDuplicate
		}
	}
	ids := make(map[string]int64, len(props))
	for _, p := range props {
		p.ID = s.id()
		cp := p
		s.properties[p.ID] = &cp
		s.byExternal[p.ExternalID] = p.ID
		ids[p.ExternalID] = p.ID
	}
	return ids, nil
}

func (s *memStore) UpdateProperty(ctx context.Context, p *models.Property, reassign bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		if err := s.updateErr(p); err != nil {
			return err
		}
	}
	stored, ok := s.properties[p.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	stored.Name = p.Name
	stored.Address = p.Address
	stored.BuildingType = p.BuildingType
	stored.Latitude = p.Latitude
	stored.Longitude = p.Longitude
	stored.UpdatedAt = p.UpdatedAt
	if reassign {
		stored.NeighborhoodID = p.NeighborhoodID
	}
	return nil
}

func (s *memStore) ListByNeighborhood(ctx context.Context, neighborhoodID int64) ([]*models.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Property
	for _, p := range s.properties {
		if p.NeighborhoodID == neighborhoodID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) DeleteDependents(ctx context.Context, table types.DependentTable, propertyIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dependentErr[table]; err != nil {
		return err
	}
	for _, id := range propertyIDs {
		delete(s.dependents[table], id)
	}
	return nil
}

func (s *memStore) InsertDependents(ctx context.Context, table types.DependentTable, records []models.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dependentErr[table]; err != nil {
		return err
	}
	rows := s.dependents[table]
	for i := range records {
		id := records[i].Property.ID
		if id == 0 {
			return errors.New("record not bound to a property id")
		}
		if _, ok := s.properties[id]; !ok {
			return fmt.Errorf("property %d: foreign key violation", id)
		}
		if rows[id] > 0 && table != types.TableImages && table != types.TableReviews {
			return apperrors.ErrDuplicate
		}
	}
	for i := range records {
		r := &records[i]
		switch table {
		case types.TableImages:
			rows[r.Property.ID] += len(r.Images)
		case types.TableReviews:
			rows[r.Property.ID] += len(r.Reviews)
		default:
			rows[r.Property.ID] = 1
		}
	}
	return nil
}

func (s *memStore) property(externalID string) *models.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil
	}
	cp := *s.properties[id]
	return &cp
}

func (s *memStore) neighborhood(name string) *models.Neighborhood {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.neighborhoods {
		if n.Name == name {
			cp := *n
			return &cp
		}
	}
	return nil
}

func (s *memStore) dependentRows(table types.DependentTable, propertyID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dependents[table][propertyID]
}

type fakeRecorder struct {
	reports []*models.BatchReport
	replace []bool
	err     error
}

func (f *fakeRecorder) RecordRun(ctx context.Context, report *models.BatchReport, startedAt time.Time, replaceExisting bool) error {
	f.reports = append(f.reports, report)
	f.replace = append(f.replace, replaceExisting)
	return f.err
}

type fakeViewCache struct {
	mu          sync.Mutex
	views       map[int64]cluster.Result
	invalidated []int64
	getErr      error
	puts        int
}

func newFakeViewCache() *fakeViewCache {
	return &fakeViewCache{views: make(map[int64]cluster.Result)}
}

func (f *fakeViewCache) Get(ctx context.Context, id int64) (*storage.CachedBuildings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.views[id]
	if !ok {
		return nil, nil
	}
	return &storage.CachedBuildings{NeighborhoodID: id, Result: r}, nil
}

func (f *fakeViewCache) Put(ctx context.Context, id int64, result cluster.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.views[id] = result
	return nil
}

func (f *fakeViewCache) Invalidate(ctx context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.views, id)
	}
	f.invalidated = append(f.invalidated, ids...)
	return nil
}
