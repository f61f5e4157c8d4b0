package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/types"
)

// MaxLookupChunk bounds the identifiers sent in one existence lookup
const MaxLookupChunk = 100

// ClassifiedRecord is an incoming listing with its stored identity, if any
type ClassifiedRecord struct {
	Record *models.ListingRecord
	// Existing is the zero value for new listings
	Existing models.PropertyRef
}

// Partition splits a group's listings into New, Updated and Moved. Every
// input listing appears in exactly one slice.
type Partition struct {
	New     []ClassifiedRecord
	Updated []ClassifiedRecord
	Moved   []ClassifiedRecord
}

// Of returns the slice for one classification
func (p *Partition) Of(c types.Classification) []ClassifiedRecord {
	switch c {
	case types.ClassificationNew:
		return p.New
	case types.ClassificationUpdated:
		return p.Updated
	case types.ClassificationMoved:
		return p.Moved
	}
	return nil
}

// Len is the number of classified listings
func (p *Partition) Len() int {
	return len(p.New) + len(p.Updated) + len(p.Moved)
}

// Existing returns Updated followed by Moved
func (p *Partition) Existing() []ClassifiedRecord {
	out := make([]ClassifiedRecord, 0, len(p.Updated)+len(p.Moved))
	out = append(out, p.Updated...)
	return append(out, p.Moved...)
}

// ExistenceClassifier looks incoming listings up by external id. It never writes.
type ExistenceClassifier struct {
	store      PropertyLookup
	chunkSize  int
	chunkDelay time.Duration
}

// NewExistenceClassifier creates a classifier. chunkSize is capped at
// MaxLookupChunk; chunkDelay spaces consecutive lookups.
func NewExistenceClassifier(store PropertyLookup, chunkSize int, chunkDelay time.Duration) *ExistenceClassifier {
	if chunkSize <= 0 || chunkSize > MaxLookupChunk {
		chunkSize = MaxLookupChunk
	}
	return &ExistenceClassifier{store: store, chunkSize: chunkSize, chunkDelay: chunkDelay}
}

// Classify partitions records against stored properties, relative to the
// neighborhood the group is being reconciled into
func (c *ExistenceClassifier) Classify(ctx context.Context, records []models.ListingRecord, neighborhoodID int64) (*Partition, error) {
	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].Property.ExternalID
	}

	existing, err := c.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	return PartitionRecords(records, existing, neighborhoodID), nil
}

// Lookup returns external_id -> stored identity for every id that exists,
// querying at most chunkSize ids at a time
func (c *ExistenceClassifier) Lookup(ctx context.Context, externalIDs []string) (map[string]models.PropertyRef, error) {
	found := make(map[string]models.PropertyRef, len(externalIDs))

	limit := rate.Inf
	if c.chunkDelay > 0 {
		limit = rate.Every(c.chunkDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for chunk, start := 0, 0; start < len(externalIDs); chunk, start = chunk+1, start+c.chunkSize {
		end := min(start+c.chunkSize, len(externalIDs))
		ids := externalIDs[start:end]

		if err := limiter.Wait(ctx); err != nil {
			return nil, &apperrors.ClassificationError{Chunk: chunk, ChunkSize: len(ids), Cause: err}
		}
		refs, err := c.store.FindByExternalIDs(ctx, ids)
		if err != nil {
			return nil, &apperrors.ClassificationError{Chunk: chunk, ChunkSize: len(ids), Cause: err}
		}
		for _, ref := range refs {
			found[ref.ExternalID] = ref
		}
	}
	return found, nil
}

// PartitionRecords is the pure classification step
func PartitionRecords(records []models.ListingRecord, existing map[string]models.PropertyRef, neighborhoodID int64) *Partition {
	p := &Partition{}
	for i := range records {
		rec := &records[i]
		ref, ok := existing[rec.Property.ExternalID]
		switch {
		case !ok:
			p.New = append(p.New, ClassifiedRecord{Record: rec})
		case ref.NeighborhoodID == neighborhoodID:
			p.Updated = append(p.Updated, ClassifiedRecord{Record: rec, Existing: ref})
		default:
			p.Moved = append(p.Moved, ClassifiedRecord{Record: rec, Existing: ref})
		}
	}
	return p
}
