package warehouse

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"taxietl/internal/storage"
)

// BatchStats summarizes one LoadBatch call.
type BatchStats struct {
	Batch         string
	Clean         CleanStats
	DatesInserted int64
	Unresolved    int
	Inserted      int64
}

// Loader writes dimension and fact rows to a Repository.
type Loader struct {
	repo   storage.Repository
	policy UnresolvedPolicy
}

// NewLoader returns a Loader. An empty policy means UnresolvedDrop.
func NewLoader(repo storage.Repository, policy UnresolvedPolicy) *Loader {
	if policy == "" {
		policy = UnresolvedDrop
	}
	return &Loader{repo: repo, policy: policy}
}

// LoadZones appends every lookup row to the zone table in one transaction.
func (l *Loader) LoadZones(ctx context.Context, raw []RawZone) (int64, error) {
	zones := BuildZones(raw)
	rows := make([][]any, len(zones))
	for i, z := range zones {
		rows[i] = z.Row()
	}
	n, err := l.repo.BulkAppend(ctx, ZoneTable, ZoneColumns, rows)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", ZoneTable, err)
	}
	log.Printf("warehouse: loaded %s zones", humanize.Comma(n))
	return n, nil
}

// LoadBatch cleans one batch of trips, extends the date dimension with its
// pickup dates, re-reads the date keys and appends the facts. The date upsert
// and the fact append are separate transactions.
func (l *Loader) LoadBatch(ctx context.Context, batch string, raw []RawTrip) (BatchStats, error) {
	stats := BatchStats{Batch: batch}

	clean, cs := CleanTrips(raw)
	stats.Clean = cs
	if cs.Dropped() > 0 {
		log.Printf("warehouse: batch=%s dropped %s of %s rows (missing=%d distance=%d total=%d duration=%d)",
			batch, humanize.Comma(int64(cs.Dropped())), humanize.Comma(int64(cs.Raw)),
			cs.MissingRequired, cs.NonPositiveDistance, cs.NonPositiveTotal, cs.NonPositiveDuration)
	}

	n, err := UpsertDateDims(ctx, l.repo, BuildDateDims(clean))
	if err != nil {
		return stats, err
	}
	stats.DatesInserted = n

	keys, err := LoadDateKeys(ctx, l.repo)
	if err != nil {
		return stats, err
	}

	facts, unresolved, err := BuildFacts(clean, keys, l.policy)
	stats.Unresolved = unresolved
	if err != nil {
		return stats, fmt.Errorf("batch %s: %w", batch, err)
	}
	if unresolved > 0 {
		log.Printf("warehouse: batch=%s %d trips without date key (policy=%s)", batch, unresolved, l.policy)
	}

	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = f.Row()
	}
	inserted, err := l.repo.BulkAppend(ctx, TripTable, TripColumns, rows)
	if err != nil {
		return stats, fmt.Errorf("load %s: %w", TripTable, err)
	}
	stats.Inserted = inserted
	log.Printf("warehouse: inserted %s trips for %s", humanize.Comma(inserted), batch)
	return stats, nil
}
