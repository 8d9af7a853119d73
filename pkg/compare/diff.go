// Package compare implements the staged dataset diff and the verification of
// a dataset against its own manifest.
package compare

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/internal/worker"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
)

// Diff compares ds against ref in three stages: identifiers, sizes and, with
// opts.Full, content. The first stage that finds a difference ends the
// comparison.
func Diff(ctx context.Context, ds, ref HashingDataset, opts Options) (*StagedResult, error) {
	result := &StagedResult{Stage: Identical, FullCompared: opts.Full}

	ids := DiffIdentifiers(ds, ref)
	if len(ids) > 0 {
		log.Debugf("identifiers differ: %d records", len(ids))
		result.Stage = IdentifiersDiffer
		result.Identifiers = ids
		return result, nil
	}

	sizes, err := DiffSizes(ds, ref, opts)
	if err != nil {
		return nil, fmt.Errorf("compare sizes: %w", err)
	}
	if len(sizes) > 0 {
		log.Debugf("sizes differ: %d records", len(sizes))
		result.Stage = SizesDiffer
		result.Sizes = sizes
		return result, nil
	}

	if !opts.Full {
		return result, nil
	}

	result.HashFunction = ref.HashFunction()
	content, err := DiffContent(ctx, ds, ref, opts)
	if err != nil {
		return nil, fmt.Errorf("compare content: %w", err)
	}
	if len(content) > 0 {
		log.Debugf("content differs: %d records", len(content))
		result.Stage = ContentDiffers
		result.Content = content
	}

	return result, nil
}

// DiffIdentifiers returns one record per identifier present in only one of
// the two datasets, sorted by identifier.
func DiffIdentifiers(ds, ref Dataset) []PresenceRecord {
	dsIDs := identifierSet(ds.Identifiers())
	refIDs := identifierSet(ref.Identifiers())

	records := []PresenceRecord{}
	for id := range dsIDs {
		if _, ok := refIDs[id]; !ok {
			records = append(records, PresenceRecord{Identifier: id, InDataset: true})
		}
	}
	for id := range refIDs {
		if _, ok := dsIDs[id]; !ok {
			records = append(records, PresenceRecord{Identifier: id, InReference: true})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Identifier < records[j].Identifier
	})
	return records
}

// DiffSizes compares size_in_bytes for every identifier of ref. The
// identifier sets must already be equal.
func DiffSizes(ds, ref Dataset, opts Options) ([]SizeRecord, error) {
	progress := opts.progress()
	ids := sortedIdentifiers(ref.Identifiers())

	progress.PhaseStart(PhaseSizes, len(ids))
	processed := 0
	defer func() { progress.PhaseComplete(PhaseSizes, processed) }()

	records := []SizeRecord{}
	for _, id := range ids {
		dsProps, err := ds.ItemProperties(id)
		if err != nil {
			return nil, err
		}
		refProps, err := ref.ItemProperties(id)
		if err != nil {
			return nil, err
		}

		if dsProps.SizeInBytes != refProps.SizeInBytes {
			records = append(records, SizeRecord{
				Identifier:    id,
				DatasetSize:   dsProps.SizeInBytes,
				ReferenceSize: refProps.SizeInBytes,
			})
		}
		processed++
		progress.ItemProcessed(PhaseSizes, string(id), "compare")
	}

	return records, nil
}

// DiffContent rehashes every item of ds with ref's hash function and compares
// the result with the hash recorded in ref. Any hashing failure aborts the
// whole comparison.
func DiffContent(ctx context.Context, ds, ref HashingDataset, opts Options) ([]HashRecord, error) {
	progress := opts.progress()
	hashFunction := ref.HashFunction()
	ids := sortedIdentifiers(ref.Identifiers())

	progress.PhaseStart(PhaseContent, len(ids))
	var processed atomic.Int64
	defer func() { progress.PhaseComplete(PhaseContent, int(processed.Load())) }()

	slots := make([]*HashRecord, len(ids))
	err := worker.ForEach(ctx, len(ids), opts.concurrency(), func(ctx context.Context, i int) error {
		id := ids[i]
		refProps, err := ref.ItemProperties(id)
		if err != nil {
			return err
		}
		calculated, err := ds.ItemHash(ctx, id, hashFunction)
		if err != nil {
			return fmt.Errorf("hash %s: %w", id, err)
		}

		if calculated != refProps.Hash {
			slots[i] = &HashRecord{
				Identifier:    id,
				DatasetHash:   calculated,
				ReferenceHash: refProps.Hash,
			}
		}
		processed.Add(1)
		progress.ItemProcessed(PhaseContent, string(id), "hash")
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := []HashRecord{}
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func identifierSet(ids []dataset.Identifier) map[dataset.Identifier]struct{} {
	set := make(map[dataset.Identifier]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedIdentifiers(ids []dataset.Identifier) []dataset.Identifier {
	sorted := make([]dataset.Identifier, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})
	return sorted
}
