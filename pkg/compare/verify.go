package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
)

// Verify rescans the storage behind ds and checks it against the persisted
// manifest. Sizes are always checked; hashes only with opts.Full.
func Verify(ctx context.Context, ds RescanningDataset, opts Options) (*VerificationResult, error) {
	progress := opts.progress()

	generated, err := ds.GenerateManifest(ctx, dataset.GenerateOptions{
		Hash:        opts.Full,
		Concurrency: opts.concurrency(),
		Progress:    progress,
	})
	if err != nil {
		return nil, fmt.Errorf("generate manifest: %w", err)
	}

	persisted := make(map[dataset.Identifier]dataset.ItemProperties)
	for _, id := range ds.Identifiers() {
		props, err := ds.ItemProperties(id)
		if err != nil {
			return nil, err
		}
		persisted[id] = props
	}

	result := &VerificationResult{
		Unknown:     []Entry{},
		Missing:     []Entry{},
		AlteredSize: []Entry{},
		AlteredHash: []Entry{},
		HashChecked: opts.Full,
	}

	for id, props := range generated.Items {
		if _, ok := persisted[id]; !ok {
			result.Unknown = append(result.Unknown, Entry{Identifier: id, Relpath: props.Relpath})
		}
	}

	ids := dataset.SortedIdentifiers(persisted)
	progress.PhaseStart(PhaseVerify, len(ids))
	for _, id := range ids {
		props := persisted[id]
		gen, ok := generated.Items[id]
		if !ok {
			result.Missing = append(result.Missing, Entry{Identifier: id, Relpath: props.Relpath})
			progress.ItemProcessed(PhaseVerify, string(id), "missing")
			continue
		}

		if gen.SizeInBytes != props.SizeInBytes {
			result.AlteredSize = append(result.AlteredSize, Entry{Identifier: id, Relpath: props.Relpath})
		}
		if opts.Full && gen.Hash != props.Hash {
			result.AlteredHash = append(result.AlteredHash, Entry{Identifier: id, Relpath: props.Relpath})
		}
		progress.ItemProcessed(PhaseVerify, string(id), "verify")
	}
	progress.PhaseComplete(PhaseVerify, len(ids))

	sortEntries(result.Unknown)
	sortEntries(result.Missing)
	sortEntries(result.AlteredSize)
	sortEntries(result.AlteredHash)

	return result, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
}
