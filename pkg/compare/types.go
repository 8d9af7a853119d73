package compare

import (
	"context"

	"github.com/yuya-takeyama/dtool-info/internal/worker"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/logger"
)

// Dataset is the read access both engines need.
type Dataset interface {
	Identifiers() []dataset.Identifier
	ItemProperties(id dataset.Identifier) (dataset.ItemProperties, error)
}

// HashingDataset can recompute item hashes with an arbitrary hash function.
type HashingDataset interface {
	Dataset
	HashFunction() string
	ItemHash(ctx context.Context, id dataset.Identifier, hashFunction string) (string, error)
}

// RescanningDataset can rebuild its manifest from what is currently in storage.
type RescanningDataset interface {
	Dataset
	GenerateManifest(ctx context.Context, opts dataset.GenerateOptions) (*dataset.Manifest, error)
}

// Progress phase names.
const (
	PhaseSizes   = "sizes"
	PhaseContent = "content"
	PhaseVerify  = "verify"
)

type Options struct {
	// Full enables hash comparison: stage 3 of Diff, the altered_hash check of Verify.
	Full bool
	// Concurrency bounds parallel hashing.
	Concurrency int
	Progress    logger.Progress
}

func (o Options) progress() logger.Progress {
	if o.Progress == nil {
		return &logger.NullLogger{}
	}
	return o.Progress
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return worker.DefaultConcurrency
	}
	return o.Concurrency
}

// Stage is the terminal state of a staged diff.
type Stage int

const (
	Identical Stage = iota
	IdentifiersDiffer
	SizesDiffer
	ContentDiffers
)

func (s Stage) String() string {
	switch s {
	case Identical:
		return "identical"
	case IdentifiersDiffer:
		return "identifiers differ"
	case SizesDiffer:
		return "sizes differ"
	case ContentDiffers:
		return "content differs"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit status conventionally reported for the stage.
func (s Stage) ExitCode() int {
	return int(s)
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PresenceRecord is a stage 1 difference: an identifier found in only one dataset.
type PresenceRecord struct {
	Identifier  dataset.Identifier `json:"identifier"`
	InDataset   bool               `json:"in_dataset"`
	InReference bool               `json:"in_reference"`
}

// SizeRecord is a stage 2 difference.
type SizeRecord struct {
	Identifier    dataset.Identifier `json:"identifier"`
	DatasetSize   int64              `json:"dataset_size_in_bytes"`
	ReferenceSize int64              `json:"reference_size_in_bytes"`
}

// HashRecord is a stage 3 difference. DatasetHash was computed with the
// reference dataset's hash function.
type HashRecord struct {
	Identifier    dataset.Identifier `json:"identifier"`
	DatasetHash   string             `json:"dataset_hash"`
	ReferenceHash string             `json:"reference_hash"`
}

// StagedResult is the outcome of Diff. Only the slice belonging to Stage is
// populated; earlier stages were empty and later stages were not evaluated.
type StagedResult struct {
	Stage        Stage            `json:"stage"`
	Identifiers  []PresenceRecord `json:"identifiers,omitempty"`
	Sizes        []SizeRecord     `json:"sizes,omitempty"`
	Content      []HashRecord     `json:"content,omitempty"`
	HashFunction string           `json:"hash_function,omitempty"`
	FullCompared bool             `json:"full_compared"`
}

func (r *StagedResult) ExitCode() int {
	return r.Stage.ExitCode()
}

// Entry names an item in a verification finding.
type Entry struct {
	Identifier dataset.Identifier `json:"identifier"`
	Relpath    string             `json:"relpath"`
}

// VerificationResult is the outcome of Verify. The four lists are disjoint
// per check and sorted by identifier.
type VerificationResult struct {
	Unknown     []Entry `json:"unknown"`
	Missing     []Entry `json:"missing"`
	AlteredSize []Entry `json:"altered_size"`
	AlteredHash []Entry `json:"altered_hash"`
	HashChecked bool    `json:"hash_checked"`
}

// OK reports whether every check passed.
func (r *VerificationResult) OK() bool {
	return len(r.Unknown) == 0 && len(r.Missing) == 0 &&
		len(r.AlteredSize) == 0 && len(r.AlteredHash) == 0
}

func (r *VerificationResult) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}
