package dataset

import (
	"context"
	"encoding/json"

	"github.com/yuya-takeyama/dtool-info/pkg/logger"
)

// Identifier is the stable key of an item: the SHA-1 hex digest of its relpath.
type Identifier string

type ItemProperties struct {
	Relpath      string  `json:"relpath"`
	SizeInBytes  int64   `json:"size_in_bytes"`
	Hash         string  `json:"hash"`
	UTCTimestamp float64 `json:"utc_timestamp"`
}

// Manifest maps identifiers to item properties. It is either the persisted
// manifest of a frozen dataset or one regenerated by rescanning storage.
type Manifest struct {
	DtoolcoreVersion string                        `json:"dtoolcore_version"`
	HashFunction     string                        `json:"hash_function"`
	Items            map[Identifier]ItemProperties `json:"items"`
}

const (
	TypeDataset      = "dataset"
	TypeProtoDataset = "protodataset"
)

type AdminMetadata struct {
	UUID             string  `json:"uuid"`
	DtoolcoreVersion string  `json:"dtoolcore_version"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	CreatorUsername  string  `json:"creator_username"`
	CreatedAt        float64 `json:"created_at,omitempty"`
	FrozenAt         float64 `json:"frozen_at,omitempty"`
}

// PhaseRescan is the progress phase brokers report while regenerating a manifest.
const PhaseRescan = "rescan"

type GenerateOptions struct {
	// Hash computes item hashes while rescanning. Without it Hash is left empty.
	Hash bool
	// Concurrency bounds parallel hashing. Zero means the broker default.
	Concurrency int
	// Progress, if set, receives one tick per item found in storage.
	Progress logger.Progress
}

// ProgressOrNull returns opts.Progress, or a no-op reporter when unset.
func (o GenerateOptions) ProgressOrNull() logger.Progress {
	if o.Progress == nil {
		return &logger.NullLogger{}
	}
	return o.Progress
}

// Broker is the read-only capability a storage back-end provides for one
// dataset.
type Broker interface {
	URI() string
	AdminMetadata(ctx context.Context) (AdminMetadata, error)
	Manifest(ctx context.Context) (*Manifest, error)
	GenerateManifest(ctx context.Context, hashFunction string, opts GenerateOptions) (*Manifest, error)
	ItemHash(ctx context.Context, props ItemProperties, id Identifier, hashFunction string) (string, error)
	ItemContentAbspath(ctx context.Context, props ItemProperties, id Identifier) (string, error)
	ReadmeContent(ctx context.Context) (string, error)
	OverlayNames(ctx context.Context) ([]string, error)
	Overlay(ctx context.Context, name string) (json.RawMessage, error)
}

// Info summarises a dataset found while listing a base URI. Proto datasets
// are listed too, so Info carries only admin metadata.
type Info struct {
	URI             string  `json:"uri"`
	UUID            string  `json:"uuid"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	CreatorUsername string  `json:"creator_username"`
	FrozenAt        float64 `json:"frozen_at,omitempty"`
}
