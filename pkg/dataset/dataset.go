// Package dataset holds the read-only view of a frozen dtool dataset: its
// administrative metadata, its persisted manifest and the operations that
// reach through to the storage back-end.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DataSet is a frozen dataset opened through a Broker. The persisted manifest
// is read once when the dataset is opened and never changes afterwards.
type DataSet struct {
	broker      Broker
	admin       AdminMetadata
	manifest    *Manifest
	identifiers []Identifier
}

// New reads the admin metadata and manifest through broker. Proto datasets are
// rejected because their items cannot be listed yet.
func New(ctx context.Context, broker Broker) (*DataSet, error) {
	admin, err := broker.AdminMetadata(ctx)
	if err != nil {
		return nil, err
	}

	switch admin.Type {
	case TypeDataset:
	case TypeProtoDataset:
		return nil, fmt.Errorf("%w: %s", ErrProtoDataset, broker.URI())
	default:
		return nil, fmt.Errorf("%w: %s has type %q", ErrNotADataset, broker.URI(), admin.Type)
	}

	manifest, err := broker.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if manifest.Items == nil {
		manifest.Items = map[Identifier]ItemProperties{}
	}

	return &DataSet{
		broker:      broker,
		admin:       admin,
		manifest:    manifest,
		identifiers: SortedIdentifiers(manifest.Items),
	}, nil
}

func (d *DataSet) URI() string          { return d.broker.URI() }
func (d *DataSet) UUID() string         { return d.admin.UUID }
func (d *DataSet) Name() string         { return d.admin.Name }
func (d *DataSet) Admin() AdminMetadata { return d.admin }

// HashFunction is the name of the hash function the manifest was built with.
func (d *DataSet) HashFunction() string { return d.manifest.HashFunction }

// FrozenAt converts the admin metadata timestamp to a time.Time.
func (d *DataSet) FrozenAt() time.Time {
	return TimeFromTimestamp(d.admin.FrozenAt)
}

// Identifiers returns the item identifiers in sorted order.
func (d *DataSet) Identifiers() []Identifier {
	ids := make([]Identifier, len(d.identifiers))
	copy(ids, d.identifiers)
	return ids
}

func (d *DataSet) ItemProperties(id Identifier) (ItemProperties, error) {
	props, ok := d.manifest.Items[id]
	if !ok {
		return ItemProperties{}, fmt.Errorf("%w: %s", ErrNoSuchItem, id)
	}
	return props, nil
}

// TotalSize sums size_in_bytes over all items.
func (d *DataSet) TotalSize() int64 {
	var total int64
	for _, props := range d.manifest.Items {
		total += props.SizeInBytes
	}
	return total
}

// ItemHash recomputes the hash of the item's current content with the given
// hash function. This reads storage and can be slow.
func (d *DataSet) ItemHash(ctx context.Context, id Identifier, hashFunction string) (string, error) {
	props, err := d.ItemProperties(id)
	if err != nil {
		return "", err
	}
	return d.broker.ItemHash(ctx, props, id, hashFunction)
}

// GenerateManifest rescans storage and builds a manifest of what is there now,
// using the dataset's own hash function.
func (d *DataSet) GenerateManifest(ctx context.Context, opts GenerateOptions) (*Manifest, error) {
	return d.broker.GenerateManifest(ctx, d.HashFunction(), opts)
}

// ItemContentAbspath returns a local path holding the item's content,
// fetching it from remote storage first if needed.
func (d *DataSet) ItemContentAbspath(ctx context.Context, id Identifier) (string, error) {
	props, err := d.ItemProperties(id)
	if err != nil {
		return "", err
	}
	return d.broker.ItemContentAbspath(ctx, props, id)
}

func (d *DataSet) ReadmeContent(ctx context.Context) (string, error) {
	return d.broker.ReadmeContent(ctx)
}

func (d *DataSet) OverlayNames(ctx context.Context) ([]string, error) {
	names, err := d.broker.OverlayNames(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (d *DataSet) Overlay(ctx context.Context, name string) (json.RawMessage, error) {
	return d.broker.Overlay(ctx, name)
}

// SortedIdentifiers returns the keys of items in ascending order.
func SortedIdentifiers(items map[Identifier]ItemProperties) []Identifier {
	ids := make([]Identifier, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// TimeFromTimestamp converts a dtool float timestamp (seconds since epoch) to UTC.
func TimeFromTimestamp(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
