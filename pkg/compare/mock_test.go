package compare

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
)

// memItem is an item of an in-memory dataset: the content currently in
// storage and what the persisted manifest says about it.
type memItem struct {
	relpath string
	content string
	// size overrides the manifest size when non-negative.
	size int64
}

// memDataset is an in-memory implementation of the dataset interfaces.
type memDataset struct {
	hashFunction string
	manifest     map[dataset.Identifier]dataset.ItemProperties
	order        []dataset.Identifier
	storage      map[dataset.Identifier]memItem

	itemHashFunc func(ctx context.Context, id dataset.Identifier, hashFunction string) (string, error)
	generateFunc func(ctx context.Context, opts dataset.GenerateOptions) (*dataset.Manifest, error)

	mu                sync.Mutex
	itemHashCalls     int
	hashFunctionsUsed map[string]int
}

// newMemDataset builds a dataset whose manifest matches the given content.
func newMemDataset(hashFunction string, items ...memItem) *memDataset {
	ds := &memDataset{
		hashFunction:      hashFunction,
		manifest:          map[dataset.Identifier]dataset.ItemProperties{},
		storage:           map[dataset.Identifier]memItem{},
		hashFunctionsUsed: map[string]int{},
	}
	for _, item := range items {
		id := dataset.GenerateIdentifier(item.relpath)
		size := int64(len(item.content))
		if item.size >= 0 {
			size = item.size
		}
		hash, err := hashing.Calculate(hashFunction, strings.NewReader(item.content))
		if err != nil {
			panic(err)
		}
		ds.manifest[id] = dataset.ItemProperties{
			Relpath:     item.relpath,
			SizeInBytes: size,
			Hash:        hash,
		}
		ds.storage[id] = item
		ds.order = append(ds.order, id)
	}
	return ds
}

func item(relpath, content string) memItem {
	return memItem{relpath: relpath, content: content, size: -1}
}

func sizedItem(relpath string, size int64) memItem {
	return memItem{relpath: relpath, content: strings.Repeat("x", int(size)), size: -1}
}

func (m *memDataset) Identifiers() []dataset.Identifier {
	ids := make([]dataset.Identifier, len(m.order))
	copy(ids, m.order)
	return ids
}

func (m *memDataset) ItemProperties(id dataset.Identifier) (dataset.ItemProperties, error) {
	props, ok := m.manifest[id]
	if !ok {
		return dataset.ItemProperties{}, fmt.Errorf("%w: %s", dataset.ErrNoSuchItem, id)
	}
	return props, nil
}

func (m *memDataset) HashFunction() string { return m.hashFunction }

func (m *memDataset) ItemHash(ctx context.Context, id dataset.Identifier, hashFunction string) (string, error) {
	m.mu.Lock()
	m.itemHashCalls++
	m.hashFunctionsUsed[hashFunction]++
	m.mu.Unlock()

	if m.itemHashFunc != nil {
		return m.itemHashFunc(ctx, id, hashFunction)
	}
	stored, ok := m.storage[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", dataset.ErrNoSuchItem, id)
	}
	return hashing.Calculate(hashFunction, strings.NewReader(stored.content))
}

func (m *memDataset) GenerateManifest(ctx context.Context, opts dataset.GenerateOptions) (*dataset.Manifest, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, opts)
	}

	generated := &dataset.Manifest{
		HashFunction: m.hashFunction,
		Items:        map[dataset.Identifier]dataset.ItemProperties{},
	}
	for id, stored := range m.storage {
		props := dataset.ItemProperties{
			Relpath:     stored.relpath,
			SizeInBytes: int64(len(stored.content)),
		}
		if opts.Hash {
			hash, err := hashing.Calculate(m.hashFunction, strings.NewReader(stored.content))
			if err != nil {
				return nil, err
			}
			props.Hash = hash
		}
		generated.Items[id] = props
	}
	return generated, nil
}

// setStorage replaces what is "on disk" for relpath without touching the manifest.
func (m *memDataset) setStorage(relpath, content string) {
	m.storage[dataset.GenerateIdentifier(relpath)] = memItem{relpath: relpath, content: content, size: -1}
}

func (m *memDataset) removeStorage(relpath string) {
	delete(m.storage, dataset.GenerateIdentifier(relpath))
}

func (m *memDataset) reverseOrder() {
	for i, j := 0, len(m.order)-1; i < j; i, j = i+1, j-1 {
		m.order[i], m.order[j] = m.order[j], m.order[i]
	}
}
