// Package testkit writes dtool datasets to disk for tests.
package testkit

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
)

const (
	DefaultCreator  = "olssont"
	DefaultFrozenAt = 1536238185.881941
)

type builder struct {
	uuid         string
	creator      string
	frozenAt     float64
	hashFunction string
	proto        bool
	readme       string
	overlays     map[string]any
}

type Option func(*builder)

func WithUUID(uuid string) Option { return func(b *builder) { b.uuid = uuid } }

func WithCreator(creator string) Option { return func(b *builder) { b.creator = creator } }

func WithFrozenAt(ts float64) Option { return func(b *builder) { b.frozenAt = ts } }

func WithHashFunction(name string) Option { return func(b *builder) { b.hashFunction = name } }

func WithReadme(content string) Option { return func(b *builder) { b.readme = content } }

// WithOverlay adds an overlay; value is marshalled to JSON.
func WithOverlay(name string, value any) Option {
	return func(b *builder) { b.overlays[name] = value }
}

// AsProto writes a proto dataset: admin metadata and data, no manifest.
func AsProto() Option { return func(b *builder) { b.proto = true } }

// UUIDFor returns the UUID CreateDataset assigns to name by default.
func UUIDFor(name string) string {
	sum := sha1.Sum([]byte(name))
	h := hex.EncodeToString(sum[:16])
	return strings.Join([]string{h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]}, "-")
}

// CreateDataset writes a dataset named name below base with the given
// relpath to content items and returns its directory.
func CreateDataset(t testing.TB, base, name string, items map[string]string, opts ...Option) string {
	t.Helper()

	b := &builder{
		uuid:         UUIDFor(name),
		creator:      DefaultCreator,
		frozenAt:     DefaultFrozenAt,
		hashFunction: hashing.Default,
		readme:       "---\ndescription: " + name + "\n",
		overlays:     map[string]any{},
	}
	for _, opt := range opts {
		opt(b)
	}

	dir := filepath.Join(base, name)
	mkdir(t, filepath.Join(dir, ".dtool"))
	mkdir(t, filepath.Join(dir, "data"))

	admin := dataset.AdminMetadata{
		UUID:             b.uuid,
		DtoolcoreVersion: "3.7.0",
		Name:             name,
		Type:             dataset.TypeDataset,
		CreatorUsername:  b.creator,
		CreatedAt:        b.frozenAt - 60,
		FrozenAt:         b.frozenAt,
	}
	if b.proto {
		admin.Type = dataset.TypeProtoDataset
		admin.FrozenAt = 0
	}
	writeJSON(t, filepath.Join(dir, ".dtool", "dtool"), admin)
	writeFile(t, filepath.Join(dir, "README.yml"), b.readme)

	manifest := dataset.Manifest{
		DtoolcoreVersion: "3.7.0",
		HashFunction:     b.hashFunction,
		Items:            map[dataset.Identifier]dataset.ItemProperties{},
	}
	for relpath, content := range items {
		WriteItem(t, dir, relpath, content)
		hash, err := hashing.Calculate(b.hashFunction, strings.NewReader(content))
		if err != nil {
			t.Fatalf("hash %s: %v", relpath, err)
		}
		manifest.Items[dataset.GenerateIdentifier(relpath)] = dataset.ItemProperties{
			Relpath:      relpath,
			SizeInBytes:  int64(len(content)),
			Hash:         hash,
			UTCTimestamp: b.frozenAt - 30,
		}
	}
	if !b.proto {
		writeJSON(t, filepath.Join(dir, ".dtool", "manifest.json"), manifest)
	}

	if len(b.overlays) > 0 {
		mkdir(t, filepath.Join(dir, ".dtool", "overlays"))
		for name, value := range b.overlays {
			writeJSON(t, filepath.Join(dir, ".dtool", "overlays", name+".json"), value)
		}
	}

	return dir
}

// WriteItem creates or replaces the data file at relpath without touching the
// manifest.
func WriteItem(t testing.TB, dir, relpath, content string) {
	t.Helper()
	path := filepath.Join(dir, "data", filepath.FromSlash(relpath))
	mkdir(t, filepath.Dir(path))
	writeFile(t, path, content)
}

// RemoveItem deletes the data file at relpath without touching the manifest.
func RemoveItem(t testing.TB, dir, relpath string) {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, "data", filepath.FromSlash(relpath))); err != nil {
		t.Fatalf("remove %s: %v", relpath, err)
	}
}

func mkdir(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	writeFile(t, path, string(data))
}
