// Package disk reads dtool datasets stored in a directory on the local
// filesystem.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/internal/walker"
	"github.com/yuya-takeyama/dtool-info/internal/worker"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
)

const (
	adminDir         = ".dtool"
	adminFile        = "dtool"
	manifestFile     = "manifest.json"
	overlaysDir      = "overlays"
	readmeFile       = "README.yml"
	dataDir          = "data"
	overlayFileExt   = ".json"
	dtoolcoreVersion = "3.7.0"
)

// Broker serves one dataset directory.
type Broker struct {
	root    string
	ignores []string
}

var _ dataset.Broker = (*Broker)(nil)

// Path returns the directory path for a file:// URI or a bare path.
func Path(uri string) (string, error) {
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", uri, err)
		}
		uri = u.Path
	}
	abs, err := filepath.Abs(uri)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}
	return abs, nil
}

// URI returns the file:// URI of a directory.
func URI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// NewBroker returns a broker for the dataset at uri. ignores are doublestar
// patterns skipped when the data directory is rescanned.
func NewBroker(uri string, ignores []string) (*Broker, error) {
	root, err := Path(uri)
	if err != nil {
		return nil, err
	}
	return &Broker{root: root, ignores: ignores}, nil
}

func (b *Broker) URI() string { return URI(b.root) }

func (b *Broker) adminPath(elem ...string) string {
	return filepath.Join(append([]string{b.root, adminDir}, elem...)...)
}

func (b *Broker) AdminMetadata(ctx context.Context) (dataset.AdminMetadata, error) {
	var admin dataset.AdminMetadata
	data, err := os.ReadFile(b.adminPath(adminFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return admin, fmt.Errorf("%w: %s", dataset.ErrNotADataset, b.URI())
		}
		return admin, fmt.Errorf("read admin metadata: %w", err)
	}
	if err := json.Unmarshal(data, &admin); err != nil {
		return admin, fmt.Errorf("%w: %s: %v", dataset.ErrNotADataset, b.URI(), err)
	}
	return admin, nil
}

func (b *Broker) Manifest(ctx context.Context) (*dataset.Manifest, error) {
	data, err := os.ReadFile(b.adminPath(manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest dataset.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

// scan lists the data directory. A dataset whose data directory is gone has no
// items.
func (b *Broker) scan() ([]walker.FileInfo, error) {
	root := filepath.Join(b.root, dataDir)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		log.WithField("uri", b.URI()).Debug("data directory is missing")
		return nil, nil
	}
	w, err := walker.NewWalker(root, b.ignores)
	if err != nil {
		return nil, fmt.Errorf("scan data directory: %w", err)
	}
	return w.Walk()
}

func (b *Broker) itemPath(relpath string) string {
	return filepath.Join(b.root, dataDir, filepath.FromSlash(relpath))
}

// GenerateManifest rescans the data directory. Hashes are computed only when
// opts.Hash is set.
func (b *Broker) GenerateManifest(ctx context.Context, hashFunction string, opts dataset.GenerateOptions) (*dataset.Manifest, error) {
	if opts.Hash && !hashing.IsSupported(hashFunction) {
		return nil, fmt.Errorf("%w: %s", hashing.ErrUnknownAlgorithm, hashFunction)
	}

	files, err := b.scan()
	if err != nil {
		return nil, err
	}
	log.Debugf("rescanned %d files in %s", len(files), b.URI())

	progress := opts.ProgressOrNull()
	progress.PhaseStart(dataset.PhaseRescan, len(files))
	var processed atomic.Int64
	defer func() { progress.PhaseComplete(dataset.PhaseRescan, int(processed.Load())) }()

	props := make([]dataset.ItemProperties, len(files))
	err = worker.ForEach(ctx, len(files), opts.Concurrency, func(ctx context.Context, i int) error {
		f := files[i]
		p := dataset.ItemProperties{
			Relpath:      f.RelPath,
			SizeInBytes:  f.Size,
			UTCTimestamp: f.ModTime,
		}
		if opts.Hash {
			hash, err := hashing.CalculateFile(hashFunction, f.Path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", f.RelPath, err)
			}
			p.Hash = hash
		}
		props[i] = p
		log.Tracef("scanned %s (%d bytes)", f.RelPath, f.Size)
		processed.Add(1)
		progress.ItemProcessed(dataset.PhaseRescan, f.RelPath, "scanned")
		return nil
	})
	if err != nil {
		return nil, err
	}

	manifest := &dataset.Manifest{
		DtoolcoreVersion: dtoolcoreVersion,
		HashFunction:     hashFunction,
		Items:            make(map[dataset.Identifier]dataset.ItemProperties, len(props)),
	}
	for _, p := range props {
		manifest.Items[dataset.GenerateIdentifier(p.Relpath)] = p
	}
	return manifest, nil
}

func (b *Broker) ItemHash(ctx context.Context, props dataset.ItemProperties, id dataset.Identifier, hashFunction string) (string, error) {
	hash, err := hashing.CalculateFile(hashFunction, b.itemPath(props.Relpath))
	if err != nil {
		return "", fmt.Errorf("hash item %s: %w", id, err)
	}
	return hash, nil
}

func (b *Broker) ItemContentAbspath(ctx context.Context, props dataset.ItemProperties, id dataset.Identifier) (string, error) {
	path := b.itemPath(props.Relpath)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("item %s: %w", id, err)
	}
	return path, nil
}

// ReadmeContent returns README.yml, or an empty string when there is none.
func (b *Broker) ReadmeContent(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.root, readmeFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read readme: %w", err)
	}
	return string(data), nil
}

func (b *Broker) OverlayNames(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.adminPath(overlaysDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != overlayFileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), overlayFileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (b *Broker) Overlay(ctx context.Context, name string) (json.RawMessage, error) {
	data, err := os.ReadFile(b.adminPath(overlaysDir, name+overlayFileExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrNoSuchOverlay, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read overlay %s: %w", name, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("overlay %s is not valid JSON", name)
	}
	return json.RawMessage(data), nil
}

// IsDataset reports whether uri holds dtool admin metadata. Proto datasets
// count.
func IsDataset(uri string) (bool, error) {
	root, err := Path(uri)
	if err != nil {
		return false, err
	}
	_, ok, err := peekAdmin(root)
	return ok, err
}

// ListDatasets returns the datasets directly below the base directory,
// sorted by name.
func ListDatasets(uri string) ([]dataset.Info, error) {
	base, err := Path(uri)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", base, err)
	}

	var infos []dataset.Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, ok, err := peekAdmin(filepath.Join(base, e.Name()))
		if err != nil {
			log.WithError(err).Warnf("skipping %s", e.Name())
			continue
		}
		if ok {
			infos = append(infos, info)
		}
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// peekAdmin reads only the admin fields a listing needs. ok is false when the
// directory carries no admin metadata.
func peekAdmin(root string) (dataset.Info, bool, error) {
	data, err := os.ReadFile(filepath.Join(root, adminDir, adminFile))
	if errors.Is(err, fs.ErrNotExist) {
		return dataset.Info{}, false, nil
	}
	if err != nil {
		return dataset.Info{}, false, err
	}
	if !gjson.ValidBytes(data) {
		return dataset.Info{}, false, fmt.Errorf("malformed admin metadata")
	}

	fields := gjson.GetManyBytes(data, "uuid", "name", "type", "creator_username", "frozen_at")
	return dataset.Info{
		URI:             URI(root),
		UUID:            fields[0].String(),
		Name:            fields[1].String(),
		Type:            fields[2].String(),
		CreatorUsername: fields[3].String(),
		FrozenAt:        fields[4].Float(),
	}, true, nil
}
