// Package s3 reads dtool datasets stored in an S3 bucket. A dataset lives
// under <bucket>/<uuid>/ with its items stored by identifier below data/ and
// the relpath kept in the object's "handle" metadata.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/internal/worker"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
	"github.com/yuya-takeyama/dtool-info/pkg/s3client"
)

const (
	adminKey         = "dtool"
	manifestKey      = "manifest.json"
	readmeKey        = "README.yml"
	dataPrefix       = "data/"
	overlaysPrefix   = "overlays/"
	overlayExt       = ".json"
	dtoolcoreVersion = "3.7.0"

	metaHandle    = "handle"
	metaTimestamp = "utc_timestamp"
)

// Broker serves one dataset in a bucket.
type Broker struct {
	client   s3client.Client
	bucket   string
	uuid     string
	cacheDir string
}

var _ dataset.Broker = (*Broker)(nil)

// NewBroker returns a broker for s3://bucket/uuid. Fetched items are cached
// below cacheDir/uuid.
func NewBroker(client s3client.Client, uri, cacheDir string) (*Broker, error) {
	bucket, prefix, err := s3client.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	uuid := strings.TrimSuffix(prefix, "/")
	if uuid == "" || strings.Contains(uuid, "/") {
		return nil, fmt.Errorf("%w: %s does not name a dataset UUID", dataset.ErrNotADataset, uri)
	}
	return &Broker{
		client:   client,
		bucket:   bucket,
		uuid:     uuid,
		cacheDir: cacheDir,
	}, nil
}

func (b *Broker) URI() string { return "s3://" + b.bucket + "/" + b.uuid }

func (b *Broker) key(rel string) string { return b.uuid + "/" + rel }

func (b *Broker) get(ctx context.Context, rel string) ([]byte, error) {
	body, err := b.client.GetObject(ctx, b.bucket, b.key(rel))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (b *Broker) AdminMetadata(ctx context.Context) (dataset.AdminMetadata, error) {
	var admin dataset.AdminMetadata
	data, err := b.get(ctx, adminKey)
	if errors.Is(err, s3client.ErrNotFound) {
		return admin, fmt.Errorf("%w: %s", dataset.ErrNotADataset, b.URI())
	}
	if err != nil {
		return admin, fmt.Errorf("read admin metadata: %w", err)
	}
	if err := json.Unmarshal(data, &admin); err != nil {
		return admin, fmt.Errorf("%w: %s: %v", dataset.ErrNotADataset, b.URI(), err)
	}
	return admin, nil
}

func (b *Broker) Manifest(ctx context.Context) (*dataset.Manifest, error) {
	data, err := b.get(ctx, manifestKey)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest dataset.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

// GenerateManifest lists the data objects and reads each one's handle
// metadata. Hashes are computed by streaming the objects when opts.Hash is
// set.
func (b *Broker) GenerateManifest(ctx context.Context, hashFunction string, opts dataset.GenerateOptions) (*dataset.Manifest, error) {
	if opts.Hash && !hashing.IsSupported(hashFunction) {
		return nil, fmt.Errorf("%w: %s", hashing.ErrUnknownAlgorithm, hashFunction)
	}

	prefix := b.key(dataPrefix)
	objects, err := b.client.ListObjects(ctx, b.bucket, prefix)
	if err != nil {
		return nil, err
	}
	log.Debugf("rescanned %d objects in %s", len(objects), b.URI())

	progress := opts.ProgressOrNull()
	progress.PhaseStart(dataset.PhaseRescan, len(objects))
	var processed atomic.Int64
	defer func() { progress.PhaseComplete(dataset.PhaseRescan, int(processed.Load())) }()

	props := make([]dataset.ItemProperties, len(objects))
	err = worker.ForEach(ctx, len(objects), opts.Concurrency, func(ctx context.Context, i int) error {
		obj := objects[i]
		head, err := b.client.HeadObject(ctx, b.bucket, obj.Key)
		if err != nil {
			return err
		}
		relpath, ok := head.Metadata[metaHandle]
		if !ok {
			return fmt.Errorf("object %s has no %s metadata", obj.Key, metaHandle)
		}

		p := dataset.ItemProperties{
			Relpath:      relpath,
			SizeInBytes:  head.Size,
			UTCTimestamp: timestamp(head),
		}
		if opts.Hash {
			hash, err := b.hashObject(ctx, obj.Key, hashFunction)
			if err != nil {
				return err
			}
			p.Hash = hash
		}
		props[i] = p
		processed.Add(1)
		progress.ItemProcessed(dataset.PhaseRescan, relpath, "scanned")
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

func timestamp(info *s3client.ObjectInfo) float64 {
	if v, ok := info.Metadata[metaTimestamp]; ok {
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return ts
		}
	}
	return float64(info.LastModified.UnixNano()) / 1e9
}

func (b *Broker) hashObject(ctx context.Context, key, hashFunction string) (string, error) {
	body, err := b.client.GetObject(ctx, b.bucket, key)
	if err != nil {
		return "", err
	}
	defer body.Close()
	hash, err := hashing.Calculate(hashFunction, body)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", key, err)
	}
	return hash, nil
}

func (b *Broker) ItemHash(ctx context.Context, props dataset.ItemProperties, id dataset.Identifier, hashFunction string) (string, error) {
	return b.hashObject(ctx, b.key(dataPrefix+string(id)), hashFunction)
}

// ItemContentAbspath downloads the item into the cache once and returns the
// cached path. The file keeps the relpath's extension.
func (b *Broker) ItemContentAbspath(ctx context.Context, props dataset.ItemProperties, id dataset.Identifier) (string, error) {
	dir := filepath.Join(b.cacheDir, b.uuid)
	dest := filepath.Join(dir, string(id)+path.Ext(props.Relpath))
	if _, err := os.Stat(dest); err == nil {
		log.Debugf("cache hit for %s", dest)
		return dest, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+string(id)+"-*")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := b.client.Download(ctx, b.bucket, b.key(dataPrefix+string(id)), tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move cache file: %w", err)
	}
	return dest, nil
}

func (b *Broker) ReadmeContent(ctx context.Context) (string, error) {
	data, err := b.get(ctx, readmeKey)
	if errors.Is(err, s3client.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read readme: %w", err)
	}
	return string(data), nil
}

func (b *Broker) OverlayNames(ctx context.Context) ([]string, error) {
	prefix := b.key(overlaysPrefix)
	objects, err := b.client.ListObjects(ctx, b.bucket, prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, obj := range objects {
		name := s3client.TrimKeyPrefix(obj.Key, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, overlayExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, overlayExt))
	}
	sort.Strings(names)
	return names, nil
}

func (b *Broker) Overlay(ctx context.Context, name string) (json.RawMessage, error) {
	data, err := b.get(ctx, overlaysPrefix+name+overlayExt)
	if errors.Is(err, s3client.ErrNotFound) {
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

// IsDataset reports whether s3://bucket/uuid holds dtool admin metadata.
func IsDataset(ctx context.Context, client s3client.Client, uri string) (bool, error) {
	bucket, prefix, err := s3client.ParseURI(uri)
	if err != nil {
		return false, err
	}
	if prefix == "" {
		return false, nil
	}
	_, err = client.HeadObject(ctx, bucket, prefix+adminKey)
	if errors.Is(err, s3client.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListDatasets returns the datasets at the top level of the bucket named by
// uri, sorted by name.
func ListDatasets(ctx context.Context, client s3client.Client, uri string) ([]dataset.Info, error) {
	bucket, _, err := s3client.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	prefixes, err := client.ListPrefixes(ctx, bucket, "")
	if err != nil {
		return nil, err
	}

	infos := make([]*dataset.Info, len(prefixes))
	err = worker.ForEach(ctx, len(prefixes), 0, func(ctx context.Context, i int) error {
		body, err := client.GetObject(ctx, bucket, prefixes[i]+adminKey)
		if errors.Is(err, s3client.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(data) {
			log.WithField("prefix", prefixes[i]).Warn("skipping malformed admin metadata")
			return nil
		}

		fields := gjson.GetManyBytes(data, "uuid", "name", "type", "creator_username", "frozen_at")
		infos[i] = &dataset.Info{
			URI:             "s3://" + bucket + "/" + strings.TrimSuffix(prefixes[i], "/"),
			UUID:            fields[0].String(),
			Name:            fields[1].String(),
			Type:            fields[2].String(),
			CreatorUsername: fields[3].String(),
			FrozenAt:        fields[4].Float(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var found []dataset.Info
	for _, info := range infos {
		if info != nil {
			found = append(found, *info)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Name < found[j].Name
	})
	return found, nil
}
