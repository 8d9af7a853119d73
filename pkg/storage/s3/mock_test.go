package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
	"github.com/yuya-takeyama/dtool-info/pkg/s3client"
)

type object struct {
	data     []byte
	metadata map[string]string
}

// memClient is an in-memory bucket implementing s3client.Client.
type memClient struct {
	mu            sync.Mutex
	objects       map[string]map[string]object
	downloadCalls int
	getCalls      int

	headFunc func(ctx context.Context, bucket, key string) (*s3client.ObjectInfo, error)
}

func newMemClient() *memClient {
	return &memClient{objects: map[string]map[string]object{}}
}

func (c *memClient) put(bucket, key string, data []byte, metadata map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[bucket] == nil {
		c.objects[bucket] = map[string]object{}
	}
	c.objects[bucket][key] = object{data: data, metadata: metadata}
}

func (c *memClient) remove(bucket, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects[bucket], key)
}

func (c *memClient) lookup(bucket, key string) (object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[bucket][key]
	if !ok {
		return object{}, s3client.ErrNotFound
	}
	return obj, nil
}

func (c *memClient) ListObjects(ctx context.Context, bucket, prefix string) ([]s3client.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []s3client.ObjectInfo
	for key, obj := range c.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, s3client.ObjectInfo{Key: key, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *memClient) ListPrefixes(ctx context.Context, bucket, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := map[string]bool{}
	for key := range c.objects[bucket] {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			seen[prefix+rest[:i+1]] = true
		}
	}
	var out []string
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (c *memClient) HeadObject(ctx context.Context, bucket, key string) (*s3client.ObjectInfo, error) {
	if c.headFunc != nil {
		return c.headFunc(ctx, bucket, key)
	}
	obj, err := c.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	return &s3client.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: time.Unix(1600000000, 0),
		Metadata:     obj.metadata,
	}, nil
}

func (c *memClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.getCalls++
	c.mu.Unlock()
	obj, err := c.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (c *memClient) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	c.mu.Lock()
	c.downloadCalls++
	c.mu.Unlock()
	obj, err := c.lookup(bucket, key)
	if err != nil {
		return 0, err
	}
	n, err := w.WriteAt(obj.data, 0)
	return int64(n), err
}

// putDataset uploads a frozen dataset in the dtool S3 layout and returns its URI.
func putDataset(t *testing.T, c *memClient, bucket, uuid, name string, items map[string]string) string {
	t.Helper()

	admin := dataset.AdminMetadata{
		UUID:            uuid,
		Name:            name,
		Type:            dataset.TypeDataset,
		CreatorUsername: "olssont",
		FrozenAt:        1536238185.5,
	}
	manifest := dataset.Manifest{
		DtoolcoreVersion: "3.7.0",
		HashFunction:     hashing.MD5,
		Items:            map[dataset.Identifier]dataset.ItemProperties{},
	}
	for relpath, content := range items {
		id := dataset.GenerateIdentifier(relpath)
		hash, err := hashing.Calculate(hashing.MD5, strings.NewReader(content))
		if err != nil {
			t.Fatal(err)
		}
		manifest.Items[id] = dataset.ItemProperties{
			Relpath:      relpath,
			SizeInBytes:  int64(len(content)),
			Hash:         hash,
			UTCTimestamp: 1536238100,
		}
		c.put(bucket, uuid+"/data/"+string(id), []byte(content), map[string]string{
			"handle":        relpath,
			"utc_timestamp": "1536238100",
		})
	}

	c.put(bucket, uuid+"/dtool", mustJSON(t, admin), nil)
	c.put(bucket, uuid+"/manifest.json", mustJSON(t, manifest), nil)
	c.put(bucket, uuid+"/README.yml", []byte("---\ndescription: "+name+"\n"), nil)
	return "s3://" + bucket + "/" + uuid
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
