// Package storage opens dtool datasets by URI, dispatching on the scheme to
// the disk or S3 back-end.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuya-takeyama/dtool-info/internal/config"
	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/s3client"
	"github.com/yuya-takeyama/dtool-info/pkg/storage/disk"
	s3storage "github.com/yuya-takeyama/dtool-info/pkg/storage/s3"
)

var ErrUnsupportedScheme = errors.New("storage: unsupported URI scheme")

// DatasetInfo summarises a dataset found under a base URI.
type DatasetInfo = dataset.Info

const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// Resolver opens URIs using one configuration. The S3 client is created on
// first use.
type Resolver struct {
	cfg      config.Config
	s3Client s3client.Client
	newS3    func(ctx context.Context) (s3client.Client, error)
}

type Option func(*Resolver)

// WithS3Client makes the resolver use client instead of one built from the
// AWS configuration.
func WithS3Client(client s3client.Client) Option {
	return func(r *Resolver) { r.s3Client = client }
}

func NewResolver(cfg config.Config, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg}
	r.newS3 = func(ctx context.Context) (s3client.Client, error) {
		log.WithField("region", cfg.S3Region).Debugf("creating S3 client (profile %q)", cfg.S3Profile)
		awsCfg, err := s3client.LoadConfig(ctx, s3client.Options{
			Profile: cfg.S3Profile,
			Region:  cfg.S3Region,
		})
		if err != nil {
			return nil, err
		}
		return s3client.NewAWSClient(awsCfg, cfg.S3Endpoint), nil
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scheme returns the scheme of uri; bare paths are file URIs.
func Scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return SchemeFile
	}
	return strings.ToLower(u.Scheme)
}

func (r *Resolver) s3(ctx context.Context) (s3client.Client, error) {
	if r.s3Client == nil {
		client, err := r.newS3(ctx)
		if err != nil {
			return nil, err
		}
		r.s3Client = client
	}
	return r.s3Client, nil
}

// Broker returns the back-end broker for a dataset URI.
func (r *Resolver) Broker(ctx context.Context, uri string) (dataset.Broker, error) {
	switch Scheme(uri) {
	case SchemeFile:
		b, err := disk.NewBroker(uri, r.cfg.Ignore)
		if err != nil {
			return nil, err
		}
		return b, nil
	case SchemeS3:
		client, err := r.s3(ctx)
		if err != nil {
			return nil, err
		}
		b, err := s3storage.NewBroker(client, uri, r.cfg.CacheDirectory)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
	}
}

// Open opens the frozen dataset at uri.
func (r *Resolver) Open(ctx context.Context, uri string) (*dataset.DataSet, error) {
	broker, err := r.Broker(ctx, uri)
	if err != nil {
		return nil, err
	}
	return dataset.New(ctx, broker)
}

// IsDataset reports whether uri holds a dataset or proto dataset.
func (r *Resolver) IsDataset(ctx context.Context, uri string) (bool, error) {
	switch Scheme(uri) {
	case SchemeFile:
		return disk.IsDataset(uri)
	case SchemeS3:
		client, err := r.s3(ctx)
		if err != nil {
			return false, err
		}
		return s3storage.IsDataset(ctx, client, uri)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
	}
}

// ListDatasetURIs lists the datasets, proto datasets included, directly below
// base, sorted by name.
func (r *Resolver) ListDatasetURIs(ctx context.Context, base string) ([]DatasetInfo, error) {
	switch Scheme(base) {
	case SchemeFile:
		return disk.ListDatasets(base)
	case SchemeS3:
		client, err := r.s3(ctx)
		if err != nil {
			return nil, err
		}
		return s3storage.ListDatasets(ctx, client, base)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, base)
	}
}
