// Package gcs stores and fetches single objects in Google Cloud Storage
// using parallel chunked transfers.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/storage"
)

const (
	// maxComposeSources is the GCS limit of source objects per compose call.
	maxComposeSources = 32

	// tempInfix separates the destination name from a session's temporary
	// objects.
	tempInfix = ".fastcopy-"

	defaultFetchChunkSize int64 = 32 * 1024 * 1024
)

// Provider implements storage.BlobStore and storage.Fetcher for gs://
// targets. The underlying client is created on first use, so constructing
// a Provider never needs credentials.
type Provider struct {
	logger         logging.Interface
	clientOpts     []option.ClientOption
	fetchWorkers   int
	fetchChunkSize int64

	mu     sync.Mutex
	api    objectAPI
	newAPI func(ctx context.Context) (objectAPI, error)
}

var (
	_ storage.BlobStore = (*Provider)(nil)
	_ storage.Fetcher   = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithCredentialsFile(path))
	}
}

// WithEndpoint overrides the API endpoint, e.g. for an emulator.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithEndpoint(endpoint))
	}
}

// WithAccessToken authenticates every request with a fixed OAuth2 token.
func WithAccessToken(token string) Option {
	return func(p *Provider) {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		p.clientOpts = append(p.clientOpts, option.WithTokenSource(ts))
	}
}

// WithoutAuthentication sends unauthenticated requests.
func WithoutAuthentication() Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithoutAuthentication())
	}
}

// WithFetchWorkers bounds the ranged reads issued by Fetch.
func WithFetchWorkers(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.fetchWorkers = n
		}
	}
}

// WithFetchChunkSize sets the size of each ranged read issued by Fetch.
func WithFetchChunkSize(bytes int64) Option {
	return func(p *Provider) {
		if bytes > 0 {
			p.fetchChunkSize = bytes
		}
	}
}

func withAPI(api objectAPI) Option {
	return func(p *Provider) {
		p.newAPI = func(context.Context) (objectAPI, error) { return api, nil }
	}
}

// New returns a Provider. No network calls are made until the first
// transfer.
func New(logger logging.Interface, opts ...Option) *Provider {
	p := &Provider{
		logger:         logging.OrDiscard(logger).WithField("provider", storage.ProviderGCS),
		fetchWorkers:   1,
		fetchChunkSize: defaultFetchChunkSize,
	}
	p.newAPI = func(ctx context.Context) (objectAPI, error) {
		client, err := gcs.NewClient(ctx, p.clientOpts...)
		if err != nil {
			return nil, err
		}
		return &clientAPI{client: client}, nil
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provider returns the storage provider type
func (p *Provider) Provider() storage.Provider {
	return storage.ProviderGCS
}

// Resolve maps a gs:// target to its object reference.
func (p *Provider) Resolve(target storage.Target, userProject string) (storage.ObjectRef, error) {
	if target.Scheme != storage.SchemeGCS || target.Bucket == "" || target.Key == "" {
		return storage.ObjectRef{}, storage.NewError("resolve", target.String(), storage.ProviderGCS,
			fmt.Errorf("%w: not a gs:// object", storage.ErrInvalidPath))
	}
	return storage.ObjectRef{
		Bucket:      target.Bucket,
		Name:        target.Key,
		UserProject: userProject,
	}, nil
}

// Close releases the client if one was created.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.api == nil {
		return nil
	}
	err := p.api.Close()
	p.api = nil
	return err
}

func (p *Provider) client(ctx context.Context) (objectAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.api != nil {
		return p.api, nil
	}
	api, err := p.newAPI(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	p.api = api
	return api, nil
}

// classify attaches storage sentinels to well-known GCS failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
		}
	}
	return err
}

func refID(ref storage.ObjectRef) objectID {
	return objectID{bucket: ref.Bucket, name: ref.Name, userProject: ref.UserProject}
}
