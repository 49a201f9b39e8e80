package storage

import (
	"context"
)

// Provider represents the storage provider type
type Provider string

const (
	ProviderGCS   Provider = "gcs"
	ProviderLocal Provider = "local"
)

// ObjectRef is a target resolved by a BlobStore, carrying everything the
// store needs to address the object.
type ObjectRef struct {
	Bucket string
	Name   string
	// UserProject is billed for requests against requester-pays buckets.
	UserProject string
}

func (r ObjectRef) String() string {
	if r.Bucket == "" {
		return r.Name
	}
	return SchemeGCS + "://" + r.Bucket + "/" + r.Name
}

// BlobStore commits a local file as a single object.
type BlobStore interface {
	Provider() Provider

	// Resolve turns a target into an object reference. userProject is
	// carried unchanged.
	Resolve(target Target, userProject string) (ObjectRef, error)

	// Upload stores the file at localPath under ref. The object becomes
	// visible only once the whole file has been transferred.
	Upload(ctx context.Context, localPath string, ref ObjectRef, opts UploadOptions) error
}

// Fetcher copies a whole object to a local path. On error the local path
// must be treated as unusable.
type Fetcher interface {
	Fetch(ctx context.Context, target Target, localPath string) error
}
