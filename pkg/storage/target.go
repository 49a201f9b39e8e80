package storage

import (
	"fmt"
	"strings"
)

const (
	// SchemeGCS prefixes Google Cloud Storage targets.
	SchemeGCS = "gs"

	// CompressedSuffix selects gzip compression for a target.
	CompressedSuffix = ".gz"
)

// Target identifies where a transfer reads from or writes to. A remote
// target has a scheme, bucket and key; a local target only has a Key
// holding the filesystem path.
type Target struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseTarget parses gs://bucket/key URIs. Anything without a scheme is a
// local path.
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrInvalidPath)
	}

	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Target{Key: s}, nil
	}

	if scheme != SchemeGCS {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidPath, scheme, s)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Target{}, fmt.Errorf("%w: missing bucket in %s", ErrInvalidPath, s)
	}
	if key == "" {
		return Target{}, fmt.Errorf("%w: missing object name in %s", ErrInvalidPath, s)
	}

	return Target{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// MustParseTarget is ParseTarget for constants; it panics on error.
func MustParseTarget(s string) Target {
	t, err := ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the form accepted by ParseTarget.
func (t Target) String() string {
	if t.IsLocal() {
		return t.Key
	}
	return t.Scheme + "://" + t.Bucket + "/" + t.Key
}

// IsLocal reports whether the target is a filesystem path.
func (t Target) IsLocal() bool {
	return t.Scheme == ""
}

// Compressed reports whether the target name selects gzip compression.
func (t Target) Compressed() bool {
	return strings.HasSuffix(t.Key, CompressedSuffix)
}

// Provider returns the provider that serves this target.
func (t Target) Provider() Provider {
	if t.IsLocal() {
		return ProviderLocal
	}
	return ProviderGCS
}
