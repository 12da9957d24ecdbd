package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound reports a missing object or bucket.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable reports retry exhaustion against the backing store.
	ErrUnavailable = errors.New("object storage unavailable")
)

// Internal bucket identifiers. Deployments configure logical bucket names
// through the environment; those names may contain characters some S3
// backends reject, so every operation normalizes to these.
const (
	BucketRasters = "rasters"
	BucketTiles   = "tiles"
)

// Buckets carries the logical bucket names from configuration.
type Buckets struct {
	Rasters string
	Tiles   string
}

// Normalize maps a logical bucket name to its internal identifier. Unknown
// names pass through with leading slashes stripped; an empty name defaults
// to the rasters bucket.
func (b Buckets) Normalize(name string) string {
	switch name {
	case "", b.Rasters, BucketRasters:
		return BucketRasters
	case b.Tiles, BucketTiles:
		return BucketTiles
	default:
		return strings.TrimLeft(name, "/")
	}
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore is the gateway to the content-addressed bucket namespace. It
// owns no business semantics: operations retry with bounded exponential
// backoff and either eventually succeed or fail with a clear error. Callers
// that can tolerate a missing artifact decide to continue; the store itself
// never swallows an exhausted retry.
type ObjectStore interface {
	// EnsureBuckets creates the rasters and tiles buckets if missing and
	// applies the public-read policy to the tiles bucket.
	EnsureBuckets(ctx context.Context) error
	// Upload stores a local file under key and returns the object reference
	// in "<bucket>/<key>" form.
	Upload(ctx context.Context, localPath, key, bucket, contentType string) (string, error)
	// Download fetches an object to localPath and returns localPath.
	// A missing object yields ErrNotFound without retrying.
	Download(ctx context.Context, key, localPath, bucket string) (string, error)
	List(ctx context.Context, prefix, bucket string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key, bucket string) error
}

// Ref builds the object reference stored in job and timeseries records.
func Ref(bucket, key string) string {
	return bucket + "/" + key
}

// SplitRef splits an object reference into bucket and key. References
// without a bucket prefix are treated as local paths and return ok=false.
func SplitRef(ref string) (bucket, key string, ok bool) {
	bucket, key, found := strings.Cut(ref, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
