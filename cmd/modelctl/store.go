package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/wippyai/model-runtime/snapshot"
	"github.com/wippyai/model-runtime/snapshot/minio"
	"github.com/wippyai/model-runtime/snapshot/s3"
)

// storeSpec is a parsed store URI:
//
//	/path/to/dir
//	s3://bucket/prefix
//	minio://endpoint/bucket/prefix   (MINIO_ACCESS_KEY, MINIO_SECRET_KEY, MINIO_SECURE)
type storeSpec struct {
	scheme   string
	endpoint string
	bucket   string
	prefix   string
	dir      string
}

func parseStoreURI(uri string) (storeSpec, error) {
	if uri == "" {
		return storeSpec{}, fmt.Errorf("empty store URI")
	}
	if !strings.Contains(uri, "://") {
		return storeSpec{scheme: "file", dir: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return storeSpec{}, err
	}
	path := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		return storeSpec{scheme: "file", dir: u.Path}, nil
	case "s3":
		if u.Host == "" {
			return storeSpec{}, fmt.Errorf("%s: missing bucket", uri)
		}
		return storeSpec{scheme: "s3", bucket: u.Host, prefix: path}, nil
	case "minio":
		bucket, prefix, _ := strings.Cut(path, "/")
		if u.Host == "" || bucket == "" {
			return storeSpec{}, fmt.Errorf("%s: want minio://endpoint/bucket[/prefix]", uri)
		}
		return storeSpec{scheme: "minio", endpoint: u.Host, bucket: bucket, prefix: prefix}, nil
	default:
		return storeSpec{}, fmt.Errorf("%s: unsupported scheme %q", uri, u.Scheme)
	}
}

// openStore opens the store named by uri, zstd-wrapped when compress is set.
// The returned func releases codec resources.
func openStore(ctx context.Context, uri string, compress bool) (snapshot.Store, func(), error) {
	spec, err := parseStoreURI(uri)
	if err != nil {
		return nil, nil, err
	}

	var store snapshot.Store
	switch spec.scheme {
	case "file":
		store = snapshot.NewLocal(spec.dir)
	case "s3":
		s, err := s3.New(ctx, spec.bucket, spec.prefix)
		if err != nil {
			return nil, nil, err
		}
		store = s
	case "minio":
		s, err := minio.Dial(minio.Options{
			Endpoint:  spec.endpoint,
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Secure:    os.Getenv("MINIO_SECURE") == "true",
		}, spec.bucket, spec.prefix)
		if err != nil {
			return nil, nil, err
		}
		store = s
	}

	if !compress {
		return store, func() {}, nil
	}
	c, err := snapshot.NewCompressed(store)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}
