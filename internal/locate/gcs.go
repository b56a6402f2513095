package locate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pipecorr/pipecorr/internal/contract"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// remoteStageSubdir is the stage subdirectory that fetched objects land in.
const remoteStageSubdir = "remote_input_files"

// GCSClient lists and fetches artifacts stored in Google Cloud Storage.
type GCSClient struct {
	storageClient *storage.Client
}

var (
	_ contract.TreeLister = &GCSClient{} // Compile-time check
	_ contract.Fetcher    = &GCSClient{} // Compile-time check
)

// NewGCSClient creates a client. An empty credentials path uses application default credentials.
func NewGCSClient(ctx context.Context, credentialsFile string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSClient{storageClient: storageClient}, nil
}

// Close releases the underlying storage client.
func (c *GCSClient) Close() error {
	return c.storageClient.Close()
}

// ParseGCSURI splits gs://bucket/prefix into bucket and object prefix.
func ParseGCSURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, prefix, nil
}

// List implements the TreeLister interface. It returns every object under
// prefix whose name contains the volumetric suffix, as gs://bucket/key.
func (c *GCSClient) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, objPrefix, err := ParseGCSURI(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	it := c.storageClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: objPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, objPrefix, err)
		}
		if strings.Contains(attrs.Name, VolumetricSuffix) {
			keys = append(keys, "gs://"+bucket+"/"+attrs.Name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Fetch implements the Fetcher interface.
func (c *GCSClient) Fetch(ctx context.Context, key string, stageDir string) (string, error) {
	bucket, object, err := ParseGCSURI(key)
	if err != nil {
		return "", err
	}
	dest, err := StagePath(stageDir, key)
	if err != nil {
		return "", err
	}
	return dest, fetchTo(dest, func() (io.ReadCloser, error) {
		return c.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	})
}

// StagePath is the local path a remote key is materialized at. It depends only
// on the key, so workers fetching distinct keys never share a destination.
func StagePath(stageDir, key string) (string, error) {
	bucket, object, err := ParseGCSURI(key)
	if err != nil {
		return "", err
	}
	if object == "" {
		return "", fmt.Errorf("no object name in %q", key)
	}
	local := filepath.FromSlash(object)
	if !filepath.IsLocal(bucket) || !filepath.IsLocal(local) || filepath.Clean(local) != local {
		return "", fmt.Errorf("object %q cannot be staged under %s", key, stageDir)
	}
	return filepath.Join(stageDir, remoteStageSubdir, bucket, local), nil
}

// fetchTo copies the opened object to dest through a temp file and a rename.
// An existing dest is left untouched.
func fetchTo(dest string, open func() (io.ReadCloser, error)) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create stage directory: %w", err)
	}

	src, err := open()
	if err != nil {
		return fmt.Errorf("failed to open remote object for %s: %w", dest, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to download %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}
