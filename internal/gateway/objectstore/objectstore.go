package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
)

// Store syncs from S3-compatible buckets. Containers and entry IDs are
// s3://bucket/key URLs.
type Store struct {
	client *minio.Client
}

func New(endpoint, accessKey, secretKey string, secure bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

func (s *Store) List(ctx context.Context, container string) ([]gateway.Entry, error) {
	bucket, prefix, err := ParseURL(container)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var entries []gateway.Entry
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", container, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, entryFromObject(bucket, obj))
	}
	return entries, nil
}

func entryFromObject(bucket string, obj minio.ObjectInfo) gateway.Entry {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(obj.Key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return gateway.Entry{
		ID:           "s3://" + bucket + "/" + obj.Key,
		Name:         path.Base(obj.Key),
		MIMEType:     contentType,
		ModifiedTime: obj.LastModified.UTC().Format(time.RFC3339),
		Fingerprint:  strings.Trim(obj.ETag, `"`),
		Size:         obj.Size,
	}
}

// Fetch ignores exportMIME; buckets hold no native document types.
func (s *Store) Fetch(ctx context.Context, entry gateway.Entry, exportMIME string) (io.ReadCloser, error) {
	bucket, key, err := ParseURL(entry.ID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("object url %q has no key", entry.ID)
	}
	return s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

// ParseURL splits s3://bucket/some/key into bucket and key.
func ParseURL(raw string) (bucket, key string, err error) {
	trimmed := strings.TrimSpace(raw)
	if !gateway.IsObjectContainer(trimmed) {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	rest := trimmed[len("s3://"):]
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 url %q has no bucket", raw)
	}
	return bucket, strings.TrimPrefix(key, "/"), nil
}
