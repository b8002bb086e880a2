package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/location"
)

// S3Store is the object-store backend for `store: s3` configurations
// (spec §4.3's "Object (FAM/RADOS/S3 style ... )" variant). It writes
// one object per field (Unpacked) and records only the object URI; the
// offset/length fields of the returned FieldLocation span the whole
// object.
type S3Store struct {
	client *s3.S3
	bucket string
	prefix string

	mu      sync.Mutex
	pending []s3PendingWrite
}

type s3PendingWrite struct {
	key     string
	payload []byte
}

// NewS3Store builds an S3Store over bucket/prefix using sess.
func NewS3Store(sess *session.Session, bucket, prefix string) *S3Store {
	return &S3Store{client: s3.New(sess), bucket: bucket, prefix: prefix}
}

// Archive buffers payload under a fresh UUID object key; the actual PUT
// happens in Flush, preserving the "data durable before index" ordering
// without forcing one round trip per field.
func (s *S3Store) Archive(ctx context.Context, indexKey string, payload []byte) (location.FieldLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objKey := fmt.Sprintf("%s/%s/%s", s.prefix, indexKey, uuid.NewString())
	s.pending = append(s.pending, s3PendingWrite{key: objKey, payload: payload})
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, objKey)
	return location.New(uri, 0, int64(len(payload))), nil
}

// Flush performs one PutObject call per buffered write.
func (s *S3Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, pw := range batch {
		_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(pw.key),
			Body:   bytes.NewReader(pw.payload),
		})
		if err != nil {
			return ferr.Wrap(ferr.StoreIOError, "put object", err).With("key", pw.key)
		}
	}
	return nil
}

// Retrieve issues a ranged GetObject over [offset, offset+length).
func (s *S3Store) Retrieve(ctx context.Context, loc location.FieldLocation) (ReadStream, error) {
	bucket, key, err := parseS3URI(loc.URI)
	if err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("bytes=%d-%d", loc.Offset, loc.Offset+loc.Length-1)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "get object", err).With("key", key)
	}
	return &s3ReadStream{body: out.Body}, nil
}

// Remove deletes the object identified by uri.
func (s *S3Store) Remove(ctx context.Context, uri string, doit bool) (int64, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return 0, err
	}
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, ferr.Wrap(ferr.StoreIOError, "head object", err).With("key", key)
	}
	size := aws.Int64Value(head.ContentLength)
	if !doit {
		return size, nil
	}
	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return 0, ferr.Wrap(ferr.StoreIOError, "delete object", err).With("key", key)
	}
	return size, nil
}

// StoreUnitURIs enumerates every object under the store's prefix.
func (s *S3Store) StoreUnitURIs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			out = append(out, fmt.Sprintf("s3://%s/%s", s.bucket, aws.StringValue(obj.Key)))
		}
		return true
	})
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "list objects", err).With("bucket", s.bucket)
	}
	return out, nil
}

// Close is a no-op; the underlying SDK client holds no unmanaged
// resources requiring release.
func (s *S3Store) Close() error { return nil }

func parseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", "", ferr.New(ferr.StoreIOError, "not an s3:// uri").With("uri", uri)
	}
	rest := uri[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", ferr.New(ferr.StoreIOError, "malformed s3 uri: no key").With("uri", uri)
}

type s3ReadStream struct {
	body io.ReadCloser
}

func (r *s3ReadStream) Read(p []byte) (int, error) { return r.body.Read(p) }
func (r *s3ReadStream) Close() error                { return r.body.Close() }
