package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/refaxia/storefront-api/internal/platform/config"
)

const (
	defaultUploadTimeout = 30 * time.Second
	defaultMaxUploadSize = int64(10 << 20)
)

var (
	ErrInvalidBucket     = errors.New("storage: bucket name is required")
	ErrInvalidObject     = errors.New("storage: object name is required")
	ErrContentTypeDenied = errors.New("storage: content type not allowed")
	ErrObjectTooLarge    = errors.New("storage: object exceeds maximum size")
)

// Uploader streams documents into a Cloud Storage bucket.
type Uploader struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration

	allowedContentTypes []string
	maxSize             int64
}

// UploaderOption customises Uploader behaviour.
type UploaderOption func(*Uploader)

// WithUploadTimeout bounds each upload call.
func WithUploadTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithAllowedContentTypes restricts accepted content types. Entries support a
// trailing "/*" wildcard.
func WithAllowedContentTypes(types ...string) UploaderOption {
	return func(u *Uploader) {
		u.allowedContentTypes = append([]string(nil), types...)
	}
}

// WithMaxSize caps the accepted object size in bytes.
func WithMaxSize(size int64) UploaderOption {
	return func(u *Uploader) {
		if size > 0 {
			u.maxSize = size
		}
	}
}

// NewUploader constructs an Uploader bound to the configured bucket.
func NewUploader(ctx context.Context, cfg config.StorageConfig, opts ...UploaderOption) (*Uploader, error) {
	bucket := strings.TrimSpace(cfg.TaxDocumentsBucket)
	if bucket == "" {
		return nil, ErrInvalidBucket
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}

	uploader := &Uploader{
		client:  client,
		bucket:  bucket,
		timeout: defaultUploadTimeout,
		maxSize: defaultMaxUploadSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uploader)
		}
	}
	return uploader, nil
}

// UploadResult describes the stored object.
type UploadResult struct {
	Bucket string
	Path   string
	Size   int64
}

// Upload streams body into the bucket under the given object path. The write
// is aborted on any error so no partial object remains visible.
func (u *Uploader) Upload(ctx context.Context, object, contentType string, body io.Reader) (UploadResult, error) {
	if u == nil || u.client == nil {
		return UploadResult{}, errors.New("storage: uploader not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return UploadResult{}, ErrInvalidObject
	}
	if len(u.allowedContentTypes) > 0 && !contentTypeAllowed(contentType, u.allowedContentTypes) {
		return UploadResult{}, ErrContentTypeDenied
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	writer := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = strings.TrimSpace(contentType)

	limit := u.maxSize
	if limit <= 0 {
		limit = defaultMaxUploadSize
	}

	written, err := io.Copy(writer, io.LimitReader(body, limit+1))
	if err != nil {
		_ = writer.Close()
		return UploadResult{}, fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if written > limit {
		_ = writer.Close()
		return UploadResult{}, ErrObjectTooLarge
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("storage: finalise object %s: %w", object, err)
	}

	return UploadResult{Bucket: u.bucket, Path: object, Size: written}, nil
}

// Close releases the underlying storage client.
func (u *Uploader) Close() error {
	if u == nil || u.client == nil {
		return nil
	}
	return u.client.Close()
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if normalized == "" {
		return false
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}
