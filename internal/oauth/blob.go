package oauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/solarcloud/internal/config"
)

// ErrBlobNotFound is returned by Load when nothing has been mirrored for a provider.
var ErrBlobNotFound = errors.New("oauth blob not found")

// BlobStore mirrors provider state so a fresh host can resume without a new grant.
type BlobStore interface {
	Load(ctx context.Context, provider string) ([]byte, error)
	Save(ctx context.Context, provider string, data []byte) error
}

// NewBlobStore returns an S3 store when the config names an endpoint, and a
// store that keeps nothing otherwise.
func NewBlobStore(cfg *config.OAuthConfig) (BlobStore, error) {
	if !cfg.BlobConfigured() {
		return NopStore{}, nil
	}
	return NewS3Store(cfg)
}

// NopStore is used when no remote mirror is configured.
type NopStore struct{}

func (NopStore) Load(context.Context, string) ([]byte, error) { return nil, ErrBlobNotFound }

func (NopStore) Save(context.Context, string, []byte) error { return nil }

// S3Store keeps one JSON object per provider at <bucket>/<prefix>/<provider>.json
// on any S3-compatible endpoint.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg *config.OAuthConfig) (*S3Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing oauth config")
	}
	required := []struct{ name, value string }{
		{"blob_endpoint", cfg.BlobEndpoint},
		{"blob_bucket", cfg.BlobBucket},
		{"blob_access_key_file", cfg.BlobAccessKeyFile},
		{"blob_secret_key_file", cfg.BlobSecretKeyFile},
	}
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("oauth blob mirror needs %s", strings.Join(missing, ", "))
	}

	host, secure, err := splitEndpoint(cfg.BlobEndpoint)
	if err != nil {
		return nil, err
	}
	accessKey, err := config.ReadSecret(cfg.BlobAccessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := config.ReadSecret(cfg.BlobSecretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.BlobRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.BlobPrefix), "/")
	if prefix == "" {
		prefix = config.DefaultOAuthPrefix
	}
	return &S3Store{client: client, bucket: strings.TrimSpace(cfg.BlobBucket), prefix: prefix}, nil
}

func (s *S3Store) Load(ctx context.Context, provider string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(provider), minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, provider string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(provider), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"provider": provider},
	})
	if err != nil {
		return fmt.Errorf("save %s state: %w", provider, err)
	}
	return nil
}

func (s *S3Store) key(provider string) string {
	return path.Join(s.prefix, provider+".json")
}

// notFound maps a missing object or bucket to ErrBlobNotFound.
func notFound(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

// splitEndpoint turns "https://s3.example.com" or a bare host into the host minio
// dials and whether TLS is used. Bare hosts use TLS.
func splitEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse blob endpoint: %w", err)
	}
	if u.Host == "" || (u.Path != "" && u.Path != "/") {
		return "", false, fmt.Errorf("invalid blob endpoint %q", raw)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported blob endpoint scheme %q", u.Scheme)
	}
}
