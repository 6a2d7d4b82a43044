package oauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/solarcloud/internal/config"
)

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		raw    string
		host   string
		secure bool
		ok     bool
	}{
		{"https://s3.example.com", "s3.example.com", true, true},
		{"http://minio:9000/", "minio:9000", false, true},
		{"s3.eu-central-1.amazonaws.com", "s3.eu-central-1.amazonaws.com", true, true},
		{"ftp://files.example.com", "", false, false},
		{"https://s3.example.com/bucket", "", false, false},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.raw)
		if !tc.ok {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.host, host, tc.raw)
		assert.Equal(t, tc.secure, secure, tc.raw)
	}
}

func TestNewBlobStoreWithoutEndpointKeepsNothing(t *testing.T) {
	store, err := NewBlobStore(&config.OAuthConfig{})
	require.NoError(t, err)
	require.IsType(t, NopStore{}, store)

	_, err = store.Load(context.Background(), "isolarcloud")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, store.Save(context.Background(), "isolarcloud", []byte("{}")))
}

func TestNewS3StoreNamesMissingFields(t *testing.T) {
	_, err := NewS3Store(&config.OAuthConfig{BlobEndpoint: "https://s3.example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob_bucket, blob_access_key_file, blob_secret_key_file")
}

func TestNewS3StoreKeyLayout(t *testing.T) {
	dir := t.TempDir()
	accessKey := filepath.Join(dir, "access")
	secretKey := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(accessKey, []byte("AKIA\n"), 0o600))
	require.NoError(t, os.WriteFile(secretKey, []byte("s3cr3t\n"), 0o600))

	store, err := NewS3Store(&config.OAuthConfig{
		BlobEndpoint:      "http://minio:9000",
		BlobBucket:        "state",
		BlobPrefix:        "/homelab/oauth/",
		BlobAccessKeyFile: accessKey,
		BlobSecretKeyFile: secretKey,
	})
	require.NoError(t, err)
	assert.Equal(t, "homelab/oauth/isolarcloud.json", store.key("isolarcloud"))

	store, err = NewS3Store(&config.OAuthConfig{
		BlobEndpoint:      "minio.local",
		BlobBucket:        "state",
		BlobAccessKeyFile: accessKey,
		BlobSecretKeyFile: secretKey,
	})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOAuthPrefix+"/isolarcloud.json", store.key("isolarcloud"))
}

func TestNotFoundMapsMissingObjects(t *testing.T) {
	assert.ErrorIs(t, notFound(minio.ErrorResponse{Code: "NoSuchKey"}), ErrBlobNotFound)
	assert.ErrorIs(t, notFound(minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}), ErrBlobNotFound)

	denied := minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"}
	assert.False(t, errors.Is(notFound(denied), ErrBlobNotFound))
}
