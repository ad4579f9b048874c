package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/devhub-api/internal/config"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        body,
	})
	f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*S3Store, *fakeS3, string) {
	t.Helper()
	fake := &fakeS3{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewS3Store(context.Background(), config.StorageConfig{
		Endpoint:  server.URL,
		Region:    "us-east-1",
		Bucket:    "avatars",
		AccessKey: "minio",
		SecretKey: "minio-secret",
	})
	require.NoError(t, err)
	return store, fake, server.URL
}

func TestPutAndDelete(t *testing.T) {
	store, fake, endpoint := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, "avatars/42/photo.jpg", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "avatars/42/photo.jpg", ref.StorageID)
	assert.Equal(t, endpoint+"/avatars/avatars/42/photo.jpg", ref.URL)

	require.NoError(t, store.Delete(ctx, ref.StorageID))

	require.Len(t, fake.requests, 2)
	assert.Equal(t, http.MethodPut, fake.requests[0].method)
	assert.Equal(t, "/avatars/avatars/42/photo.jpg", fake.requests[0].path)
	assert.Equal(t, "image/jpeg", fake.requests[0].contentType)
	assert.Contains(t, string(fake.requests[0].body), "jpeg-bytes")
	assert.Equal(t, http.MethodDelete, fake.requests[1].method)
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(config.StorageConfig{PublicBaseURL: "https://cdn.example.com/"}))
	assert.Equal(t, "http://minio:9000/b", publicBaseURL(config.StorageConfig{Endpoint: "http://minio:9000", Bucket: "b"}))
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", publicBaseURL(config.StorageConfig{Bucket: "b", Region: "eu-west-1"}))
}
