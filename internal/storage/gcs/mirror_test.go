package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gcsapi "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/image-crawler/internal/storage/gcs"
)

func newTestMirror(t *testing.T, handler http.Handler, cfg gcs.Config) *gcs.Mirror {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gcsapi.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	mirror, err := gcs.New(client, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mirror.Close() })
	return mirror
}

func TestMirrorUpload(t *testing.T) {
	var gotName, gotBody string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/images/o")
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		fmt.Fprintln(w, `{"name": "`+gotName+`", "bucket": "images"}`)
	})

	mirror := newTestMirror(t, handler, gcs.Config{Bucket: "images", Prefix: "/crawls/"})
	uri, err := mirror.Upload(context.Background(), "wiki_cat.jpg", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "gs://images/crawls/wiki_cat.jpg", uri)
	assert.Equal(t, "crawls/wiki_cat.jpg", gotName)
	assert.Contains(t, gotBody, "jpeg-bytes")
	assert.Contains(t, gotBody, "image/jpeg")
}

func TestMirrorUploadServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	mirror := newTestMirror(t, handler, gcs.Config{Bucket: "images"})
	_, err := mirror.Upload(context.Background(), "a.png", "image/png", []byte("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client, err := gcsapi.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = gcs.New(client, gcs.Config{})
	require.Error(t, err)

	mirror, err := gcs.New(client, gcs.Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = mirror.Upload(context.Background(), " ", "", nil)
	require.Error(t, err)
}
