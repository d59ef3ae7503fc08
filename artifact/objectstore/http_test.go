package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/patloader/artifact"
)

func newTestServer(t *testing.T, objects map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data, ok := objects[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStore_Download(t *testing.T) {
	payload := []byte("patch-embed-weights")
	srv := newTestServer(t, map[string][]byte{"/models/pat/small/v1.bin": payload})

	var seen atomic.Int64
	store := NewHTTPStore(srv.URL+"/", WithProgress(func(delta int64) { seen.Add(delta) }))

	data, err := store.Download(context.Background(), "models/pat/small/v1.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), seen.Load())
}

func TestHTTPStore_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	store := NewHTTPStore(srv.URL, WithHTTPClient(srv.Client()))

	t.Run("not found", func(t *testing.T) {
		_, err := store.Download(context.Background(), "models/pat/small/v1.bin")
		assert.ErrorIs(t, err, artifact.ErrObjectNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := store.Download(context.Background(), "boom")
		require.Error(t, err)
		assert.NotErrorIs(t, err, artifact.ErrObjectNotFound)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.Download(ctx, "boom")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
