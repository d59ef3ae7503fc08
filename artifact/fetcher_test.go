package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/patloader/types"
)

type mapStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	keys    []string
}

func (s *mapStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
	}
	return data, nil
}

type fetchRecord struct {
	success bool
	bytes   int64
}

type fetchSink struct {
	NopSink
	mu      sync.Mutex
	fetches []fetchRecord
}

func (s *fetchSink) RecordFetch(_ Size, success bool, _ time.Duration, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, fetchRecord{success, bytes})
}

func TestFetcher_RemoteKey(t *testing.T) {
	f := NewFetcher(nil, "", ".bin", nil, nil)
	assert.Equal(t, "models/pat/small/vlatest.bin", f.RemoteKey(SizeSmall, ""))
	assert.Equal(t, "models/pat/large/v3.bin", f.RemoteKey(SizeLarge, "3"))

	custom := NewFetcher(nil, "actigraphy", "safetensors", nil, nil)
	assert.Equal(t, "models/actigraphy/medium/v12.safetensors", custom.RemoteKey(SizeMedium, "12"))
}

func TestFetcher_WritesAtomically(t *testing.T) {
	store := &mapStore{objects: map[string][]byte{"models/pat/small/v2.bin": []byte("payload")}}
	sink := &fetchSink{}
	f := NewFetcher(store, "pat", "bin", sink, nil)

	dest := filepath.Join(t.TempDir(), "nested", "dir", "artifact_small_v2.bin")
	n, err := f.Fetch(context.Background(), SizeSmall, "2", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.Len(t, sink.fetches, 1)
	assert.Equal(t, fetchRecord{success: true, bytes: 7}, sink.fetches[0])
}

func TestFetcher_Failures(t *testing.T) {
	tests := []struct {
		name     string
		store    ObjectStore
		wantCode types.ErrorCode
		wantIs   error
	}{
		{
			name:     "no store",
			store:    nil,
			wantCode: types.ErrConfiguration,
			wantIs:   ErrNoRemoteStore,
		},
		{
			name:     "missing object",
			store:    &mapStore{},
			wantCode: types.ErrArtifactNotFound,
			wantIs:   ErrObjectNotFound,
		},
		{
			name:     "transport error",
			store:    &mapStore{err: errors.New("connection reset by peer")},
			wantCode: types.ErrTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fetchSink{}
			f := NewFetcher(tt.store, "", "bin", sink, nil)
			dest := filepath.Join(t.TempDir(), "artifact_small_v1.bin")

			_, err := f.Fetch(context.Background(), SizeSmall, "1", dest)
			require.Error(t, err)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.wantCode, le.Code)
			assert.Equal(t, StageDownload, le.Stage)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}

			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr))

			if tt.store != nil {
				require.Len(t, sink.fetches, 1)
				assert.False(t, sink.fetches[0].success)
			}
		})
	}
}

func TestFetcher_Canceled(t *testing.T) {
	store := &mapStore{objects: map[string][]byte{"models/pat/small/v1.bin": []byte("x")}}
	f := NewFetcher(store, "", "bin", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, SizeSmall, "1", filepath.Join(t.TempDir(), "a.bin"))
	assert.Equal(t, types.ErrCanceled, types.GetErrorCode(err))
	assert.ErrorIs(t, err, context.Canceled)
}
