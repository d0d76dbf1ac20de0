package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	objects map[string][]byte
	closed  bool
}

func (m *memoryBackend) EnsureBucket(context.Context) error { return nil }

func (m *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	out := make([]ObjectInfo, 0)
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryBackend) Bucket() string { return "mem" }

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

func TestStorage_DelegatesToBackend(t *testing.T) {
	backend := &memoryBackend{objects: map[string][]byte{}}
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "exports/a.json", strings.NewReader("[]"), 2, "application/json"))
	require.NoError(t, s.Put(ctx, "other/b.json", strings.NewReader("{}"), 2, "application/json"))

	objects, err := s.List(ctx, "exports/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "exports/a.json", objects[0].Key)

	r, err := s.Get(ctx, "exports/a.json")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	require.NoError(t, s.Delete(ctx, "exports/a.json"))
	_, err = s.Get(ctx, "exports/a.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, "mem", s.Bucket())
	require.NoError(t, s.Close())
	assert.True(t, backend.closed)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(ctx, config.StorageConfig{Backend: "floppy"})
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = Open(ctx, config.StorageConfig{Backend: "minio"})
	assert.ErrorContains(t, err, "minio endpoint is required")

	_, err = Open(ctx, config.StorageConfig{Backend: "gcs"})
	assert.ErrorContains(t, err, "gcs bucket is required")
}
