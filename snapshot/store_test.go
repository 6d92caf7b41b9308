package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "3_sgd.json", Name(3, "sgd"))

	it, model, ok := ParseName("12_ols.json")
	require.True(t, ok)
	assert.Equal(t, 12, it)
	assert.Equal(t, "ols", model)

	it, model, ok = ParseName(Name(0, "my_model"))
	require.True(t, ok)
	assert.Equal(t, 0, it)
	assert.Equal(t, "my_model", model)

	for _, bad := range []string{"", "sgd.json", "x_sgd.json", "3_.json", "3_sgd.txt", "-1_sgd.json"} {
		_, _, ok := ParseName(bad)
		assert.False(t, ok, bad)
	}
}

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "0_missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(ctx, "2_sgd.json", []byte(`{"a":2}`)))
	require.NoError(t, s.Put(ctx, "1_sgd.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "1_ols.json", []byte(`{"b":1}`)))

	data, err := s.Get(ctx, "2_sgd.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	require.NoError(t, s.Put(ctx, "2_sgd.json", []byte(`{"a":3}`)))
	data, err = s.Get(ctx, "2_sgd.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":3}`, string(data))

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1_ols.json", "1_sgd.json", "2_sgd.json"}, names)

	names, err = s.List(ctx, "1_")
	require.NoError(t, err)
	assert.Equal(t, []string{"1_ols.json", "1_sgd.json"}, names)

	require.NoError(t, s.Delete(ctx, "1_ols.json"))
	require.NoError(t, s.Delete(ctx, "1_ols.json"))
	_, err = s.Get(ctx, "1_ols.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, s.Put(ctx, "../escape.json", []byte("x")))
}

func TestMemory(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemory_CopiesData(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, s.Put(ctx, "0_m.json", buf))
	buf[0] = 'z'

	data, err := s.Get(ctx, "0_m.json")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s := NewLocal(dir)

	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)

	storeContract(t, s)

	data, err := os.ReadFile(filepath.Join(dir, "2_sgd.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":3}`, string(data))
}

func TestLocal_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewLocal(t.TempDir())
	assert.ErrorIs(t, s.Put(ctx, "0_m.json", nil), context.Canceled)
	_, err := s.Get(ctx, "0_m.json")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompressed(t *testing.T) {
	inner := NewMemory()
	s, err := NewCompressed(inner)
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s)

	raw, err := inner.Get(context.Background(), "2_sgd.json")
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, raw[:4])
}

func TestCompressed_ReadsPlain(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()
	require.NoError(t, inner.Put(ctx, "0_sgd.json", []byte(`{"plain":true}`)))

	s, err := NewCompressed(inner)
	require.NoError(t, err)
	defer s.Close()

	data, err := s.Get(ctx, "0_sgd.json")
	require.NoError(t, err)
	assert.Equal(t, `{"plain":true}`, string(data))
	assert.Same(t, inner, s.Unwrap())
}
