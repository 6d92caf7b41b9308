package snapshot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic, little-endian 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressed wraps a Store and zstd-compresses snapshot bodies.
//
// Names are unchanged. Get passes through bodies that are not zstd frames, so
// a Compressed store reads snapshots written before compression was enabled.
type Compressed struct {
	inner Store
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCompressed wraps inner. EncodeAll and DecodeAll are safe for concurrent use.
func NewCompressed(inner Store) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("snapshot: zstd decoder: %w", err)
	}
	return &Compressed{inner: inner, enc: enc, dec: dec}, nil
}

// Unwrap returns the wrapped store.
func (s *Compressed) Unwrap() Store {
	return s.inner
}

func (s *Compressed) Put(ctx context.Context, name string, data []byte) error {
	return s.inner.Put(ctx, name, s.enc.EncodeAll(data, make([]byte, 0, len(data)/2)))
}

func (s *Compressed) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress %q: %w", name, err)
	}
	return out, nil
}

func (s *Compressed) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

func (s *Compressed) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Close releases the codec resources. The wrapped store is not closed.
func (s *Compressed) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
