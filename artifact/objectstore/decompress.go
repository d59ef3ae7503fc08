package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/BaSui01/patloader/artifact"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// decompressingStore 按帧魔数透明解压
type decompressingStore struct {
	inner artifact.ObjectStore
}

// Decompressing 包装 store：zstd 与 LZ4 帧自动解压，其他负载原样返回
func Decompressing(store artifact.ObjectStore) artifact.ObjectStore {
	if store == nil {
		return nil
	}
	return &decompressingStore{inner: store}
}

func (d *decompressingStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := d.inner.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	out, err := Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	return out, nil
}

// Upload 透传给内部 store
func (d *decompressingStore) Upload(ctx context.Context, key string, data []byte) error {
	up, ok := d.inner.(Uploader)
	if !ok {
		return fmt.Errorf("store %T does not support upload", d.inner)
	}
	return up.Upload(ctx, key, data)
}

func (d *decompressingStore) Close() error {
	if c, ok := d.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Decompress 识别 zstd / LZ4 帧并解压
func Decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case bytes.HasPrefix(data, lz4Magic):
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

// Compress 编码负载，供 publish 使用。codec: none, zstd, lz4
func Compress(data []byte, codec string) ([]byte, error) {
	switch codec {
	case "", "none":
		return data, nil
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case "lz4":
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}
