package serializer

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Compressed wraps a Serializer and zstd-compresses its output.
// Safe for concurrent use. Call Close when done.
type Compressed struct {
	inner   Serializer
	encoder *zstd.Encoder
}

// NewCompressed wraps inner with SpeedDefault zstd compression.
func NewCompressed(inner Serializer) (*Compressed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Compressed{inner: inner, encoder: encoder}, nil
}

func (c *Compressed) Format() string      { return c.inner.Format() + "+zstd" }
func (c *Compressed) ContentType() string { return c.inner.ContentType() }

// ContentEncoding is the HTTP content coding of the output.
func (c *Compressed) ContentEncoding() string { return "zstd" }

func (c *Compressed) Serialize(res *models.Resource, records []map[string]any) ([]byte, error) {
	data, err := c.inner.Serialize(res, records)
	if err != nil {
		return nil, err
	}
	// EncodeAll is goroutine-safe
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Close releases the encoder.
func (c *Compressed) Close() error {
	return c.encoder.Close()
}

// Decompress reverses Compressed output.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}
