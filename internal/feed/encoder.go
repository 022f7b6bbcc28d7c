package feed

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Encoder compresses frames for clients that negotiated the zstd protocol.
type Encoder struct {
	zstdEncoder *zstd.Encoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc}, nil
}

// Compress returns the zstd frame for data. Safe for concurrent use.
func (e *Encoder) Compress(data []byte) []byte {
	return e.zstdEncoder.EncodeAll(data, nil)
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
}
