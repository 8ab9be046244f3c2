// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/waterci/executor/lib/protocol"
)

// limitedBuffer keeps the first limit bytes written to it and counts
// the rest. Writes never fail, so a noisy command is not killed by
// SIGPIPE once the limit is reached. Safe for concurrent writers.
type limitedBuffer struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buffer.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buffer.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buffer.Write(p)
	return len(p), nil
}

// Bytes returns the kept output.
func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buffer.Bytes())
}

// Truncated reports whether any output was dropped.
func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// errIncompressible is returned by compression functions when the
// compressed form would not be smaller than the input.
var errIncompressible = errors.New("data is incompressible")

// zstdEncoder is safe for concurrent use and reused across steps.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("shell: zstd encoder initialization failed: " + err.Error())
	}
}

// compressOutput encodes data with encoding when that makes it
// smaller, and returns the bytes and the encoding actually used.
func compressOutput(data []byte, encoding protocol.OutputEncoding) ([]byte, protocol.OutputEncoding, error) {
	if len(data) == 0 {
		return data, protocol.OutputPlain, nil
	}

	var compressed []byte
	var err error
	switch encoding {
	case protocol.OutputPlain, "":
		return data, protocol.OutputPlain, nil
	case protocol.OutputZstd:
		compressed, err = compressZstd(data)
	case protocol.OutputLZ4:
		compressed, err = compressLZ4(data)
	default:
		return nil, "", fmt.Errorf("unsupported output encoding %q", encoding)
	}
	if errors.Is(err, errIncompressible) {
		return data, protocol.OutputPlain, nil
	}
	if err != nil {
		return nil, "", err
	}
	return compressed, encoding, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Zero means lz4 found nothing to compress.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
