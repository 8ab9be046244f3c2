// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bufio"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// msgpackStreamDecoder owns the bufio.Reader it hands to msgpack.
// msgpack.Decoder reads byte-by-byte from an io.ByteScanner without
// buffering of its own, so the bufio.Reader is the only place read-ahead
// bytes can live.
type msgpackStreamDecoder struct {
	reader  *bufio.Reader
	decoder *msgpack.Decoder
}

func (d *msgpackStreamDecoder) Decode(v any) error {
	return d.decoder.Decode(v)
}

func (d *msgpackStreamDecoder) Buffered() int {
	return d.reader.Buffered()
}

func newMsgpackEncoder(w io.Writer) StreamEncoder {
	encoder := msgpack.NewEncoder(w)
	encoder.UseCompactInts(true)
	return encoder
}

func newMsgpackDecoder(r io.Reader) StreamDecoder {
	reader := bufio.NewReader(r)
	return &msgpackStreamDecoder{
		reader:  reader,
		decoder: msgpack.NewDecoder(reader),
	}
}
