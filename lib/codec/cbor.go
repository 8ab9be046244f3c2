// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is configured with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items.
var cborEncMode cbor.EncMode

// cborDecMode accepts standard CBOR. Unknown fields are silently
// ignored so a newer core can add fields without breaking executors.
var cborDecMode cbor.DecMode

func init() {
	var err error

	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		// Message payloads never use non-string map keys. Without
		// this, any-typed targets decode to map[interface{}]interface{},
		// which nothing downstream can consume.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborStreamDecoder adapts cbor.Decoder to StreamDecoder.
type cborStreamDecoder struct {
	decoder *cbor.Decoder
}

func (d *cborStreamDecoder) Decode(v any) error {
	return d.decoder.Decode(v)
}

// Buffered reports how many bytes the decoder has read from the
// transport but not yet consumed. cbor.Decoder reads ahead in chunks,
// so a non-zero value means part of the next message has arrived.
func (d *cborStreamDecoder) Buffered() int {
	remaining, ok := d.decoder.Buffered().(*bytes.Reader)
	if !ok {
		return 0
	}
	return remaining.Len()
}

func newCBOREncoder(w io.Writer) StreamEncoder {
	return cborEncMode.NewEncoder(w)
}

func newCBORDecoder(r io.Reader) StreamDecoder {
	return &cborStreamDecoder{decoder: cborDecMode.NewDecoder(r)}
}
