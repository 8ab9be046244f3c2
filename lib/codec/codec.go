// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"fmt"
	"io"
)

// Format names a wire encoding.
type Format string

const (
	// FormatCBOR is RFC 8949 CBOR with Core Deterministic Encoding.
	FormatCBOR Format = "cbor"

	// FormatMsgpack is MessagePack.
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name from configuration. The empty
// string selects FormatCBOR.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatCBOR:
		return FormatCBOR, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown wire format %q (want %q or %q)", name, FormatCBOR, FormatMsgpack)
	}
}

// StreamEncoder writes one self-delimiting value per Encode call.
type StreamEncoder interface {
	Encode(v any) error
}

// StreamDecoder reads one self-delimiting value per Decode call.
type StreamDecoder interface {
	Decode(v any) error

	// Buffered returns the number of bytes already received from the
	// underlying reader that belong to values not yet decoded.
	Buffered() int
}

// NewStreamEncoder returns an encoder writing format to w.
func NewStreamEncoder(format Format, w io.Writer) (StreamEncoder, error) {
	switch format {
	case FormatCBOR:
		return newCBOREncoder(w), nil
	case FormatMsgpack:
		return newMsgpackEncoder(w), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}

// NewStreamDecoder returns a decoder reading format from r. The decoder
// may read ahead of the value being decoded; callers must not read from
// r directly afterwards.
func NewStreamDecoder(format Format, r io.Reader) (StreamDecoder, error) {
	switch format {
	case FormatCBOR:
		return newCBORDecoder(r), nil
	case FormatMsgpack:
		return newMsgpackDecoder(r), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}

// Marshal encodes v as a single value in format.
func Marshal(format Format, v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder, err := NewStreamEncoder(format, &buffer)
	if err != nil {
		return nil, err
	}
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Unmarshal decodes a single value in format from data into v. Bytes
// after the first value are an error.
func Unmarshal(format Format, data []byte, v any) error {
	reader := bytes.NewReader(data)
	decoder, err := NewStreamDecoder(format, reader)
	if err != nil {
		return err
	}
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if trailing := decoder.Buffered() + reader.Len(); trailing > 0 {
		return fmt.Errorf("%d trailing bytes after %s value", trailing, format)
	}
	return nil
}
