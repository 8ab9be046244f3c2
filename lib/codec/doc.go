// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the wire encodings spoken between the executor
// and the core.
//
// Both supported formats are self-describing binary encodings, so
// messages travel back-to-back on the connection with no external
// length header: decoding one message consumes exactly its bytes and
// leaves the stream positioned at the start of the next.
//
//   - [FormatCBOR] (default): RFC 8949 Core Deterministic Encoding via
//     fxamacker/cbor. Same logical message always produces identical
//     bytes.
//   - [FormatMsgpack]: MessagePack via vmihailenco/msgpack. Messages
//     keep the same keyed envelope as CBOR; only the byte encoding
//     differs.
//
// For stream-oriented use (the core connection):
//
//	encoder, err := codec.NewStreamEncoder(format, conn)
//	decoder, err := codec.NewStreamDecoder(format, conn)
//
// For buffer-oriented use (tests, fixtures):
//
//	data, err := codec.Marshal(format, value)
//	err = codec.Unmarshal(format, data, &value)
//
// # Struct Tag Rules
//
// Wire types carry both a `cbor` and a `msgpack` tag with the same field
// name and the same omitempty choice. The two tags must never disagree:
// a core switching formats must see identical field names.
package codec
