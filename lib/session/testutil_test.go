// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/waterci/executor/lib/codec"
	"github.com/waterci/executor/lib/protocol"
)

var formats = []codec.Format{codec.FormatCBOR, codec.FormatMsgpack}

// scriptedConn is a net.Conn whose inbound side replays a fixed byte
// sequence and then fails every read with tail. Everything written is
// captured in output. It is used from a single goroutine.
type scriptedConn struct {
	input  *bytes.Reader
	tail   error
	output bytes.Buffer

	// writesBeforeFailure, when positive, is the number of Write calls
	// that succeed before every later Write fails with writeErr.
	writesBeforeFailure int
	writeErr            error
	writes              int

	closed bool
}

func newScriptedConn(input []byte, tail error) *scriptedConn {
	return &scriptedConn{input: bytes.NewReader(input), tail: tail}
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if c.input.Len() == 0 {
		return 0, c.tail
	}
	return c.input.Read(p)
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.writes++
	if c.writeErr != nil && c.writes > c.writesBeforeFailure {
		return 0, c.writeErr
	}
	return c.output.Write(p)
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

func (c *scriptedConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5633}
}

func (c *scriptedConn) SetDeadline(time.Time) error      { return nil }
func (c *scriptedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

// encodeMessages concatenates the encodings of messages.
func encodeMessages(t *testing.T, format codec.Format, messages ...protocol.Message) []byte {
	t.Helper()
	var stream []byte
	for _, message := range messages {
		data, err := codec.Marshal(format, message)
		if err != nil {
			t.Fatalf("encoding %s: %v", message.Kind, err)
		}
		stream = append(stream, data...)
	}
	return stream
}

// decodeMessages decodes every message in data.
func decodeMessages(t *testing.T, format codec.Format, data []byte) []protocol.Message {
	t.Helper()
	decoder, err := codec.NewStreamDecoder(format, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewStreamDecoder: %v", err)
	}
	var messages []protocol.Message
	for {
		var message protocol.Message
		err := decoder.Decode(&message)
		if errors.Is(err, io.EOF) {
			return messages
		}
		if err != nil {
			t.Fatalf("decoding sent message %d: %v", len(messages), err)
		}
		messages = append(messages, message)
	}
}

// kinds extracts the kind of each message.
func kinds(messages []protocol.Message) []protocol.Kind {
	result := make([]protocol.Kind, len(messages))
	for i, message := range messages {
		result[i] = message.Kind
	}
	return result
}

func equalKinds(got, want []protocol.Kind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// registered returns a session that has completed the handshake with id
// "executor-1" over a scripted conn whose remaining input is script.
func registered(t *testing.T, format codec.Format, tail error, script ...protocol.Message) (*Session, *scriptedConn) {
	t.Helper()
	input := encodeMessages(t, format, append([]protocol.Message{protocol.RegisterResponse("executor-1")}, script...)...)
	return registeredWithInput(t, format, input, tail)
}

func registeredWithInput(t *testing.T, format codec.Format, input []byte, tail error) (*Session, *scriptedConn) {
	t.Helper()
	conn := newScriptedConn(input, tail)
	session, err := Handshake(t.Context(), conn, Options{Format: format})
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	return session, conn
}

// successfulJob is an executor that reports every job as succeeded.
func successfulJob(name string) protocol.JobResult {
	return protocol.JobResult{Job: name, Status: protocol.JobSuccess}
}
