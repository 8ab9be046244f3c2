// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/waterci/executor/lib/codec"
	"github.com/waterci/executor/lib/protocol"
)

// Options configures a session.
type Options struct {
	// Format is the wire encoding. Empty selects codec.FormatCBOR.
	Format codec.Format

	// Logger receives session events. Nil discards them.
	Logger *slog.Logger

	// Tracer creates the session, dispatch, and job spans. Nil
	// disables tracing.
	Tracer trace.Tracer

	// HandshakeTimeout bounds the wait for the register response. Zero
	// waits indefinitely.
	HandshakeTimeout time.Duration
}

// Session is an established, registered connection to the core. It is
// owned by a single goroutine: the one that calls Serve.
type Session struct {
	conn   net.Conn
	id     string
	format codec.Format

	reader  *meteredReader
	decoder codec.StreamDecoder
	writer  *bufio.Writer
	encoder codec.StreamEncoder

	logger *slog.Logger
	tracer trace.Tracer
}

// newSession wraps conn with the codec. The session is not registered
// until Handshake sets its id.
func newSession(conn net.Conn, options Options) (*Session, error) {
	format, err := codec.ParseFormat(string(options.Format))
	if err != nil {
		return nil, err
	}

	reader := &meteredReader{reader: conn}
	decoder, err := codec.NewStreamDecoder(format, reader)
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriter(conn)
	encoder, err := codec.NewStreamEncoder(format, writer)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Session{
		conn:    conn,
		format:  format,
		reader:  reader,
		decoder: decoder,
		writer:  writer,
		encoder: encoder,
		logger:  logger,
		tracer:  tracer,
	}, nil
}

// ID returns the identity the core assigned at registration.
func (s *Session) ID() string {
	return s.id
}

// Close closes the connection to the core.
func (s *Session) Close() error {
	return s.conn.Close()
}

// readMessage decodes the next message. A failure is returned as a
// *readError recording whether the message had started to arrive.
func (s *Session) readMessage() (protocol.Message, error) {
	pending := s.decoder.Buffered()
	before := s.reader.count

	var message protocol.Message
	if err := s.decoder.Decode(&message); err != nil {
		return protocol.Message{}, &readError{
			err:     err,
			started: pending > 0 || s.reader.count > before,
		}
	}
	return message, nil
}

// send encodes message and flushes it to the connection.
func (s *Session) send(message protocol.Message) error {
	if err := s.encoder.Encode(message); err != nil {
		return &ProtocolError{Op: "write", Kind: message.Kind, Err: err}
	}
	if err := s.writer.Flush(); err != nil {
		return &ProtocolError{Op: "write", Kind: message.Kind, Err: err}
	}
	return nil
}

// meteredReader counts the bytes delivered by the transport.
type meteredReader struct {
	reader io.Reader
	count  int64
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.reader.Read(p)
	m.count += int64(n)
	return n, err
}
