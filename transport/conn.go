// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package transport implements the Framed Connection: a reliable,
// message-oriented transport over any net.Conn byte stream. Each ETP
// message travels as a 4-byte little-endian length prefix followed by
// that many bytes of its binary encoding — no other framing or control
// bytes are on the wire.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/voltmesh/etp-core/etp"
)

const lengthPrefixSize = 4

// maxFrameSize guards against a corrupt or hostile length prefix causing
// an unbounded allocation; an ETP message never legitimately approaches
// this size.
const maxFrameSize = 1 << 20

// Conn wraps a byte stream (almost always a *net.TCPConn) with the ETP
// frame format. It is safe for one reader and one writer goroutine to use
// concurrently; Send serializes concurrent writers but Receive does not
// serialize concurrent readers — callers needing strict request/response
// ordering must not call Receive from more than one goroutine.
type Conn struct {
	rw      net.Conn
	writeMu sync.Mutex
}

// New wraps rw as a framed ETP connection.
func New(rw net.Conn) *Conn {
	return &Conn{rw: rw}
}

// Send encodes m and writes its length-prefixed frame. The write is a
// single net.Conn.Write call, so there is no separate flush step to
// perform — the frame is on the wire (or the call has failed) when Send
// returns.
func (c *Conn) Send(m *etp.Message) error {
	if err := etp.ValidateForTransmit(m); err != nil {
		return err
	}
	payload := etp.Encode(m)

	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rw.Write(frame); err != nil {
		return &etp.Error{Kind: etp.KindTransport, Err: fmt.Errorf("send: %w", err)}
	}
	return nil
}

// Receive blocks until one complete frame has arrived, then decodes it.
// A clean peer close, whether observed before any bytes of a new frame
// arrive or partway through the length prefix, surfaces as io.EOF; a
// close mid-payload, a malformed length prefix, or a decode failure all
// close the underlying connection and return a transport/codec error.
func (c *Conn) Receive() (*etp.Message, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			c.rw.Close()
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		c.rw.Close()
		return nil, &etp.Error{Kind: etp.KindTransport, Err: fmt.Errorf("receive length: %w", err)}
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 || length > maxFrameSize {
		c.rw.Close()
		return nil, &etp.Error{Kind: etp.KindTransport, Err: fmt.Errorf("receive: malformed frame length %d", length)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		c.rw.Close()
		return nil, &etp.Error{Kind: etp.KindTransport, Err: fmt.Errorf("receive payload: %w", err)}
	}

	m, err := etp.Decode(payload)
	if err != nil {
		c.rw.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the underlying stream.
func (c *Conn) Close() error { return c.rw.Close() }

// RemoteAddr reports the address of the peer at the other end of the
// connection.
func (c *Conn) RemoteAddr() net.Addr { return c.rw.RemoteAddr() }
