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

package transport

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltmesh/etp-core/etp"
)

func TestFrameRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	client := New(clientSide)
	server := New(serverSide)

	msg := &etp.Message{
		MessageType:          etp.Bid,
		MessageID:            1,
		DeviceID:             2,
		TTL:                  5,
		BidPrice:             20,
		RequiredEnergyAmount: 10,
	}

	errc := make(chan error, 1)
	go func() { errc <- client.Send(msg) }()

	got, err := server.Receive()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, msg, got)
}

func TestBackToBackSendsObservedInOrder(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	client := New(clientSide)
	server := New(serverSide)

	first := &etp.Message{MessageType: etp.Query, MessageID: 1, TTL: 3}
	second := &etp.Message{MessageType: etp.Query, MessageID: 2, TTL: 3}

	go func() {
		_ = client.Send(first)
		_ = client.Send(second)
	}()

	got1, err := server.Receive()
	require.NoError(t, err)
	got2, err := server.Receive()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), got1.MessageID)
	assert.Equal(t, uint64(2), got2.MessageID)
}

func TestReceiveSurfacesCleanEOF(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	server := New(serverSide)

	clientSide.Close()

	_, err := server.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReceiveSurfacesEOFOnMidLengthPrefixClose(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	server := New(serverSide)

	errc := make(chan error, 1)
	go func() {
		_, err := server.Receive()
		errc <- err
	}()

	// Write only 2 of the 4 length-prefix bytes, then close: a clean
	// close partway through the prefix is still end-of-stream, not a
	// transport error.
	_, _ = clientSide.Write([]byte{0x01, 0x02})
	clientSide.Close()

	err := <-errc
	assert.ErrorIs(t, err, io.EOF)
}
