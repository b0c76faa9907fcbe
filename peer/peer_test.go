package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhems/torrentium/metainfo"
	"github.com/mhems/torrentium/peerwire"
)

func TestCompleteHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var infoHash, ourID, theirID [20]byte
	infoHash[0] = 0x42
	theirID[0] = 0x07

	done := make(chan error, 1)
	go func() {
		_, err := completeHandshake(client, ourID, infoHash)
		done <- err
	}()

	// act as the remote peer: read handshake, reply with our own.
	hs, err := peerwire.ReadHandshake(server, infoHash)
	require.NoError(t, err)
	assert.Equal(t, ourID, hs.PeerID)

	reply := peerwire.Handshake{InfoHash: infoHash, PeerID: theirID}
	_, err = server.Write(reply.Serialize())
	require.NoError(t, err)

	require.NoError(t, <-done)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Curious", Curious.String())
	assert.Equal(t, "Unchoked", Unchoked.String())
}

func TestDownloadPieceAcceptsOnlyMatchingBlocks(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := &Worker{
		conn: &Conn{Conn: client, Choked: false},
	}

	pieceLen := 4
	go func() {
		// server side: read the single Request covering the whole piece,
		// reply first with a block for another piece (which must be
		// ignored), then with a matching Piece message.
		msg, err := peerwire.Read(server)
		if err != nil || msg.ID != peerwire.Request {
			return
		}
		wrong := []byte{0, 0, 0, 1, 0, 0, 0, 0, 0x00, 0x00, 0x00, 0x00}
		server.Write((&peerwire.Message{ID: peerwire.Piece, Payload: wrong}).Serialize())
		payload := append(append([]byte{}, msg.Payload[0:8]...), 0xDE, 0xAD, 0xBE, 0xEF)
		pieceMsg := &peerwire.Message{ID: peerwire.Piece, Payload: payload}
		server.Write(pieceMsg.Serialize())
	}()

	buf, err := w.downloadPieceForTest(0, pieceLen)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf)
}

// downloadPieceForTest exposes downloadPiece with an explicit piece length,
// since the real method derives it from w.torrent which these tests don't
// construct.
func (w *Worker) downloadPieceForTest(index, length int) ([]byte, error) {
	w.torrent = &metainfo.Torrent{
		PieceLength: int64(length),
		TotalLength: int64(length) * int64(index+1),
		PieceHashes: make([][20]byte, index+1),
	}
	return w.downloadPiece(index)
}
