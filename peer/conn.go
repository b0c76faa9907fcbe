// Package peer implements the per-peer connection and download state
// machine: Curious -> Interested/NotInterested -> Choked/Unchoked,
// requesting and receiving blocks for one piece at a time.
package peer

import (
	"net"
	"time"

	"github.com/mhems/torrentium/bitfield"
	"github.com/mhems/torrentium/peerwire"
	"github.com/mhems/torrentium/tracker"
)

const handshakeTimeout = 3 * time.Second
const bitfieldTimeout = 5 * time.Second

// Conn is a live connection to one peer: a completed handshake, plus
// whatever bitfield the peer announced immediately after.
type Conn struct {
	net.Conn
	Peer     tracker.Peer
	PeerID   [20]byte
	Have     *bitfield.Bitfield
	Choked   bool
	infoHash [20]byte
	ourID    [20]byte
}

// Dial connects to p, completes the handshake, sends our own (empty, since
// we have nothing yet) bitfield, and receives the peer's bitfield.
func Dial(p tracker.Peer, ourID, infoHash [20]byte, numPieces int, dialTimeout time.Duration) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", p.String(), dialTimeout)
	if err != nil {
		return nil, err
	}

	hs, err := completeHandshake(netConn, ourID, infoHash)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	empty := peerwire.FormatBitfield(bitfield.New(numPieces).Bytes())
	if _, err := netConn.Write(empty.Serialize()); err != nil {
		netConn.Close()
		return nil, err
	}

	have, err := receiveBitfield(netConn, numPieces)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	return &Conn{
		Conn:     netConn,
		Peer:     p,
		PeerID:   hs.PeerID,
		Have:     have,
		Choked:   true,
		infoHash: infoHash,
		ourID:    ourID,
	}, nil
}

func completeHandshake(conn net.Conn, ourID, infoHash [20]byte) (peerwire.Handshake, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	req := peerwire.Handshake{InfoHash: infoHash, PeerID: ourID}
	if _, err := conn.Write(req.Serialize()); err != nil {
		return peerwire.Handshake{}, err
	}
	return peerwire.ReadHandshake(conn, infoHash)
}

// receiveBitfield waits for the peer's Bitfield message. Keep-alives and
// other messages arriving first are ignored; the deadline bounds how long a
// peer may stay silent before we give up on it.
func receiveBitfield(conn net.Conn, numPieces int) (*bitfield.Bitfield, error) {
	conn.SetDeadline(time.Now().Add(bitfieldTimeout))
	defer conn.SetDeadline(time.Time{})

	for {
		msg, err := peerwire.Read(conn)
		if err != nil {
			return nil, err
		}
		if msg == nil || msg.ID != peerwire.Bitfield {
			continue
		}
		return bitfield.FromBytes(msg.Payload, numPieces)
	}
}

func (c *Conn) Read() (*peerwire.Message, error) {
	return peerwire.Read(c.Conn)
}

func (c *Conn) send(msg *peerwire.Message) error {
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

func (c *Conn) SendInterested() error    { return c.send(&peerwire.Message{ID: peerwire.Interested}) }
func (c *Conn) SendNotInterested() error { return c.send(&peerwire.Message{ID: peerwire.NotInterested}) }
func (c *Conn) SendUnchoke() error       { return c.send(&peerwire.Message{ID: peerwire.Unchoke}) }
func (c *Conn) SendHave(index int) error { return c.send(peerwire.FormatHave(index)) }
func (c *Conn) SendRequest(index, begin, length int) error {
	return c.send(peerwire.FormatRequest(index, begin, length))
}
