// Package peerwire implements the BitTorrent peer wire protocol: the
// handshake and the length-prefixed message codec.
package peerwire

import (
	"bytes"
	"fmt"
	"io"
)

const protocolID = "BitTorrent protocol"

// HandshakeLen is the fixed size of a handshake: 1 + 19 + 8 + 20 + 20.
const HandshakeLen = 1 + len(protocolID) + 8 + 20 + 20

// Handshake is the first message exchanged on every peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize writes the wire form: 0x13, "BitTorrent protocol", 8 zero
// reserved bytes, info_hash, peer_id.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, 0, HandshakeLen)
	buf = append(buf, byte(len(protocolID)))
	buf = append(buf, protocolID...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads and validates a handshake from r, checking that the
// protocol string matches and the peer's info-hash equals ours. The peer ID
// is returned but never compared against anything.
func ReadHandshake(r io.Reader, wantInfoHash [20]byte) (Handshake, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Handshake{}, fmt.Errorf("peerwire: reading handshake pstrlen: %w", err)
	}
	pstrlen := int(lenBuf[0])

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Handshake{}, fmt.Errorf("peerwire: reading handshake body: %w", err)
	}

	pstr := rest[:pstrlen]
	if string(pstr) != protocolID {
		return Handshake{}, fmt.Errorf("peerwire: unexpected protocol string %q", pstr)
	}

	cursor := pstrlen + 8 // skip reserved bytes
	var h Handshake
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])

	if !bytes.Equal(h.InfoHash[:], wantInfoHash[:]) {
		return Handshake{}, &MismatchedHashError{Want: wantInfoHash, Got: h.InfoHash}
	}
	return h, nil
}

// MismatchedHashError is returned when a peer's handshake carries an
// info-hash different from ours.
type MismatchedHashError struct {
	Want, Got [20]byte
}

func (e *MismatchedHashError) Error() string {
	return fmt.Sprintf("peerwire: mismatched info-hash: want %x, got %x", e.Want, e.Got)
}
