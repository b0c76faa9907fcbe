package peerwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ID identifies a peer wire message type.
type ID uint8

const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	Bitfield      ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
)

func (id ID) String() string {
	switch id {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case Bitfield:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

// Message is a single framed peer wire message. Keep-alive frames surface
// from Read as a nil *Message, never as a Message value.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize writes the 4-byte big-endian length prefix, the ID byte, and
// the payload. A nil *Message serializes as a keep-alive (length 0).
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// Read reads one framed message from r. A zero-length frame (keep-alive)
// returns (nil, nil).
func Read(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	id := ID(body[0])
	switch id {
	case Choke, Unchoke, Interested, NotInterested, Have, Bitfield, Request, Piece, Cancel:
	default:
		return nil, fmt.Errorf("peerwire: unknown message id %d", id)
	}
	if id == Piece && len(body)-1 < 8 {
		return nil, fmt.Errorf("peerwire: piece payload too short: %d bytes", len(body)-1)
	}
	return &Message{ID: id, Payload: body[1:]}, nil
}

// FormatRequest builds a Request message for the given piece index, byte
// offset, and block length.
func FormatRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: Request, Payload: payload}
}

// FormatHave builds a Have message announcing completion of piece index.
func FormatHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{ID: Have, Payload: payload}
}

// FormatBitfield builds a Bitfield message from raw wire bytes.
func FormatBitfield(b []byte) *Message {
	return &Message{ID: Bitfield, Payload: b}
}

// ParsePiece validates and applies a Piece message's payload to buf,
// returning the number of bytes copied. It accepts only payloads whose
// index matches want and whose begin/length match exactly what was
// requested.
func ParsePiece(want int, buf []byte, msg *Message, expectOffset, expectLen int) (int, error) {
	if msg.ID != Piece {
		return 0, fmt.Errorf("peerwire: expected Piece message, got %s", msg.ID)
	}
	if len(msg.Payload) < 8 {
		return 0, fmt.Errorf("peerwire: piece payload too short: %d bytes", len(msg.Payload))
	}
	index := int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin := int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	data := msg.Payload[8:]
	if index != want || begin != expectOffset || len(data) != expectLen {
		return 0, fmt.Errorf("peerwire: piece message does not match outstanding request")
	}
	if begin+len(data) > len(buf) {
		return 0, fmt.Errorf("peerwire: piece payload overruns buffer")
	}
	copy(buf[begin:], data)
	return len(data), nil
}

// ParseHave extracts the piece index from a Have message. Surplus bytes
// beyond the 4-byte index are discarded.
func ParseHave(msg *Message) (int, error) {
	if msg.ID != Have {
		return 0, fmt.Errorf("peerwire: expected Have message, got %s", msg.ID)
	}
	if len(msg.Payload) < 4 {
		return 0, fmt.Errorf("peerwire: have payload must be at least 4 bytes, got %d", len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload[:4])), nil
}
