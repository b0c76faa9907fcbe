// Package tracker implements the HTTP tracker client: building the
// announce URL, issuing the GET, and decoding the compact peer list.
package tracker

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mhems/torrentium/bencode"
)

// Peer is a stateless (IPv4, port) address as returned by the tracker.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the decoded tracker announce response.
type Response struct {
	Interval int64
	Peers    []Peer
}

const peerRecordSize = 6

// unreserved is the RFC-3986 unreserved character set; every other byte of
// info_hash/peer_id must be percent-encoded when building the announce URL.
func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

func percentEncode(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		if isUnreserved(c) {
			out = append(out, c)
		} else {
			out = append(out, '%', hexDigit(c>>4), hexDigit(c&0xF))
		}
	}
	return string(out)
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

// BuildAnnounceURL constructs the tracker GET URL: percent-encoded
// info_hash and peer_id, plus port/uploaded/downloaded/compact/left query
// parameters.
func BuildAnnounceURL(announce string, infoHash, peerID [20]byte, port uint16, left int64) (string, error) {
	base, err := url.Parse(announce)
	if err != nil {
		return "", fmt.Errorf("tracker: %w", err)
	}
	q := url.Values{
		"port":       []string{strconv.Itoa(int(port))},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"compact":    []string{"1"},
		"left":       []string{strconv.FormatInt(left, 10)},
	}
	base.RawQuery = q.Encode()
	base.RawQuery += "&info_hash=" + percentEncode(infoHash[:])
	base.RawQuery += "&peer_id=" + percentEncode(peerID[:])
	return base.String(), nil
}

// Client issues tracker announces over HTTP.
type Client struct {
	HTTP *http.Client
	Log  *zap.SugaredLogger
}

// NewClient returns a Client with sane defaults; a nil logger falls back to
// a no-op one so callers that don't care about logging don't have to wire
// it up.
func NewClient(log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		HTTP: &http.Client{Timeout: 30 * time.Second},
		Log:  log,
	}
}

// Retrieve announces to announce and decodes the compact peer list.
// Only compact tracker responses are supported.
func (c *Client) Retrieve(announce string, infoHash, peerID [20]byte, port uint16, left int64) (*Response, error) {
	announceURL, err := BuildAnnounceURL(announce, infoHash, peerID, port, left)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(announce)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("tracker: unsupported announce scheme in %q (only http/https tracker URLs are supported)", announce)
	}

	c.Log.Debugw("announcing", "url", announceURL)
	resp, err := c.HTTP.Get(announceURL)
	if err != nil {
		return nil, &Error{Kind: NoResponse, Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: NoResponse, Msg: err.Error()}
	}
	if len(body) == 0 {
		return nil, &Error{Kind: NoBody}
	}

	return decodeResponse(body)
}

func decodeResponse(body []byte) (*Response, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return nil, &Error{Kind: NonBencoded, Msg: err.Error()}
	}
	if v.Kind() != bencode.KindDict {
		return nil, &Error{Kind: NotADictionary}
	}

	intervalVal, ok := v.Get("interval")
	if !ok {
		return nil, &Error{Kind: MissingInterval}
	}
	interval, ok := intervalVal.Int()
	if !ok {
		return nil, &Error{Kind: MissingInterval}
	}

	peersVal, ok := v.Get("peers")
	if !ok {
		return nil, &Error{Kind: MissingPeers}
	}
	peersBin, ok := peersVal.Bytes()
	if !ok {
		return nil, &Error{Kind: MissingPeers}
	}

	peers, err := decodeCompactPeers(peersBin)
	if err != nil {
		return nil, err
	}

	return &Response{Interval: interval, Peers: peers}, nil
}

func decodeCompactPeers(b []byte) ([]Peer, error) {
	if len(b)%peerRecordSize != 0 {
		return nil, &Error{Kind: IllegalPeersLength, Msg: fmt.Sprintf("%d", len(b))}
	}
	n := len(b) / peerRecordSize
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		off := i * peerRecordSize
		ip := make(net.IP, 4)
		copy(ip, b[off:off+4])
		peers[i] = Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(b[off+4 : off+6]),
		}
	}
	return peers, nil
}
