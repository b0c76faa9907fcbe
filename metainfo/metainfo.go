// Package metainfo extracts a typed Torrent from a decoded bencode tree and
// computes its info-hash.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"net/url"
	"time"

	"github.com/mhems/torrentium/bencode"
)

// ModeKind distinguishes single-file torrents from multi-file ones.
type ModeKind int

const (
	Single ModeKind = iota
	Multi
)

// FileEntry describes one file of a multi-file torrent.
type FileEntry struct {
	Length int64
	MD5Sum *[16]byte
	Path   []string
}

// Mode holds the fields specific to single- or multi-file layout.
type Mode struct {
	Kind ModeKind

	// Single-file fields.
	Name   string
	MD5Sum *[16]byte

	// Multi-file fields.
	Dir   string
	Files []FileEntry
}

// Torrent is the immutable, typed view of a parsed metainfo file.
type Torrent struct {
	Announce     string
	AnnounceList [][]string

	CreationDate *time.Time
	Comment      string
	CreatedBy    string
	Encoding     string

	PieceLength int64
	PieceHashes [][20]byte
	InfoHash    [20]byte
	Private     bool

	Mode        Mode
	TotalLength int64
}

// NumPieces returns the declared number of pieces.
func (t *Torrent) NumPieces() int { return len(t.PieceHashes) }

// PieceLen returns the length in bytes of piece index i. Every piece but
// the last is PieceLength bytes; the last is whatever remains of
// TotalLength. Treating every piece as a uniform PieceLength (as a naive
// implementation might) over-requests the final piece and its hash can
// never match; this is resolved here rather than left as a known bug.
func (t *Torrent) PieceLen(i int) int64 {
	if i < 0 || i >= len(t.PieceHashes) {
		return 0
	}
	if i == len(t.PieceHashes)-1 {
		return t.TotalLength - t.PieceLength*int64(i)
	}
	return t.PieceLength
}

// Parse decodes data as a bencoded metainfo file and extracts a Torrent.
func Parse(data []byte) (*Torrent, error) {
	v, err := bencode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("metainfo: %w", err)
	}
	if v.Kind() != bencode.KindDict {
		return nil, &Error{Kind: WrongType, Key: "<root>"}
	}
	return fromValue(v)
}

func fromValue(v bencode.Value) (*Torrent, error) {
	announce, err := requireString(v, "announce")
	if err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(announce); err != nil {
		return nil, &Error{Kind: InvalidURL, Key: "announce", Msg: err.Error()}
	}

	infoVal, ok := v.Get("info")
	if !ok {
		return nil, &Error{Kind: MissingKey, Key: "info"}
	}
	if infoVal.Kind() != bencode.KindDict {
		return nil, &Error{Kind: WrongType, Key: "info"}
	}

	t := &Torrent{Announce: announce}

	if al, ok := v.Get("announce-list"); ok {
		tiers, err := parseAnnounceList(al)
		if err != nil {
			return nil, err
		}
		t.AnnounceList = tiers
	}
	if cd, ok := v.Get("creation date"); ok {
		i, ok := cd.Int()
		if !ok {
			return nil, &Error{Kind: WrongType, Key: "creation date"}
		}
		ts := time.Unix(i, 0).UTC()
		t.CreationDate = &ts
	}
	if c, ok := optionalString(v, "comment"); ok {
		t.Comment = c
	}
	if c, ok := optionalString(v, "created by"); ok {
		t.CreatedBy = c
	}
	if e, ok := optionalString(v, "encoding"); ok {
		t.Encoding = e
	}

	if err := fillInfo(t, infoVal); err != nil {
		return nil, err
	}

	t.InfoHash = sha1.Sum(bencode.Encode(infoVal))

	if err := checkLengthInvariant(t); err != nil {
		return nil, err
	}
	return t, nil
}

func parseAnnounceList(v bencode.Value) ([][]string, error) {
	tiers, ok := v.List()
	if !ok {
		return nil, &Error{Kind: WrongType, Key: "announce-list"}
	}
	out := make([][]string, 0, len(tiers))
	for _, tier := range tiers {
		items, ok := tier.List()
		if !ok || len(items) == 0 {
			return nil, &Error{Kind: WrongType, Key: "announce-list"}
		}
		urls := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.Str()
			if !ok {
				return nil, &Error{Kind: WrongType, Key: "announce-list"}
			}
			urls = append(urls, s)
		}
		out = append(out, urls)
	}
	return out, nil
}

func fillInfo(t *Torrent, info bencode.Value) error {
	pieceLen, ok := info.Get("piece length")
	if !ok {
		return &Error{Kind: MissingKey, Key: "piece length"}
	}
	pl, ok := pieceLen.Int()
	if !ok || pl <= 0 {
		return &Error{Kind: WrongType, Key: "piece length"}
	}
	t.PieceLength = pl

	piecesVal, ok := info.Get("pieces")
	if !ok {
		return &Error{Kind: MissingKey, Key: "pieces"}
	}
	pieces, ok := piecesVal.Bytes()
	if !ok {
		return &Error{Kind: WrongType, Key: "pieces"}
	}
	if len(pieces)%20 != 0 {
		return &Error{Kind: InvalidPiecesLength, Msg: fmt.Sprintf("pieces length %d not a multiple of 20", len(pieces))}
	}
	numPieces := len(pieces) / 20
	hashes := make([][20]byte, numPieces)
	for i := 0; i < numPieces; i++ {
		copy(hashes[i][:], pieces[i*20:(i+1)*20])
	}
	t.PieceHashes = hashes

	name, err := requireString(info, "name")
	if err != nil {
		return err
	}

	if p, ok := info.Get("private"); ok {
		pi, ok := p.Int()
		if !ok || (pi != 0 && pi != 1) {
			return &Error{Kind: InvalidPrivateValue}
		}
		t.Private = pi == 1
	}

	_, hasLength := info.Get("length")
	_, hasFiles := info.Get("files")
	if hasLength == hasFiles {
		return &Error{Kind: BothOrNeitherLengthFiles}
	}

	if hasLength {
		lengthVal, _ := info.Get("length")
		length, ok := lengthVal.Int()
		if !ok || length < 0 {
			return &Error{Kind: WrongType, Key: "length"}
		}
		mode := Mode{Kind: Single, Name: name}
		if md5Val, ok := info.Get("md5sum"); ok {
			sum, err := parseMD5(md5Val)
			if err != nil {
				return err
			}
			mode.MD5Sum = sum
		}
		t.Mode = mode
		t.TotalLength = length
		return nil
	}

	filesVal, _ := info.Get("files")
	items, ok := filesVal.List()
	if !ok {
		return &Error{Kind: WrongType, Key: "files"}
	}
	files := make([]FileEntry, 0, len(items))
	var total int64
	for _, fv := range items {
		fe, err := parseFileEntry(fv)
		if err != nil {
			return err
		}
		files = append(files, fe)
		total += fe.Length
	}
	t.Mode = Mode{Kind: Multi, Dir: name, Files: files}
	t.TotalLength = total
	return nil
}

func parseFileEntry(v bencode.Value) (FileEntry, error) {
	if v.Kind() != bencode.KindDict {
		return FileEntry{}, &Error{Kind: WrongType, Key: "files[]"}
	}
	lengthVal, ok := v.Get("length")
	if !ok {
		return FileEntry{}, &Error{Kind: MissingKey, Key: "files[].length"}
	}
	length, ok := lengthVal.Int()
	if !ok || length < 0 {
		return FileEntry{}, &Error{Kind: WrongType, Key: "files[].length"}
	}
	pathVal, ok := v.Get("path")
	if !ok {
		return FileEntry{}, &Error{Kind: MissingKey, Key: "files[].path"}
	}
	segs, ok := pathVal.List()
	if !ok || len(segs) == 0 {
		return FileEntry{}, &Error{Kind: MissingFilePath}
	}
	path := make([]string, 0, len(segs))
	for _, s := range segs {
		seg, ok := s.Str()
		if !ok || seg == "" {
			return FileEntry{}, &Error{Kind: MissingFilePath}
		}
		path = append(path, seg)
	}
	fe := FileEntry{Length: length, Path: path}
	if md5Val, ok := v.Get("md5sum"); ok {
		sum, err := parseMD5(md5Val)
		if err != nil {
			return FileEntry{}, err
		}
		fe.MD5Sum = sum
	}
	return fe, nil
}

func parseMD5(v bencode.Value) (*[16]byte, error) {
	b, ok := v.Bytes()
	if !ok || len(b) != 16 {
		return nil, &Error{Kind: InvalidMD5Length, Msg: fmt.Sprintf("got %d bytes", len(b))}
	}
	var sum [16]byte
	copy(sum[:], b)
	return &sum, nil
}

func requireString(v bencode.Value, key string) (string, error) {
	val, ok := v.Get(key)
	if !ok {
		return "", &Error{Kind: MissingKey, Key: key}
	}
	s, ok := val.Str()
	if !ok {
		return "", &Error{Kind: WrongType, Key: key}
	}
	return s, nil
}

func optionalString(v bencode.Value, key string) (string, bool) {
	val, ok := v.Get(key)
	if !ok {
		return "", false
	}
	s, ok := val.Str()
	return s, ok
}

func checkLengthInvariant(t *Torrent) error {
	n := int64(len(t.PieceHashes))
	if n == 0 {
		if t.TotalLength != 0 {
			return &Error{Kind: LengthMismatch, Msg: "zero pieces but nonzero total length"}
		}
		return nil
	}
	lower := t.PieceLength * (n - 1)
	upper := t.PieceLength * n
	if !(lower < t.TotalLength && t.TotalLength <= upper) {
		return &Error{Kind: LengthMismatch, Msg: fmt.Sprintf(
			"total length %d outside (%d, %d] implied by piece length %d and %d pieces",
			t.TotalLength, lower, upper, t.PieceLength, n)}
	}
	return nil
}
