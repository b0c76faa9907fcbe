package metainfo

import "fmt"

// ErrorKind enumerates the ways a decoded bencode tree can fail to be a
// valid torrent metainfo.
type ErrorKind int

const (
	MissingKey ErrorKind = iota
	WrongType
	InvalidURL
	InvalidPiecesLength
	InvalidMD5Length
	MissingFilePath
	BothOrNeitherLengthFiles
	InvalidPrivateValue
	LengthMismatch
)

// Error reports a structural problem found while extracting a Torrent from
// a decoded bencode dictionary.
type Error struct {
	Kind ErrorKind
	Key  string
	Msg  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingKey:
		return fmt.Sprintf("metainfo: missing required key %q", e.Key)
	case WrongType:
		return fmt.Sprintf("metainfo: key %q has the wrong type", e.Key)
	case InvalidURL:
		return fmt.Sprintf("metainfo: %q is not a valid URL: %s", e.Key, e.Msg)
	case InvalidPiecesLength:
		return fmt.Sprintf("metainfo: %s", e.Msg)
	case InvalidMD5Length:
		return fmt.Sprintf("metainfo: md5sum must be 16 bytes: %s", e.Msg)
	case MissingFilePath:
		return "metainfo: file entry missing non-empty path"
	case BothOrNeitherLengthFiles:
		return "metainfo: info dictionary must have exactly one of length or files"
	case InvalidPrivateValue:
		return "metainfo: private must be 0 or 1"
	case LengthMismatch:
		return fmt.Sprintf("metainfo: %s", e.Msg)
	default:
		return "metainfo: invalid torrent"
	}
}
