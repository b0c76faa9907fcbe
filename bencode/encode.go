package bencode

import (
	"strconv"
)

// Encode serialises v to its canonical bencoding. Dictionary entries are
// always written in ascending key order, so Encode(Decode(b)) == b for any
// b that decodes successfully, and Decode(Encode(v)) == v for any v.
func Encode(v Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, v.i, 10)
		buf = append(buf, 'e')
	case KindString:
		buf = strconv.AppendInt(buf, int64(len(v.s)), 10)
		buf = append(buf, ':')
		buf = append(buf, v.s...)
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.l {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
	case KindDict:
		buf = append(buf, 'd')
		for _, e := range v.d {
			buf = appendValue(buf, NewString(e.key))
			buf = appendValue(buf, e.val)
		}
		buf = append(buf, 'e')
	}
	return buf
}
