// Package bencode implements a strict encoder/decoder for the bencode wire
// format used by metainfo files and tracker responses.
package bencode

import "bytes"

// Kind identifies which of the four bencode types a Value holds.
type Kind int

const (
	KindInt Kind = iota
	KindString
	KindList
	KindDict
)

// entry is one key/value pair of a dictionary, kept in the ascending
// lexicographic order the wire format requires.
type entry struct {
	key []byte
	val Value
}

// Value is a decoded bencode value: an integer, a byte string, a list of
// values, or a dictionary from byte-string keys to values. The zero Value is
// not meaningful; use the New* constructors or Decode.
type Value struct {
	kind Kind
	i    int64
	s    []byte
	l    []Value
	d    []entry
}

func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewString copies b into the returned Value so later mutation of b does not
// alias the stored bytes.
func NewString(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindString, s: cp}
}

func NewList(items ...Value) Value { return Value{kind: KindList, l: items} }

// NewDict builds a dictionary from possibly-unsorted pairs, sorting them and
// rejecting duplicate keys.
func NewDict(pairs map[string]Value) (Value, error) {
	d := make([]entry, 0, len(pairs))
	for k, v := range pairs {
		d = append(d, entry{key: []byte(k), val: v})
	}
	sortEntries(d)
	for i := 1; i < len(d); i++ {
		if bytes.Equal(d[i-1].key, d[i].key) {
			return Value{}, &Error{Kind: DuplicateDictionaryKey}
		}
	}
	return Value{kind: KindDict, d: d}, nil
}

func sortEntries(d []entry) {
	// insertion sort; dictionaries in practice have few keys.
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && bytes.Compare(d[j-1].key, d[j].key) > 0; j-- {
			d[j-1], d[j] = d[j], d[j-1]
		}
	}
}

func (v Value) Kind() Kind { return v.kind }

// Int returns the integer value; ok is false if v is not a KindInt.
func (v Value) Int() (i int64, ok bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Bytes returns the raw bytes of a byte string; ok is false if v is not a
// KindString. The returned slice aliases the Value's internal storage and
// must not be mutated.
func (v Value) Bytes() (b []byte, ok bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.s, true
}

// Str is a convenience wrapper around Bytes for values known to hold text.
func (v Value) Str() (string, bool) {
	b, ok := v.Bytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// List returns the items of a list; ok is false if v is not a KindList.
func (v Value) List() (items []Value, ok bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.l, true
}

// Get looks up key in a dictionary value. ok is false if v is not a
// KindDict or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	kb := []byte(key)
	for _, e := range v.d {
		if bytes.Equal(e.key, kb) {
			return e.val, true
		}
	}
	return Value{}, false
}

// Keys returns the dictionary's keys in ascending order.
func (v Value) Keys() []string {
	if v.kind != KindDict {
		return nil
	}
	out := make([]string, len(v.d))
	for i, e := range v.d {
		out[i] = string(e.key)
	}
	return out
}

// Equal reports whether v and other encode to the same canonical bytes.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(Encode(v), Encode(other))
}
