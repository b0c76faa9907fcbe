package bencode

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	input := []byte("d3:cow3:moo4:spam4:eggse")
	v, err := Decode(input)
	require.NoError(t, err)

	require.Equal(t, KindDict, v.Kind())
	cow, ok := v.Get("cow")
	require.True(t, ok)
	s, _ := cow.Str()
	assert.Equal(t, "moo", s)

	assert.Equal(t, input, Encode(v))
}

func TestDecodeInteger(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"i0e", 0, false},
		{"i3e", 3, false},
		{"i-3e", -3, false},
		{"i-0e", 0, true},
		{"i01e", 0, true},
		{"i-01e", 0, true},
		{"i-e", 0, true},
		{"ie", 0, true},
	}
	for _, c := range cases {
		v, err := Decode([]byte(c.in))
		if c.wantErr {
			assert.Errorf(t, err, "expected error decoding %q", c.in)
			continue
		}
		require.NoErrorf(t, err, "decoding %q", c.in)
		n, ok := v.Int()
		require.True(t, ok)
		assert.Equal(t, c.want, n)
	}
}

func TestDecodeEmptyString(t *testing.T) {
	v, err := Decode([]byte("0:"))
	require.NoError(t, err)
	b, ok := v.Bytes()
	require.True(t, ok)
	assert.Empty(t, b)
}

func TestDecodeStringArbitraryBytes(t *testing.T) {
	raw := []byte{0x00, 0xFF, 0x10}
	encoded := append([]byte("3:"), raw...)
	v, err := Decode(encoded)
	require.NoError(t, err)
	b, ok := v.Bytes()
	require.True(t, ok)
	assert.Equal(t, raw, b)
}

func TestDecodeDictOutOfOrderOrDuplicate(t *testing.T) {
	_, err := Decode([]byte("d1:b3:foo1:a3:bare"))
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, DictionaryKeysOutOfOrder, berr.Kind)

	_, err = Decode([]byte("d1:a3:foo1:a3:bare"))
	require.Error(t, err)
	berr, ok = err.(*Error)
	require.True(t, ok)
	assert.Equal(t, DuplicateDictionaryKey, berr.Kind)
}

func TestDecodeUnconsumedContents(t *testing.T) {
	_, err := Decode([]byte("i1ei2e"))
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, UnconsumedContents, berr.Kind)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte("x"))
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, UnknownType, berr.Kind)
}

func TestInfoHashExample(t *testing.T) {
	// A single-file torrent whose info dictionary hashes to a known SHA-1:
	// the re-encoding of the parsed info subtree must be bit-identical to
	// the source bytes, or the info-hash is garbage.
	zeros := make([]byte, 20)
	infoBytes := append([]byte("d6:lengthi3e4:name1:a12:piece lengthi3e6:pieces20:"), zeros...)
	infoBytes = append(infoBytes, 'e')
	full := append([]byte("d4:info"), infoBytes...)
	full = append(full, 'e')

	v, err := Decode(full)
	require.NoError(t, err)
	info, ok := v.Get("info")
	require.True(t, ok)

	assert.Equal(t, infoBytes, Encode(info))
	want := sha1.Sum(infoBytes)
	got := sha1.Sum(Encode(info))
	assert.Equal(t, want, got)
}

func TestListRoundTrip(t *testing.T) {
	input := []byte("l4:spami42ee")
	v, err := Decode(input)
	require.NoError(t, err)
	items, ok := v.List()
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, input, Encode(v))
}
