package reassemble

import (
	"crypto/md5"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhems/torrentium/metainfo"
)

func writePieces(t *testing.T, workdir string, pieces [][]byte) {
	t.Helper()
	for i, p := range pieces {
		require.NoError(t, os.WriteFile(filepath.Join(workdir, pieceFileName(i)), p, 0o644))
	}
}

func TestReassembleMultiFileSplitsPieceStream(t *testing.T) {
	pieces := [][]byte{
		{0, 1, 2, 3},
		{4, 5, 6, 7},
		{8, 9, 0xA, 0xB},
	}
	workdir := t.TempDir()
	outdir := t.TempDir()
	writePieces(t, workdir, pieces)

	torrent := &metainfo.Torrent{
		PieceHashes: make([][20]byte, len(pieces)),
		TotalLength: 12,
		Mode: metainfo.Mode{
			Kind: metainfo.Multi,
			Dir:  "out",
			Files: []metainfo.FileEntry{
				{Length: 5, Path: []string{"a.bin"}},
				{Length: 7, Path: []string{"b.bin"}},
			},
		},
	}

	require.NoError(t, Reassemble(torrent, workdir, outdir, nil))

	got1, err := os.ReadFile(filepath.Join(outdir, "out", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got1)

	got2, err := os.ReadFile(filepath.Join(outdir, "out", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 0xA, 0xB}, got2)

	for i := range pieces {
		_, err := os.Stat(filepath.Join(workdir, pieceFileName(i)))
		assert.True(t, os.IsNotExist(err), "piece file %d should be removed", i)
	}
}

func TestReassembleSingleFileVerifiesMD5(t *testing.T) {
	data := []byte("hello world")
	workdir := t.TempDir()
	outdir := t.TempDir()
	writePieces(t, workdir, [][]byte{data})

	sum := md5.Sum(data)
	torrent := &metainfo.Torrent{
		PieceHashes: make([][20]byte, 1),
		TotalLength: int64(len(data)),
		Mode:        metainfo.Mode{Kind: metainfo.Single, Name: "greeting.txt", MD5Sum: &sum},
	}

	require.NoError(t, Reassemble(torrent, workdir, outdir, nil))

	got, err := os.ReadFile(filepath.Join(outdir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReassembleMD5MismatchKeepsPieceFiles(t *testing.T) {
	data := []byte("hello world")
	workdir := t.TempDir()
	outdir := t.TempDir()
	writePieces(t, workdir, [][]byte{data})

	var wrongSum [16]byte
	torrent := &metainfo.Torrent{
		PieceHashes: make([][20]byte, 1),
		TotalLength: int64(len(data)),
		Mode:        metainfo.Mode{Kind: metainfo.Single, Name: "greeting.txt", MD5Sum: &wrongSum},
	}

	err := Reassemble(torrent, workdir, outdir, nil)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, Md5Mismatch, rerr.Kind)

	_, statErr := os.Stat(filepath.Join(workdir, pieceFileName(0)))
	assert.NoError(t, statErr, "piece files must survive an md5 mismatch")
}

func TestReassembleCopyShortWhenDeclaredLengthExceedsStream(t *testing.T) {
	workdir := t.TempDir()
	outdir := t.TempDir()
	writePieces(t, workdir, [][]byte{{1, 2, 3}})

	torrent := &metainfo.Torrent{
		PieceHashes: make([][20]byte, 1),
		TotalLength: 10,
		Mode:        metainfo.Mode{Kind: metainfo.Single, Name: "short.bin"},
	}

	err := Reassemble(torrent, workdir, outdir, nil)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CopyShort, rerr.Kind)
}
