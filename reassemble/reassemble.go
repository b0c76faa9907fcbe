// Package reassemble stitches verified piece files back into the output
// layout declared by a torrent's metainfo.
package reassemble

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/mhems/torrentium/metainfo"
)

// outputTarget is one file to be materialized from the piece stream, in
// stream order.
type outputTarget struct {
	path   string
	length int64
	md5Sum *[16]byte
}

// Reassemble opens every piece_<i>.bin under workdir in index order, treats
// them as one logical byte stream, and writes it out into the file(s)
// declared by t (single name, or the multi-file list in order). On success,
// piece files are deleted. If any declared file carries an md5sum, it is
// verified after writing; a mismatch is reported but the piece files are
// left in place so the download can be salvaged.
func Reassemble(t *metainfo.Torrent, workdir, outdir string, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	targets := outputTargets(t, outdir)

	stream, closeAll, err := openPieceStream(t, workdir)
	if err != nil {
		return err
	}
	defer closeAll()

	for _, tgt := range targets {
		if err := writeOne(stream, tgt); err != nil {
			return err
		}
	}

	for _, tgt := range targets {
		if tgt.md5Sum == nil {
			continue
		}
		if err := verifyMD5(tgt); err != nil {
			return err
		}
	}

	log.Infow("reassembly complete, removing piece files", "pieces", t.NumPieces())
	for i := 0; i < t.NumPieces(); i++ {
		os.Remove(filepath.Join(workdir, pieceFileName(i)))
	}
	return nil
}

func outputTargets(t *metainfo.Torrent, outdir string) []outputTarget {
	switch t.Mode.Kind {
	case metainfo.Single:
		return []outputTarget{{
			path:   filepath.Join(outdir, t.Mode.Name),
			length: t.TotalLength,
			md5Sum: t.Mode.MD5Sum,
		}}
	default:
		out := make([]outputTarget, 0, len(t.Mode.Files))
		for _, fe := range t.Mode.Files {
			segs := append([]string{outdir, t.Mode.Dir}, fe.Path...)
			out = append(out, outputTarget{
				path:   filepath.Join(segs...),
				length: fe.Length,
				md5Sum: fe.MD5Sum,
			})
		}
		return out
	}
}

func openPieceStream(t *metainfo.Torrent, workdir string) (io.Reader, func(), error) {
	readers := make([]io.Reader, 0, t.NumPieces())
	files := make([]*os.File, 0, t.NumPieces())
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for i := 0; i < t.NumPieces(); i++ {
		path := filepath.Join(workdir, pieceFileName(i))
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, func() {}, &Error{Kind: FileSystem, Path: path, Msg: err.Error()}
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	return io.MultiReader(readers...), closeAll, nil
}

func writeOne(stream io.Reader, tgt outputTarget) error {
	if err := os.MkdirAll(filepath.Dir(tgt.path), 0o755); err != nil {
		return &Error{Kind: FileSystem, Path: tgt.path, Msg: err.Error()}
	}
	out, err := os.Create(tgt.path)
	if err != nil {
		return &Error{Kind: FileSystem, Path: tgt.path, Msg: err.Error()}
	}
	defer out.Close()

	n, err := io.CopyN(out, stream, tgt.length)
	if err != nil && err != io.EOF {
		return &Error{Kind: FileSystem, Path: tgt.path, Msg: err.Error()}
	}
	if n != tgt.length {
		return &Error{Kind: CopyShort, Path: tgt.path, Expected: tgt.length}
	}
	return nil
}

func verifyMD5(tgt outputTarget) error {
	f, err := os.Open(tgt.path)
	if err != nil {
		return &Error{Kind: FileSystem, Path: tgt.path, Msg: err.Error()}
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return &Error{Kind: FileSystem, Path: tgt.path, Msg: err.Error()}
	}
	var got [16]byte
	copy(got[:], h.Sum(nil))
	if got != *tgt.md5Sum {
		return &Error{Kind: Md5Mismatch, Path: tgt.path, Got: fmt.Sprintf("%x", got)}
	}
	return nil
}

func pieceFileName(index int) string {
	return "piece_" + strconv.Itoa(index) + ".bin"
}
