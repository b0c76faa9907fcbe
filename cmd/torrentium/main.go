// Command torrentium is a BitTorrent v1 leech client: given a .torrent
// file, it announces to the tracker, downloads every piece from whatever
// seeds answer, and reassembles the declared output file(s).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin"
	"go.uber.org/zap"

	"github.com/mhems/torrentium/metainfo"
	"github.com/mhems/torrentium/reassemble"
	"github.com/mhems/torrentium/swarm"
	"github.com/mhems/torrentium/tracker"
)

var (
	app = kingpin.New("torrentium", "A BitTorrent v1 leech client")

	file      = app.Arg("file", ".torrent file to download").Required().ExistingFile()
	inspect   = app.Flag("inspect", "Print the parsed metainfo and exit without downloading").Bool()
	workdir   = app.Flag("workdir", "Directory for in-progress piece files").Default(".torrentium-work").String()
	outdir    = app.Flag("outdir", "Directory to write the completed download into").Default(".").String()
	port      = app.Flag("port", "Port advertised to the tracker").Default("6881").Uint16()
	timeout   = app.Flag("timeout", "Whole-download wall-clock timeout").Default("30m").Duration()
	verbosity = app.Flag("verbose", "Enable debug logging").Short('v').Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := newLogger(*verbosity)
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("torrentium failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		// zap's own config never fails to build with these fields; fall
		// back rather than take down the CLI over a logging error.
		l = zap.NewNop()
	}
	return l.Sugar()
}

func run(log *zap.SugaredLogger) error {
	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("reading torrent file: %w", err)
	}

	t, err := metainfo.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing metainfo: %w", err)
	}

	if *inspect {
		printInspection(t)
		return nil
	}

	peerID := swarm.LocalPeerID()

	trackerClient := tracker.NewClient(log)
	resp, err := trackerClient.Retrieve(t.Announce, t.InfoHash, peerID, *port, t.TotalLength)
	if err != nil {
		return fmt.Errorf("retrieving peers: %w", err)
	}
	log.Infow("tracker responded", "num_peers", len(resp.Peers), "interval", resp.Interval)

	if err := os.MkdirAll(*workdir, 0o755); err != nil {
		return fmt.Errorf("preparing workdir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	coordinator := swarm.NewCoordinator(log)
	if err := coordinator.Download(ctx, t, resp.Peers, *workdir); err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	if err := reassemble.Reassemble(t, *workdir, *outdir, log); err != nil {
		return fmt.Errorf("reassembling: %w", err)
	}

	log.Infow("download complete", "file", *file, "outdir", *outdir)
	return nil
}

func printInspection(t *metainfo.Torrent) {
	fmt.Printf("announce:    %s\n", t.Announce)
	fmt.Printf("info hash:   %x\n", t.InfoHash)
	fmt.Printf("piece length: %d\n", t.PieceLength)
	fmt.Printf("num pieces:  %d\n", t.NumPieces())
	fmt.Printf("total length: %d\n", t.TotalLength)
	switch t.Mode.Kind {
	case metainfo.Single:
		fmt.Printf("mode:        single file %q\n", t.Mode.Name)
	case metainfo.Multi:
		fmt.Printf("mode:        multi file, dir %q, %d files\n", t.Mode.Dir, len(t.Mode.Files))
		for _, fe := range t.Mode.Files {
			fmt.Printf("  %s (%d bytes)\n", strings.Join(fe.Path, "/"), fe.Length)
		}
	}
}

