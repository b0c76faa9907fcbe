package swarm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mhems/torrentium/metainfo"
	"github.com/mhems/torrentium/peer"
	"github.com/mhems/torrentium/tracker"
)

// DialTimeout bounds a single peer's TCP connect. The handshake and bitfield
// exchange that follow use their own timeouts inside peer.Dial.
const DialTimeout = 5 * time.Second

// Coordinator spawns one peer.Worker per candidate peer and drives the
// download to completion. Each Download call creates the SharedState its
// workers claim and release pieces against.
type Coordinator struct {
	Log *zap.SugaredLogger
}

// NewCoordinator returns a Coordinator; a nil logger falls back to a no-op
// one.
func NewCoordinator(log *zap.SugaredLogger) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Coordinator{Log: log}
}

// Download spawns one worker per peer, waits for all of them to terminate
// (normally or with an isolated error; per-worker errors are logged, not
// propagated), and reports IncompleteDownload if any piece
// never reached done. ctx bounds the whole job: on cancellation every live
// worker's connection is closed, unblocking its in-flight read.
func (c *Coordinator) Download(ctx context.Context, t *metainfo.Torrent, peers []tracker.Peer, workdir string) error {
	if len(peers) == 0 {
		return &Error{Kind: NoPeers}
	}

	state := NewSharedState(t.NumPieces())
	ourID := LocalPeerID()

	var mu sync.Mutex
	workers := make([]*peer.Worker, 0, len(peers))

	g, gctx := errgroup.WithContext(ctx)

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			mu.Lock()
			for _, w := range workers {
				w.Close()
			}
			mu.Unlock()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	for _, p := range peers {
		p := p
		g.Go(func() error {
			log := c.Log.With("peer", p.String())
			w, err := peer.NewWorker(p, ourID, t, state, workdir, DialTimeout, log)
			if err != nil {
				log.Infow("could not connect to peer, skipping", "error", err)
				return nil
			}

			mu.Lock()
			workers = append(workers, w)
			cancelled := gctx.Err() != nil
			mu.Unlock()
			if cancelled {
				// the watcher may already have closed the workers it knew
				// about; this one joined too late, so close it here.
				w.Close()
			}

			if err := w.Run(); err != nil {
				log.Infow("worker terminated with error", "error", err)
			}
			return nil
		})
	}

	// errgroup.WithContext cancels gctx if any Go func returns a non-nil
	// error; workers never do, so Wait only ever returns nil here, but the
	// call still blocks until every worker has finished.
	_ = g.Wait()

	if !state.AllDone() {
		missing := t.NumPieces() - state.Done().Popcount()
		return &Error{Kind: IncompleteDownload, Missing: missing, NumPieces: t.NumPieces()}
	}
	return nil
}

// LocalPeerID is the fixed BEP-20-style identifier this client presents to
// trackers and peers alike: an Azureus-style client code and version,
// padded to 20 bytes. Trackers and peers must see the same identity, so
// there is exactly one of these.
func LocalPeerID() [20]byte {
	var id [20]byte
	copy(id[:], "-TM0001-000000000000")
	return id
}
