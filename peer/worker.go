package peer

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mhems/torrentium/metainfo"
	"github.com/mhems/torrentium/peerwire"
	"github.com/mhems/torrentium/tracker"
)

// BlockSize is the unit of a Request/Piece exchange: 16 KiB.
const BlockSize = 16 * 1024

// requestTimeout bounds a single piece attempt's read loop so a silent peer
// cannot stall a worker forever.
const requestTimeout = 30 * time.Second

// State is one of the five tags of the per-peer download state machine.
type State int

const (
	Curious State = iota
	Interested
	Choked
	Unchoked
	NotInterested
)

func (s State) String() string {
	switch s {
	case Curious:
		return "Curious"
	case Interested:
		return "Interested"
	case Choked:
		return "Choked"
	case Unchoked:
		return "Unchoked"
	case NotInterested:
		return "NotInterested"
	default:
		return "Unknown"
	}
}

// PieceTracker is the shared todo/done state a Worker claims and releases
// pieces against. swarm.SharedState implements it; Worker depends only on
// this interface so the peer package never imports swarm.
type PieceTracker interface {
	// Claim returns the first piece index not in skip that is still
	// unclaimed, atomically removing it from the todo set. ok is false if
	// no such piece exists.
	Claim(skip map[int]bool) (index int, ok bool)
	// Release returns index to the todo set, making it eligible for any
	// worker (including this one, via a different skip-set state) again.
	Release(index int)
	// MarkDone records index as permanently complete. Monotonic: once
	// called for an index it is never undone.
	MarkDone(index int)
}

// Worker owns one peer connection and runs its download state machine to
// completion (NotInterested) or until a terminal connection error.
type Worker struct {
	conn    *Conn
	torrent *metainfo.Torrent
	tracker PieceTracker
	workdir string
	log     *zap.SugaredLogger

	state   State
	skipSet map[int]bool
}

// NewWorker dials p and, if the handshake and bitfield exchange succeed,
// returns a Worker ready to Run. The worker goes NotInterested immediately
// if the peer is not a seed (does not have every piece); only seeds are
// downloaded from.
func NewWorker(p tracker.Peer, ourID [20]byte, t *metainfo.Torrent, pt PieceTracker, workdir string, dialTimeout time.Duration, log *zap.SugaredLogger) (*Worker, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	conn, err := Dial(p, ourID, t.InfoHash, t.NumPieces(), dialTimeout)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		conn:    conn,
		torrent: t,
		tracker: pt,
		workdir: workdir,
		log:     log.With("peer", p.String()),
		state:   Curious,
		skipSet: make(map[int]bool),
	}
	return w, nil
}

// Run drives the state machine until the worker terminates normally
// (NotInterested) or hits a fatal connection error, which is returned to
// the caller; the coordinator logs it and moves on.
// While Unchoked the worker claims and downloads pieces back to back; it
// only blocks on a read when it is waiting to be unchoked.
func (w *Worker) Run() error {
	defer w.conn.Close()

	if err := w.transitionFromBitfield(); err != nil {
		return err
	}

	for w.state != NotInterested {
		if w.state == Unchoked {
			if err := w.runUnchoked(); err != nil {
				return err
			}
			continue
		}
		msg, err := w.conn.Read()
		if err != nil {
			return err
		}
		w.handle(msg)
	}
	return nil
}

// Close tears down the underlying connection, unblocking any in-flight Read
// in Run. Safe to call concurrently with Run; it is how a coordinator
// enforces a whole-download wall-clock timeout.
func (w *Worker) Close() error {
	return w.conn.Close()
}

func (w *Worker) transitionFromBitfield() error {
	if w.conn.Have.AllSet() {
		w.log.Debugw("peer is a seed, expressing interest")
		if err := w.conn.SendInterested(); err != nil {
			return err
		}
		w.state = Interested
	} else {
		w.log.Debugw("peer is not a seed, skipping")
		w.state = NotInterested
	}
	return nil
}

func (w *Worker) handle(msg *peerwire.Message) {
	if msg == nil {
		return // keep-alive
	}
	switch w.state {
	case Curious:
		// Bitfield already consumed during Dial; any other message here
		// leaves us Curious.
	case Interested, Choked:
		if msg.ID == peerwire.Unchoke {
			w.conn.Choked = false
			w.state = Unchoked
		}
	}
}

// runUnchoked claims one piece, downloads it, and either commits it or
// requeues it for another worker.
func (w *Worker) runUnchoked() error {
	index, ok := w.tracker.Claim(w.skipSet)
	if !ok {
		w.log.Debugw("no claimable piece remains")
		w.conn.SendNotInterested()
		w.state = NotInterested
		return nil
	}

	buf, err := w.downloadPiece(index)
	if err != nil {
		w.log.Infow("piece download failed, requeuing", "piece", index, "error", err)
		w.skipSet[index] = true
		w.tracker.Release(index)
		w.state = Choked
		return nil
	}

	if !w.verify(index, buf) {
		w.log.Infow("piece hash mismatch, requeuing", "piece", index)
		w.skipSet[index] = true
		w.tracker.Release(index)
		return nil
	}

	if err := w.persist(index, buf); err != nil {
		return err // disk errors are fatal for this worker
	}
	w.tracker.MarkDone(index)
	w.conn.SendHave(index)
	return nil
}

func (w *Worker) verify(index int, buf []byte) bool {
	got := sha1.Sum(buf)
	return got == w.torrent.PieceHashes[index]
}

func (w *Worker) persist(index int, buf []byte) error {
	path := filepath.Join(w.workdir, pieceFileName(index))
	return os.WriteFile(path, buf, 0o644)
}

func pieceFileName(index int) string {
	return "piece_" + strconv.Itoa(index) + ".bin"
}

// downloadPiece runs the block-request loop for a single piece: request up
// to BlockSize bytes at a time while unchoked, accept Piece replies only
// when they match the outstanding request exactly, and stop requesting
// (without aborting) while choked.
func (w *Worker) downloadPiece(index int) ([]byte, error) {
	length := int(w.torrent.PieceLen(index))
	buf := make([]byte, length)

	w.conn.SetDeadline(time.Now().Add(requestTimeout))
	defer w.conn.SetDeadline(time.Time{})

	var offset int
	pending := false // a Request for the current offset is outstanding
	var pendingLen int
	for offset < length {
		if !w.conn.Choked && !pending {
			pendingLen = BlockSize
			if length-offset < pendingLen {
				pendingLen = length - offset
			}
			if err := w.conn.SendRequest(index, offset, pendingLen); err != nil {
				return nil, err
			}
			pending = true
		}

		msg, err := w.conn.Read()
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		switch msg.ID {
		case peerwire.Choke:
			w.conn.Choked = true
		case peerwire.Unchoke:
			w.conn.Choked = false
		case peerwire.Piece:
			n, perr := peerwire.ParsePiece(index, buf, msg, offset, pendingLen)
			if perr != nil {
				continue // not the block we're waiting for: ignore
			}
			offset += n
			pending = false
		default:
			// Have/Interested/etc. are ignored mid-piece.
		}
	}
	return buf, nil
}
