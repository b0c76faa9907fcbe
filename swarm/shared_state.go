// Package swarm coordinates one download across many peer connections: the
// shared todo/done bookkeeping and the fan-out/fan-in of per-peer workers.
package swarm

import (
	"sync"

	"github.com/willf/bitset"

	"github.com/mhems/torrentium/bitfield"
)

// SharedState is the single object every peer.Worker touches concurrently:
// which pieces remain unclaimed and which are permanently done. Critical
// sections are kept to "pick one piece", "return one piece", or "set one
// bit"; callers must never hold the lock across network or file I/O.
// todo is a willf/bitset.BitSet rather than the wire-format bitfield
// package: it's purely an internal index set with no byte-packing
// requirement.
type SharedState struct {
	mu   sync.Mutex
	todo *bitset.BitSet
	done *bitfield.Bitfield
}

// NewSharedState seeds todo with every piece index [0, numPieces).
func NewSharedState(numPieces int) *SharedState {
	todo := bitset.New(uint(numPieces)).Complement()
	return &SharedState{todo: todo, done: bitfield.New(numPieces)}
}

// Claim returns the first todo index not present in skip, removing it from
// todo atomically with the lookup. This is what gives at-most-once piece
// completion its (a) half: the removal and the selection share a critical
// section, so two workers can never be handed the same index.
func (s *SharedState) Claim(skip map[int]bool) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ok := s.todo.NextSet(0); ok; i, ok = s.todo.NextSet(i + 1) {
		if !skip[int(i)] {
			s.todo.Clear(i)
			return int(i), true
		}
	}
	return 0, false
}

// Release returns index to todo, making it claimable again by this worker
// (now skipping it) or any other.
func (s *SharedState) Release(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todo.Set(uint(index))
}

// MarkDone records index as complete. Monotonic: a done bit is never
// cleared.
func (s *SharedState) MarkDone(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done.Set(index)
}

// AllDone reports whether every piece has been marked done.
func (s *SharedState) AllDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done.AllSet()
}

// Done returns a snapshot copy of the completion bitfield.
func (s *SharedState) Done() *bitfield.Bitfield {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := bitfield.New(s.done.Width())
	for i := 0; i < s.done.Width(); i++ {
		if s.done.Get(i) {
			snap.Set(i)
		}
	}
	return snap
}
