package epoch

import (
	"github.com/cyclofinance/cy-ledger/inter"
)

// TimeState is the singleton record of stream time as observed from events,
// plus the position of the last taken snapshot. It is loaded and saved
// through the persistence store; the engine threads the current instance
// through every event-handling call.
type TimeState struct {
	// Origin is the timestamp of the first event ever observed.
	Origin inter.Timestamp

	Current  inter.Timestamp
	Previous inter.Timestamp

	CurrentBlock  inter.Block
	PreviousBlock inter.Block

	// LastSnapshotEpoch/LastSnapshotDay mark the epoch day for which the
	// averaging pass last ran. Day 0 means no snapshot has been taken yet.
	LastSnapshotEpoch inter.Epoch
	LastSnapshotDay   inter.Day
}

// Advance moves the observed time forward to the given event position. The
// first call seeds the origin. Current shifts to Previous only when the
// timestamp actually changes, so several events in one block share the same
// previous marker.
func (s *TimeState) Advance(ts inter.Timestamp, block inter.Block) {
	if s.Origin == 0 {
		s.Origin = ts
		s.Current = ts
		s.Previous = ts
		s.CurrentBlock = block
		s.PreviousBlock = block
		return
	}
	if ts == s.Current {
		return
	}
	s.Previous = s.Current
	s.PreviousBlock = s.CurrentBlock
	s.Current = ts
	s.CurrentBlock = block
}
