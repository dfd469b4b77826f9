package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing IDs starting after start.
// The order book numbers trades with one; the console numbers orders
// with another.
type Sequencer struct {
	last atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next ID.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued ID, or the start value if none was issued.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
