package batch

import "math/bits"

// idSet is a fixed-size bitmap of instance ids. A set bit marks a used id.
type idSet struct {
	words []uint64
	size  int
	used  int
}

func newIDSet(size int) *idSet {
	return &idSet{words: make([]uint64, (size+63)/64), size: size}
}

// acquire marks the lowest free id as used and returns it, or -1 when every id is used.
func (s *idSet) acquire() int {
	if s.used == s.size {
		return -1
	}
	for i, w := range s.words {
		if w == ^uint64(0) {
			continue
		}
		id := i*64 + bits.TrailingZeros64(^w)
		if id >= s.size {
			return -1
		}
		s.words[i] |= 1 << (id % 64)
		s.used++
		return id
	}
	return -1
}

// release marks id as free. Releasing a free or out of range id does nothing.
func (s *idSet) release(id int) {
	if !s.has(id) {
		return
	}
	s.words[id/64] &^= 1 << (id % 64)
	s.used--
}

func (s *idSet) has(id int) bool {
	return id >= 0 && id < s.size && s.words[id/64]&(1<<(id%64)) != 0
}

// reset frees every id.
func (s *idSet) reset() {
	clear(s.words)
	s.used = 0
}

// free returns the number of free ids.
func (s *idSet) free() int { return s.size - s.used }
