package iterator

import "strconv"

// PositionList is the implementation behind a PositionIterator. Positions
// are strictly ascending.
type PositionList interface {
	Next() (bool, error)
	// SkipTo moves to the first position >= pos.
	SkipTo(pos uint32) (bool, error)
	Position() uint32
	// Count returns the number of positions in the whole list.
	Count() int
	Close() error
}

// PositionIterator streams the positions of one term in one document.
type PositionIterator struct {
	s *shared[PositionList]
}

// PositionEnd is the end of every position stream.
var PositionEnd PositionIterator

// NewPositionIterator positions a handle on the first position of list.
// It takes ownership of list.
func NewPositionIterator(list PositionList) (PositionIterator, error) {
	s, err := begin(list)
	return PositionIterator{s}, err
}

func (it PositionIterator) Clone() PositionIterator {
	return PositionIterator{it.s.acquire()}
}

func (it *PositionIterator) Close() error {
	s := it.s
	it.s = nil
	return s.release()
}

func (it PositionIterator) Equal(other PositionIterator) bool {
	return it.s.live() == other.s.live()
}

func (it PositionIterator) End() bool {
	return it.s.live() == nil
}

func (it PositionIterator) Position() (uint32, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.Position(), nil
}

func (it *PositionIterator) Next() (err error) {
	it.s, err = it.s.move(next[PositionList])
	return
}

// SkipTo advances to the first position >= pos.
func (it *PositionIterator) SkipTo(pos uint32) (err error) {
	it.s, err = it.s.move(func(l PositionList) (bool, error) {
		return l.SkipTo(pos)
	})
	return
}

// Collect reads the remaining positions and closes it.
func (it *PositionIterator) Collect() (positions []uint32, err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	for !it.End() {
		pos, _ := it.Position()
		positions = append(positions, pos)
		if err = it.Next(); err != nil {
			return
		}
	}
	return
}

func (it PositionIterator) String() string {
	if pos, err := it.Position(); err == nil {
		return "PositionIterator(" + strconv.FormatUint(uint64(pos), 10) + ")"
	}
	return "PositionIterator(end)"
}
