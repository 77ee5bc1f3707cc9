package iterator

// TermList is the implementation behind a TermIterator.
type TermList interface {
	Next() (bool, error)
	// SkipTo moves to the first term >= term, staying put when the current
	// term already is. Lists without a defined order return ErrUnsorted.
	SkipTo(term string) (bool, error)
	Term() string
	Wdf() (uint32, error)
	TermFreq() (uint32, error)
	PositionListCount() (int, error)
	PositionList() (PositionList, error)
	Close() error
}

// TermIterator streams the terms of a list in list order.
type TermIterator struct {
	s *shared[TermList]
}

// TermEnd is the end of every term stream.
var TermEnd TermIterator

// NewTermIterator positions a handle on the first term of list. It takes
// ownership of list and returns TermEnd for an empty one.
func NewTermIterator(list TermList) (TermIterator, error) {
	s, err := begin(list)
	return TermIterator{s}, err
}

// Clone returns a handle sharing the position of it.
func (it TermIterator) Clone() TermIterator {
	return TermIterator{it.s.acquire()}
}

// Close drops the reference of it and makes it the end handle.
func (it *TermIterator) Close() error {
	s := it.s
	it.s = nil
	return s.release()
}

// Equal reports whether it and other share a list, or are both at end.
func (it TermIterator) Equal(other TermIterator) bool {
	return it.s.live() == other.s.live()
}

// End reports whether it is at the end of its stream.
func (it TermIterator) End() bool {
	return it.s.live() == nil
}

func (it TermIterator) Term() (string, error) {
	l, err := it.s.at()
	if err != nil {
		return "", err
	}
	return l.Term(), nil
}

func (it TermIterator) Wdf() (uint32, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.Wdf()
}

// TermFreq returns the number of documents indexed by the current term.
func (it TermIterator) TermFreq() (uint32, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.TermFreq()
}

// PositionListCount returns the length of the position list of the current
// term without reading it.
func (it TermIterator) PositionListCount() (int, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.PositionListCount()
}

// PositionListBegin opens the position list of the current term.
func (it TermIterator) PositionListBegin() (PositionIterator, error) {
	l, err := it.s.at()
	if err != nil {
		return PositionEnd, err
	}
	pl, err := l.PositionList()
	if err != nil {
		return PositionEnd, err
	}
	return NewPositionIterator(pl)
}

// Next advances to the following term. Past the last term it becomes
// TermEnd.
func (it *TermIterator) Next() (err error) {
	it.s, err = it.s.move(next[TermList])
	return
}

// SkipTo advances to the first term >= term.
func (it *TermIterator) SkipTo(term string) (err error) {
	it.s, err = it.s.move(func(l TermList) (bool, error) {
		return l.SkipTo(term)
	})
	return
}

func (it TermIterator) String() string {
	if term, err := it.Term(); err == nil {
		return "TermIterator(" + term + ")"
	}
	return "TermIterator(end)"
}
