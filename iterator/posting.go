package iterator

// PostingList is the implementation behind a PostingIterator. Document ids
// are strictly ascending.
type PostingList interface {
	Next() (bool, error)
	// SkipTo moves to the first document id >= id.
	SkipTo(id uint32) (bool, error)
	DocID() uint32
	Wdf() (uint32, error)
	PositionList() (PositionList, error)
	Close() error
}

// PostingIterator streams the documents indexed by one term.
type PostingIterator struct {
	s *shared[PostingList]
}

// PostingEnd is the end of every posting stream.
var PostingEnd PostingIterator

// NewPostingIterator positions a handle on the first posting of list.
// It takes ownership of list.
func NewPostingIterator(list PostingList) (PostingIterator, error) {
	s, err := begin(list)
	return PostingIterator{s}, err
}

func (it PostingIterator) Clone() PostingIterator {
	return PostingIterator{it.s.acquire()}
}

func (it *PostingIterator) Close() error {
	s := it.s
	it.s = nil
	return s.release()
}

func (it PostingIterator) Equal(other PostingIterator) bool {
	return it.s.live() == other.s.live()
}

func (it PostingIterator) End() bool {
	return it.s.live() == nil
}

func (it PostingIterator) DocID() (uint32, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.DocID(), nil
}

// Wdf returns the within-document frequency of the term in the current
// document.
func (it PostingIterator) Wdf() (uint32, error) {
	l, err := it.s.at()
	if err != nil {
		return 0, err
	}
	return l.Wdf()
}

func (it PostingIterator) PositionListBegin() (PositionIterator, error) {
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

func (it *PostingIterator) Next() (err error) {
	it.s, err = it.s.move(next[PostingList])
	return
}

// SkipTo advances to the first document id >= id.
func (it *PostingIterator) SkipTo(id uint32) (err error) {
	it.s, err = it.s.move(func(l PostingList) (bool, error) {
		return l.SkipTo(id)
	})
	return
}
