// Package iterator provides reference-counted handles over term, posting
// and position streams.
//
// A handle is a small value holding one pointer to a shared list. Copying a
// handle with Clone is O(1) and shares the list's position; the list is
// closed when the last handle referencing it is closed. The zero value of
// every handle is the end of the stream. The usual loop is
//
//	for !it.End() {
//	    term, err := it.Term()
//	    ...
//	    if err := it.Next(); err != nil {
//	        ...
//	    }
//	}
//
// Reading from or advancing an end handle returns glass.ErrInvalidOperation.
//
// A handle compares == to TermEnd only once it has released its list. A
// clone whose shared list was exhausted through another handle still holds
// the list until its own next Next or Close, yet End and Equal(TermEnd)
// already report true, so loops test End rather than ==.
//
// Lists are forward-only. SkipTo never moves a handle backwards; on a list
// that is not sorted by its key SkipTo fails with ErrUnsorted and leaves the
// position unchanged.
package iterator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dacapoday/glass"
)

var (
	// ErrAtEnd is returned when an end handle is read or advanced.
	ErrAtEnd = fmt.Errorf("%w: iterator at end", glass.ErrInvalidOperation)
	// ErrUnsorted is returned by SkipTo on a list without a defined order.
	ErrUnsorted = fmt.Errorf("%w: skip on unsorted list", glass.ErrInvalidOperation)
)

// list is what every stream implementation provides. The first call to Next
// moves to the first entry; Next and SkipTo report false once the stream is
// exhausted.
type list interface {
	Next() (bool, error)
	Close() error
}

// shared is the reference-counted state behind handles. Once end is set
// every alias observes the end of the stream and drops its reference on its
// next advance.
type shared[L list] struct {
	list L
	refs atomic.Int32
	end  atomic.Bool
}

// begin moves l to its first entry and wraps it. An empty list is closed
// and yields the end handle.
func begin[L list](l L) (*shared[L], error) {
	ok, err := l.Next()
	if err != nil || !ok {
		return nil, errors.Join(err, l.Close())
	}
	s := &shared[L]{list: l}
	s.refs.Store(1)
	return s, nil
}

// live returns s unless the stream it shares already ended.
func (s *shared[L]) live() *shared[L] {
	if s == nil || s.end.Load() {
		return nil
	}
	return s
}

func (s *shared[L]) acquire() *shared[L] {
	if s = s.live(); s != nil {
		s.refs.Add(1)
	}
	return s
}

func (s *shared[L]) release() error {
	if s == nil {
		return nil
	}
	if s.refs.Add(-1) == 0 {
		return s.list.Close()
	}
	return nil
}

// at returns the list for reading the current entry.
func (s *shared[L]) at() (l L, err error) {
	if s.live() == nil {
		err = ErrAtEnd
		return
	}
	return s.list, nil
}

// move applies step to the list and returns the reference the handle keeps:
// s while the stream has entries, nil once it ended. On error the position
// is unchanged and s is kept.
func (s *shared[L]) move(step func(L) (bool, error)) (*shared[L], error) {
	if s == nil {
		return nil, ErrAtEnd
	}
	if s.end.Load() {
		return nil, s.release()
	}
	ok, err := step(s.list)
	if err != nil {
		return s, err
	}
	if !ok {
		s.end.Store(true)
		return nil, s.release()
	}
	return s, nil
}

func next[L list](l L) (bool, error) {
	return l.Next()
}
