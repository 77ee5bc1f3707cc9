package iterator

import (
	"fmt"
	"slices"

	"github.com/dacapoday/glass"
)

var errNoStats = fmt.Errorf("%w: raw term list carries no statistics", glass.ErrInvalidOperation)

// VectorTermList is a term list over terms held in memory, in the order
// given. It records presence only: every wdf is 1 and it has no term
// frequencies or positions. It cannot skip.
type VectorTermList struct {
	terms []string
	index int
}

// NewVectorTermList returns a list over terms. The slice is not copied.
func NewVectorTermList(terms []string) *VectorTermList {
	return &VectorTermList{terms: terms, index: -1}
}

func (l *VectorTermList) Next() (bool, error) {
	if l.index < len(l.terms) {
		l.index++
	}
	return l.index < len(l.terms), nil
}

func (l *VectorTermList) SkipTo(string) (bool, error) {
	return false, ErrUnsorted
}

func (l *VectorTermList) Term() string         { return l.terms[l.index] }
func (l *VectorTermList) Wdf() (uint32, error) { return 1, nil }

func (l *VectorTermList) TermFreq() (uint32, error) {
	return 0, errNoStats
}

func (l *VectorTermList) PositionListCount() (int, error) {
	return 0, errNoStats
}

func (l *VectorTermList) PositionList() (PositionList, error) {
	return nil, errNoStats
}

func (l *VectorTermList) Close() error {
	l.terms = nil
	return nil
}

// PositionSlice is a position list held in memory.
type PositionSlice struct {
	positions []uint32
	index     int
}

// NewPositionSlice returns a list over positions, which must be strictly
// ascending. The slice is not copied.
func NewPositionSlice(positions []uint32) *PositionSlice {
	return &PositionSlice{positions: positions, index: -1}
}

func (l *PositionSlice) Next() (bool, error) {
	if l.index < len(l.positions) {
		l.index++
	}
	return l.index < len(l.positions), nil
}

func (l *PositionSlice) SkipTo(pos uint32) (bool, error) {
	start := max(l.index, 0)
	if start < len(l.positions) {
		i, _ := slices.BinarySearch(l.positions[start:], pos)
		start += i
	}
	l.index = start
	return l.index < len(l.positions), nil
}

func (l *PositionSlice) Position() uint32 { return l.positions[l.index] }
func (l *PositionSlice) Count() int       { return len(l.positions) }

func (l *PositionSlice) Close() error {
	l.positions = nil
	return nil
}

var (
	_ TermList     = (*VectorTermList)(nil)
	_ PositionList = (*PositionSlice)(nil)
)
