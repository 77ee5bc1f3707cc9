package iterator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/glass"
)

type countingTerms struct {
	*VectorTermList
	closed int
}

func (l *countingTerms) Close() error {
	l.closed++
	return l.VectorTermList.Close()
}

func terms(t *testing.T, it *TermIterator) (out []string) {
	t.Helper()
	for !it.End() {
		term, err := it.Term()
		require.NoError(t, err)
		out = append(out, term)
		require.NoError(t, it.Next())
	}
	return
}

func TestTermIteratorCopies(t *testing.T) {
	list := &countingTerms{VectorTermList: NewVectorTermList([]string{"b", "a", "c"})}
	it, err := NewTermIterator(list)
	require.NoError(t, err)

	alias := it.Clone()
	require.True(t, it == alias)
	require.True(t, it.Equal(alias))
	require.False(t, it.Equal(TermEnd))

	require.Equal(t, []string{"b", "a", "c"}, terms(t, &it))
	require.True(t, it == TermEnd)
	require.Zero(t, list.closed, "alias still holds the list")

	require.True(t, alias.End())
	require.True(t, alias.Equal(TermEnd))
	require.True(t, alias.Equal(it))
	_, err = alias.Term()
	require.ErrorIs(t, err, ErrAtEnd)

	require.NoError(t, alias.Next())
	require.True(t, alias == TermEnd)
	require.True(t, alias == it)
	require.Equal(t, 1, list.closed)
}

func TestLoopOnExhaustedClone(t *testing.T) {
	list := &countingTerms{VectorTermList: NewVectorTermList([]string{"x", "y"})}
	it, err := NewTermIterator(list)
	require.NoError(t, err)
	alias := it.Clone()

	require.Equal(t, []string{"x", "y"}, terms(t, &it))
	require.True(t, alias != TermEnd)
	require.True(t, alias.End())
	require.True(t, alias.Equal(TermEnd))
	require.Empty(t, terms(t, &alias))

	require.Zero(t, list.closed)
	require.NoError(t, alias.Close())
	require.Equal(t, 1, list.closed)
}

func TestTermIteratorClose(t *testing.T) {
	list := &countingTerms{VectorTermList: NewVectorTermList([]string{"x", "y"})}
	it, err := NewTermIterator(list)
	require.NoError(t, err)

	alias := it.Clone()
	require.NoError(t, it.Close())
	require.True(t, it == TermEnd)
	require.Zero(t, list.closed)

	term, err := alias.Term()
	require.NoError(t, err)
	require.Equal(t, "x", term)
	require.NoError(t, alias.Close())
	require.Equal(t, 1, list.closed)
	require.NoError(t, alias.Close())
	require.Equal(t, 1, list.closed)
}

func TestEndHandle(t *testing.T) {
	var it TermIterator
	require.True(t, it == TermEnd)
	require.True(t, it.End())

	_, err := it.Term()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)
	_, err = it.Wdf()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)
	require.ErrorIs(t, it.Next(), glass.ErrInvalidOperation)
	require.ErrorIs(t, it.SkipTo("a"), glass.ErrInvalidOperation)
	_, err = it.PositionListBegin()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)

	require.True(t, it.Clone() == TermEnd)
	require.NoError(t, it.Close())
	require.Equal(t, "TermIterator(end)", it.String())

	var pos PositionIterator
	_, err = pos.Position()
	require.ErrorIs(t, err, ErrAtEnd)
	require.ErrorIs(t, pos.SkipTo(3), ErrAtEnd)
}

func TestEmptyList(t *testing.T) {
	list := &countingTerms{VectorTermList: NewVectorTermList(nil)}
	it, err := NewTermIterator(list)
	require.NoError(t, err)
	require.True(t, it == TermEnd)
	require.Equal(t, 1, list.closed)

	pos, err := NewPositionIterator(NewPositionSlice(nil))
	require.NoError(t, err)
	require.True(t, pos == PositionEnd)
}

func TestPositionSkipTo(t *testing.T) {
	it, err := NewPositionIterator(NewPositionSlice([]uint32{3, 7, 12}))
	require.NoError(t, err)

	require.NoError(t, it.SkipTo(5))
	pos, err := it.Position()
	require.NoError(t, err)
	require.Equal(t, uint32(7), pos)

	// never backwards
	require.NoError(t, it.SkipTo(1))
	pos, _ = it.Position()
	require.Equal(t, uint32(7), pos)

	require.NoError(t, it.SkipTo(12))
	pos, _ = it.Position()
	require.Equal(t, uint32(12), pos)

	require.NoError(t, it.SkipTo(13))
	require.True(t, it == PositionEnd)
}

func TestUnsortedSkipTo(t *testing.T) {
	it, err := NewTermIterator(NewVectorTermList([]string{"m", "c", "x"}))
	require.NoError(t, err)
	defer it.Close()
	require.NoError(t, it.Next())

	err = it.SkipTo("d")
	require.ErrorIs(t, err, ErrUnsorted)
	require.ErrorIs(t, err, glass.ErrInvalidOperation)

	term, err := it.Term()
	require.NoError(t, err)
	require.Equal(t, "c", term)
	require.Equal(t, []string{"c", "x"}, terms(t, &it))
}

func TestVectorTermList(t *testing.T) {
	it, err := NewTermIterator(NewVectorTermList([]string{"only"}))
	require.NoError(t, err)
	defer it.Close()

	wdf, err := it.Wdf()
	require.NoError(t, err)
	require.Equal(t, uint32(1), wdf)
	_, err = it.TermFreq()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)
	_, err = it.PositionListCount()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)
	_, err = it.PositionListBegin()
	require.ErrorIs(t, err, glass.ErrInvalidOperation)
}

func TestCollect(t *testing.T) {
	it, err := NewPositionIterator(NewPositionSlice([]uint32{1, 4, 9, 16}))
	require.NoError(t, err)
	require.NoError(t, it.Next())
	alias := it.Clone()

	positions, err := it.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint32{4, 9, 16}, positions)
	require.True(t, it == PositionEnd)
	require.True(t, alias.End())
	require.NoError(t, alias.Close())
}

type postings struct {
	ids   []uint32
	index int
}

func (l *postings) Next() (bool, error) {
	l.index++
	return l.index < len(l.ids), nil
}

func (l *postings) SkipTo(id uint32) (bool, error) {
	l.index = max(l.index, 0)
	for l.index < len(l.ids) && l.ids[l.index] < id {
		l.index++
	}
	return l.index < len(l.ids), nil
}

func (l *postings) DocID() uint32        { return l.ids[l.index] }
func (l *postings) Wdf() (uint32, error) { return l.ids[l.index] % 3, nil }
func (l *postings) Close() error         { return nil }

func (l *postings) PositionList() (PositionList, error) {
	return NewPositionSlice([]uint32{l.ids[l.index], l.ids[l.index] * 2}), nil
}

func TestPostingIterator(t *testing.T) {
	it, err := NewPostingIterator(&postings{ids: []uint32{2, 5, 8, 40}, index: -1})
	require.NoError(t, err)

	id, err := it.DocID()
	require.NoError(t, err)
	require.Equal(t, uint32(2), id)
	wdf, err := it.Wdf()
	require.NoError(t, err)
	require.Equal(t, uint32(2), wdf)

	require.NoError(t, it.SkipTo(6))
	id, _ = it.DocID()
	require.Equal(t, uint32(8), id)

	pos, err := it.PositionListBegin()
	require.NoError(t, err)
	positions, err := pos.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint32{8, 16}, positions)

	require.NoError(t, it.Next())
	id, _ = it.DocID()
	require.Equal(t, uint32(40), id)
	require.NoError(t, it.Next())
	require.True(t, it == PostingEnd)
}

type failing struct {
	*VectorTermList
	fail bool
}

var errRead = errors.New("read failed")

func (l *failing) Next() (bool, error) {
	if l.fail {
		return false, errRead
	}
	return l.VectorTermList.Next()
}

func TestNextError(t *testing.T) {
	list := &failing{VectorTermList: NewVectorTermList([]string{"a", "b"})}
	it, err := NewTermIterator(list)
	require.NoError(t, err)
	defer it.Close()

	list.fail = true
	require.ErrorIs(t, it.Next(), errRead)
	require.False(t, it.End())
	term, err := it.Term()
	require.NoError(t, err)
	require.Equal(t, "a", term)
}

func ExampleTermIterator() {
	it, _ := NewTermIterator(NewVectorTermList([]string{"quick", "brown", "fox"}))
	for !it.End() {
		term, _ := it.Term()
		fmt.Println(term)
		it.Next()
	}
	// Output:
	// quick
	// brown
	// fox
}
