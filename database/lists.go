package database

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/iterator"
	"github.com/dacapoday/glass/table"
)

var errNoPositions = fmt.Errorf("%w: term enumeration has no positions", glass.ErrInvalidOperation)

// lookup positions c on key and returns its value when present.
func lookup(c *table.Cursor, key []byte) ([]byte, bool, error) {
	if !c.FindEntryGE(key) {
		return nil, false, c.Err()
	}
	val := c.Value()
	return val, val != nil, c.Err()
}

func openCursors(tables ...*table.Table) ([]*table.Cursor, error) {
	cursors := make([]*table.Cursor, 0, len(tables))
	for _, t := range tables {
		c, err := t.Cursor()
		if err != nil {
			closeCursors(cursors...)
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return cursors, nil
}

func closeCursors(cursors ...*table.Cursor) {
	for _, c := range cursors {
		c.Close()
	}
}

func positionList(pos *table.Cursor, key []byte) (iterator.PositionList, error) {
	val, found, err := lookup(pos, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return iterator.NewPositionSlice(nil), nil
	}
	positions, err := decodePositions(val)
	if err != nil {
		return nil, glass.WithTable(err, "position")
	}
	return iterator.NewPositionSlice(positions), nil
}

// docTermList walks the terms of one document in the termlist table.
type docTermList struct {
	terms, post, pos *table.Cursor

	prefix  []byte
	started bool
}

func (l *docTermList) valid() (bool, error) {
	key := l.terms.Key()
	ok := l.terms.Valid() && len(key) > len(l.prefix) && bytes.HasPrefix(key, l.prefix)
	return ok, l.terms.Err()
}

func (l *docTermList) Next() (bool, error) {
	if !l.started {
		l.started = true
		if !l.terms.FindEntryGE(l.prefix) {
			return false, l.terms.Err()
		}
	}
	l.terms.Next()
	return l.valid()
}

func (l *docTermList) SkipTo(term string) (bool, error) {
	target := append(bytes.Clone(l.prefix), term...)
	if !l.started || bytes.Compare(l.terms.Key(), target) < 0 {
		l.started = true
		l.terms.FindEntryGE(target)
	}
	return l.valid()
}

func (l *docTermList) Term() string {
	return string(l.terms.Key()[len(l.prefix):])
}

func (l *docTermList) Wdf() (uint32, error) {
	wdf, err := decodeWdf(l.terms.Value())
	return wdf, glass.WithKey(glass.WithTable(err, "termlist"), l.terms.Key())
}

func (l *docTermList) TermFreq() (uint32, error) {
	val, found, err := lookup(l.post, termKey(l.Term()))
	if err != nil || !found {
		return 0, err
	}
	f, err := decodeTermFreqs(val)
	return f.termFreq, err
}

func (l *docTermList) PositionListCount() (int, error) {
	val, found, err := lookup(l.pos, l.terms.Key())
	if err != nil || !found {
		return 0, err
	}
	return positionCount(val)
}

func (l *docTermList) PositionList() (iterator.PositionList, error) {
	return positionList(l.pos, l.terms.Key())
}

func (l *docTermList) Close() error {
	closeCursors(l.terms, l.post, l.pos)
	return nil
}

// postingList walks the postings of one term in the postlist table.
type postingList struct {
	post, pos *table.Cursor

	term    string
	prefix  []byte
	started bool
}

func (l *postingList) valid() (bool, error) {
	key := l.post.Key()
	ok := l.post.Valid() && len(key) == len(l.prefix)+4 && bytes.HasPrefix(key, l.prefix)
	return ok, l.post.Err()
}

func (l *postingList) Next() (bool, error) {
	if !l.started {
		return l.SkipTo(0)
	}
	l.post.Next()
	return l.valid()
}

func (l *postingList) SkipTo(id uint32) (bool, error) {
	target := binary.BigEndian.AppendUint32(bytes.Clone(l.prefix), id)
	if !l.started || bytes.Compare(l.post.Key(), target) < 0 {
		l.started = true
		l.post.FindEntryGE(target)
	}
	return l.valid()
}

func (l *postingList) DocID() uint32 {
	return binary.BigEndian.Uint32(l.post.Key()[len(l.prefix):])
}

func (l *postingList) Wdf() (uint32, error) {
	wdf, err := decodeWdf(l.post.Value())
	return wdf, glass.WithKey(glass.WithTable(err, "postlist"), l.post.Key())
}

func (l *postingList) PositionList() (iterator.PositionList, error) {
	return positionList(l.pos, docTermKey(l.DocID(), l.term))
}

func (l *postingList) Close() error {
	closeCursors(l.post, l.pos)
	return nil
}

// allTermsList walks the distinct terms of the postlist table that start
// with prefix, jumping over their postings.
type allTermsList struct {
	post    *table.Cursor
	prefix  []byte
	started bool
}

// settle moves forward to the next frequency entry under prefix.
func (l *allTermsList) settle() (bool, error) {
	for l.post.Valid() {
		key := l.post.Key()
		if !bytes.HasPrefix(key, l.prefix) {
			break
		}
		i := bytes.IndexByte(key, 0)
		if i > 0 && i == len(key)-1 {
			return true, nil
		}
		if i < 0 {
			l.post.Next()
			continue
		}
		l.post.FindEntryGE(append(key[:i:i], 1))
	}
	return false, l.post.Err()
}

func (l *allTermsList) Next() (bool, error) {
	if !l.started {
		l.started = true
		l.post.FindEntryGE(l.prefix)
		return l.settle()
	}
	key := l.post.Key()
	l.post.FindEntryGE(append(key[:len(key)-1:len(key)-1], 1))
	return l.settle()
}

func (l *allTermsList) SkipTo(term string) (bool, error) {
	target := termKey(term)
	if bytes.Compare(target, l.prefix) < 0 {
		target = l.prefix
	}
	if !l.started || bytes.Compare(l.post.Key(), target) < 0 {
		l.started = true
		l.post.FindEntryGE(target)
	}
	return l.settle()
}

func (l *allTermsList) Term() string {
	key := l.post.Key()
	return string(key[:len(key)-1])
}

// Wdf is 0: the list does not belong to a document.
func (l *allTermsList) Wdf() (uint32, error) { return 0, nil }

func (l *allTermsList) TermFreq() (uint32, error) {
	f, err := decodeTermFreqs(l.post.Value())
	return f.termFreq, err
}

func (l *allTermsList) PositionListCount() (int, error) {
	return 0, errNoPositions
}

func (l *allTermsList) PositionList() (iterator.PositionList, error) {
	return nil, errNoPositions
}

func (l *allTermsList) Close() error {
	l.post.Close()
	return nil
}

var (
	_ iterator.TermList    = (*docTermList)(nil)
	_ iterator.TermList    = (*allTermsList)(nil)
	_ iterator.PostingList = (*postingList)(nil)
)

// TermListBegin returns an iterator over the terms of document id in
// ascending order.
func (db *Database) TermListBegin(id uint32) (iterator.TermIterator, error) {
	cursors, err := openCursors(db.termlist, db.postlist, db.position)
	if err != nil {
		return iterator.TermEnd, err
	}
	l := &docTermList{terms: cursors[0], post: cursors[1], pos: cursors[2], prefix: docKey(id)}
	if _, found, err := lookup(l.terms, l.prefix); err != nil || !found {
		l.Close()
		if err == nil {
			err = fmt.Errorf("document %d: %w", id, ErrDocNotFound)
		}
		return iterator.TermEnd, err
	}
	l.terms.Rewind()
	return iterator.NewTermIterator(l)
}

// PostListBegin returns an iterator over the documents indexed by term in
// ascending id order. An unknown term yields PostingEnd.
func (db *Database) PostListBegin(term string) (iterator.PostingIterator, error) {
	if err := validTerm(term); err != nil {
		return iterator.PostingEnd, err
	}
	cursors, err := openCursors(db.postlist, db.position)
	if err != nil {
		return iterator.PostingEnd, err
	}
	return iterator.NewPostingIterator(&postingList{post: cursors[0], pos: cursors[1], term: term, prefix: termKey(term)})
}

// PositionListBegin returns an iterator over the positions of term in
// document id. A term without positions yields PositionEnd.
func (db *Database) PositionListBegin(id uint32, term string) (iterator.PositionIterator, error) {
	if err := validTerm(term); err != nil {
		return iterator.PositionEnd, err
	}
	c, err := db.position.Cursor()
	if err != nil {
		return iterator.PositionEnd, err
	}
	defer c.Close()
	pl, err := positionList(c, docTermKey(id, term))
	if err != nil {
		return iterator.PositionEnd, err
	}
	return iterator.NewPositionIterator(pl)
}

// AllTermsBegin returns an iterator over every indexed term starting with
// prefix, in ascending order.
func (db *Database) AllTermsBegin(prefix string) (iterator.TermIterator, error) {
	if bytes.IndexByte([]byte(prefix), 0) >= 0 {
		return iterator.TermEnd, fmt.Errorf("%w: term prefix contains a zero byte", glass.ErrInvalidOperation)
	}
	c, err := db.postlist.Cursor()
	if err != nil {
		return iterator.TermEnd, err
	}
	return iterator.NewTermIterator(&allTermsList{post: c, prefix: []byte(prefix)})
}
