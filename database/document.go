package database

import (
	"maps"
	"slices"
)

// Document is the indexed form of a document: its terms, each with a
// within-document frequency and, optionally, the positions it occurs at.
type Document struct {
	terms map[string]*docTerm
}

type docTerm struct {
	wdf       uint32
	positions []uint32
}

func NewDocument() *Document {
	return &Document{terms: make(map[string]*docTerm)}
}

func (d *Document) term(term string) *docTerm {
	t, ok := d.terms[term]
	if !ok {
		t = new(docTerm)
		d.terms[term] = t
	}
	return t
}

// AddTerm adds term without position, increasing its wdf by wdf.
func (d *Document) AddTerm(term string, wdf uint32) {
	d.term(term).wdf += wdf
}

// AddPosting adds an occurrence of term at pos, increasing its wdf by wdf.
func (d *Document) AddPosting(term string, pos uint32, wdf uint32) {
	t := d.term(term)
	t.wdf += wdf
	if i, found := slices.BinarySearch(t.positions, pos); !found {
		t.positions = slices.Insert(t.positions, i, pos)
	}
}

// RemoveTerm removes term and its positions.
func (d *Document) RemoveTerm(term string) {
	delete(d.terms, term)
}

// Terms returns the terms of d in ascending order.
func (d *Document) Terms() []string {
	return slices.Sorted(maps.Keys(d.terms))
}

// Wdf returns the within-document frequency of term.
func (d *Document) Wdf(term string) uint32 {
	if t, ok := d.terms[term]; ok {
		return t.wdf
	}
	return 0
}

// Positions returns the positions of term in ascending order.
func (d *Document) Positions(term string) []uint32 {
	if t, ok := d.terms[term]; ok {
		return slices.Clone(t.positions)
	}
	return nil
}

// Length returns the sum of the wdfs of all terms.
func (d *Document) Length() (length uint64) {
	for _, t := range d.terms {
		length += uint64(t.wdf)
	}
	return
}

func (d *Document) positional() bool {
	for _, t := range d.terms {
		if len(t.positions) > 0 {
			return true
		}
	}
	return false
}
