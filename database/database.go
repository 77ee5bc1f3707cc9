// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package database stores an inverted index in three tables of one
// directory and hands out term, posting and position iterators over them.
//
// The postlist table maps each term to its frequencies and postings, the
// termlist table maps each document to its terms, and the position table,
// created on the first document that carries positions, holds the positions
// of each term in each document.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dacapoday/glass"
	"github.com/dacapoday/glass/internal/logger"
	"github.com/dacapoday/glass/table"
)

var ErrDocNotFound = errors.New("glass: document not found")

const (
	postlistFile = "postlist.glass"
	termlistFile = "termlist.glass"
	positionFile = "position.glass"
)

// Database is a handle on an index directory. Iterators may be used from
// any goroutine; writes are serialized.
type Database struct {
	dir  string
	opts table.Options
	log  *slog.Logger

	postlist *table.Table
	termlist *table.Table
	position *table.Table

	mutex sync.Mutex
	stats stats
}

func newDatabase(dir string, opts table.Options) *Database {
	if opts.FS == nil {
		opts.FS = glass.OS
	}
	log := logger.Or(opts.Logger, "database").With("dir", dir)
	topts := opts
	topts.Logger = log
	return &Database{
		dir:      dir,
		opts:     opts,
		log:      log,
		postlist: table.New("postlist", filepath.Join(dir, postlistFile), topts),
		termlist: table.New("termlist", filepath.Join(dir, termlistFile), topts),
		position: table.NewLazy("position", filepath.Join(dir, positionFile), topts),
	}
}

func (db *Database) tables() []*table.Table {
	return []*table.Table{db.postlist, db.termlist, db.position}
}

// Create creates an empty database in dir, replacing any database there.
func Create(dir string, opts table.Options) (*Database, error) {
	if opts.ReadOnly {
		return nil, fmt.Errorf("create %s: %w", dir, glass.ErrReadOnly)
	}
	db := newDatabase(dir, opts)
	if err := db.opts.FS.MkdirAll(dir); err != nil {
		return nil, &glass.Error{Kind: glass.ErrStorageIO, Op: "create", Err: err}
	}

	g := new(errgroup.Group)
	g.Go(db.postlist.Create)
	g.Go(db.termlist.Create)
	g.Go(db.position.EraseTable)
	if err := g.Wait(); err != nil {
		db.Close()
		return nil, err
	}
	db.log.Debug("created database")
	return db, nil
}

// Open opens the database in dir. The position table may be absent.
func Open(dir string, opts table.Options) (*Database, error) {
	db := newDatabase(dir, opts)

	g := new(errgroup.Group)
	for _, t := range db.tables() {
		g.Go(t.Open)
	}
	err := g.Wait()
	if err == nil {
		err = db.loadStats()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	db.log.Debug("opened database",
		"documents", db.stats.docCount,
		"revision", db.postlist.Revision())
	return db, nil
}

func (db *Database) loadStats() error {
	val, found, err := db.postlist.Get(statsKey)
	if err != nil {
		return err
	}
	if !found {
		db.stats = stats{}
		return nil
	}
	s, err := decodeStats(val)
	if err != nil {
		return glass.WithTable(err, db.postlist.Name())
	}
	db.stats = s
	return nil
}

// Close closes the tables. Iterators still open fail on their next read.
func (db *Database) Close() error {
	var errs []error
	for _, t := range db.tables() {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

func (db *Database) Dir() string { return db.dir }

// DocCount returns the number of documents, including staged changes.
func (db *Database) DocCount() uint32 {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.stats.docCount
}

// LastDocID returns the highest document id ever assigned.
func (db *Database) LastDocID() uint32 {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.stats.lastDocID
}

// AvgLength returns the mean document length.
func (db *Database) AvgLength() float64 {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.stats.docCount == 0 {
		return 0
	}
	return float64(db.stats.totalLength) / float64(db.stats.docCount)
}

// TermFreq returns the number of documents indexed by term and the total
// number of its occurrences.
func (db *Database) TermFreq(term string) (termFreq uint32, collFreq uint64, err error) {
	if err = validTerm(term); err != nil {
		return
	}
	val, found, err := db.postlist.Get(termKey(term))
	if err != nil || !found {
		return
	}
	f, err := decodeTermFreqs(val)
	return f.termFreq, f.collFreq, err
}

// DocLength returns the length of document id.
func (db *Database) DocLength(id uint32) (uint64, error) {
	val, found, err := db.termlist.Get(docKey(id))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("document %d: %w", id, ErrDocNotFound)
	}
	info, err := decodeDocInfo(val)
	return info.length, err
}

// HasPositions reports whether the position table exists.
func (db *Database) HasPositions() bool {
	return db.position.Materialized()
}

// Revision returns the revision of the postlist table, which every commit
// advances.
func (db *Database) Revision() uint32 {
	return db.postlist.Revision()
}

// Check verifies the structure of every table.
func (db *Database) Check(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range db.tables() {
		g.Go(func() error { return t.Check(ctx) })
	}
	return g.Wait()
}

// AddDocument stages doc under the next free id.
func (db *Database) AddDocument(doc *Document) (id uint32, err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.stats.lastDocID == math.MaxUint32 {
		return 0, fmt.Errorf("add document: %w: document ids exhausted", glass.ErrInvalidOperation)
	}
	id = db.stats.lastDocID + 1
	if err = db.add(id, doc); err != nil {
		return 0, err
	}
	return id, nil
}

// ReplaceDocument stages doc under id, replacing the document there if any.
func (db *Database) ReplaceDocument(id uint32, doc *Document) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if id == 0 {
		return fmt.Errorf("replace document: %w: document id 0", glass.ErrInvalidOperation)
	}
	if err := db.remove(id); err != nil && !errors.Is(err, ErrDocNotFound) {
		return err
	}
	return db.add(id, doc)
}

// DeleteDocument stages the removal of document id.
func (db *Database) DeleteDocument(id uint32) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.remove(id)
}

func (db *Database) add(id uint32, doc *Document) error {
	terms := doc.Terms()
	for _, term := range terms {
		if err := validTerm(term); err != nil {
			return fmt.Errorf("add document %d: %w", id, err)
		}
	}
	if doc.positional() && !db.position.Materialized() {
		if err := db.position.CreateAndOpen(db.opts.Flags, db.opts.BlockSize); err != nil {
			return err
		}
		db.log.Debug("created position table")
	}

	for _, term := range terms {
		t := doc.terms[term]
		if err := db.adjust(term, 1, int64(t.wdf)); err != nil {
			return err
		}
		if err := db.postlist.Put(postingKey(term, id), encodeWdf(t.wdf)); err != nil {
			return err
		}
		if err := db.termlist.Put(docTermKey(id, term), encodeWdf(t.wdf)); err != nil {
			return err
		}
		if len(t.positions) > 0 {
			if err := db.position.Put(docTermKey(id, term), encodePositions(t.positions)); err != nil {
				return err
			}
		}
	}

	length := doc.Length()
	info := docInfo{length: length, terms: uint32(len(terms))}
	if err := db.termlist.Put(docKey(id), info.encode()); err != nil {
		return err
	}
	db.stats.docCount++
	db.stats.totalLength += length
	db.stats.lastDocID = max(db.stats.lastDocID, id)
	return db.postlist.Put(statsKey, db.stats.encode())
}

func (db *Database) remove(id uint32) error {
	v, err := db.termlist.View()
	if err != nil {
		return err
	}
	defer v.Close()

	prefix := docKey(id)
	if !v.Seek(prefix) || string(v.Key()) != string(prefix) {
		if err = v.Err(); err == nil {
			err = fmt.Errorf("document %d: %w", id, ErrDocNotFound)
		}
		return err
	}
	info, err := decodeDocInfo(v.Value())
	if err != nil {
		return err
	}

	type entry struct {
		term string
		wdf  uint32
	}
	var entries []entry
	for v.Next() && len(v.Key()) > len(prefix) && string(v.Key()[:len(prefix)]) == string(prefix) {
		wdf, err := decodeWdf(v.Value())
		if err != nil {
			return err
		}
		entries = append(entries, entry{string(v.Key()[len(prefix):]), wdf})
	}
	if err = v.Err(); err != nil {
		return err
	}

	positions := db.position.Materialized()
	for _, e := range entries {
		if err = db.adjust(e.term, -1, -int64(e.wdf)); err != nil {
			return err
		}
		if err = db.postlist.Erase(postingKey(e.term, id)); err != nil {
			return err
		}
		if err = db.termlist.Erase(docTermKey(id, e.term)); err != nil {
			return err
		}
		if positions {
			if err = db.position.Erase(docTermKey(id, e.term)); err != nil {
				return err
			}
		}
	}
	if err = db.termlist.Erase(prefix); err != nil {
		return err
	}
	db.stats.docCount--
	db.stats.totalLength -= min(info.length, db.stats.totalLength)
	return db.postlist.Put(statsKey, db.stats.encode())
}

// adjust applies a change in document count and occurrences to the
// frequencies of term, erasing them when no document remains.
func (db *Database) adjust(term string, docs int64, occurrences int64) error {
	key := termKey(term)
	val, found, err := db.postlist.Get(key)
	if err != nil {
		return err
	}
	var f termFreqs
	if found {
		if f, err = decodeTermFreqs(val); err != nil {
			return glass.WithTable(err, db.postlist.Name())
		}
	}
	tf := int64(f.termFreq) + docs
	cf := int64(f.collFreq) + occurrences
	if tf <= 0 {
		return db.postlist.Erase(key)
	}
	return db.postlist.Put(key, termFreqs{termFreq: uint32(tf), collFreq: uint64(max(cf, 0))}.encode())
}

// Commit publishes staged changes in every table as new revisions labeled
// with label.
func (db *Database) Commit(label string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	g := new(errgroup.Group)
	for _, t := range db.tables() {
		g.Go(func() error { return t.Commit(label) })
	}
	if err := g.Wait(); err != nil {
		db.log.Debug("commit failed", "error", err)
		return err
	}
	db.log.Debug("committed",
		"revision", db.postlist.Revision(),
		"documents", db.stats.docCount,
		"label", label)
	return nil
}

// Cancel discards staged changes.
func (db *Database) Cancel() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, t := range db.tables() {
		t.Cancel()
	}
	return db.loadStats()
}
