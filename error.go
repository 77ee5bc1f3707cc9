package glass

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrStorageIO        = errors.New("storage i/o error")
	ErrCorruption       = errors.New("corruption")
	ErrTableNotFound    = errors.New("table not found")
	ErrInvalidOperation = errors.New("invalid operation")

	ErrReadOnly         = errors.New("read-only")
	ErrClosed           = errors.New("closed")
	ErrInvalidBlockSize = errors.New("invalid block size")
	ErrKeyTooLarge      = errors.New("key too large")
	ErrUnknownMagicCode = errors.New("unknown magic code")
	ErrFileTruncated    = errors.New("file truncated")
)

// Error carries the context of a failed table operation.
//
// Kind is one of the sentinel errors above, so errors.Is(err, ErrCorruption)
// holds for an *Error of that kind. Err is the underlying cause, if any.
type Error struct {
	Kind    error
	Op      string
	Table   string
	BlockID BlockID
	Key     []byte
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("glass")
	if e.Table != "" {
		b.WriteString(": ")
		b.WriteString(e.Table)
	}
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.BlockID != 0 {
		b.WriteString(" block(")
		b.WriteString(strconv.FormatUint(uint64(e.BlockID), 10))
		b.WriteByte(')')
	}
	if e.Key != nil {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind error, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithTable returns err with the table name attached when err is an *Error
// that has none yet. Other errors are wrapped into an *Error of unknown kind.
func WithTable(err error, table string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Table == "" {
			e.Table = table
		}
		return err
	}
	return &Error{Table: table, Err: err}
}

// WithKey attaches a copy of key to err when err is an *Error without a key.
func WithKey(err error, key []byte) error {
	var e *Error
	if errors.As(err, &e) && e.Key == nil {
		e.Key = append([]byte{}, key...)
	}
	return err
}
