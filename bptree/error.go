package bptree

import (
	"errors"
	"fmt"

	"github.com/dacapoday/glass"
)

var (
	ErrKeyTooLarge = glass.ErrKeyTooLarge
	ErrEmptyKey    = fmt.Errorf("%w: empty key", glass.ErrInvalidOperation)
	ErrUnsorted    = fmt.Errorf("%w: changes not in ascending key order", glass.ErrInvalidOperation)
)

var null = errors.New("")
var exhausted = errors.New("exhausted")
var unpositioned = errors.New("unpositioned")

func corrupt(blockID BlockID, format string, args ...any) error {
	return &glass.Error{Kind: glass.ErrCorruption, Op: "bptree", BlockID: blockID, Err: fmt.Errorf(format, args...)}
}
