// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"errors"
	"fmt"

	"github.com/dacapoday/glass"
)

var (
	ErrClosed           = glass.ErrClosed
	ErrReadOnly         = glass.ErrReadOnly
	ErrUnknownMagicCode = glass.ErrUnknownMagicCode
	ErrFileTruncated    = glass.ErrFileTruncated
	ErrInvalidBlockSize = glass.ErrInvalidBlockSize

	ErrInvalidMeta     = fmt.Errorf("%w: invalid meta", glass.ErrCorruption)
	ErrInvalidFreelist = fmt.Errorf("%w: invalid freelist", glass.ErrCorruption)
	ErrFileEmpty       = errors.New("file empty")
	ErrOutOfRange      = errors.New("block out of range")
	ErrEntryTooLarge   = errors.New("entry too large")
)
