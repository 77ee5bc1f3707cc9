// Package atom holds the current revision of a copy-on-write structure.
//
// A revision is a value paired with the checkpoint that keeps the blocks it
// references alive. Readers pin a revision with Acquire; the single writer
// publishes a new one with Swap. Releasing the checkpoint invalidates the
// value.
package atom

import (
	"sync"

	"github.com/dacapoday/glass"
)

var ErrClosed = glass.ErrClosed

// Checkpoint extends glass.Checkpoint with comparable constraint.
type Checkpoint = interface {
	comparable
	glass.Checkpoint
}

// Atom manages checkpoint and value.
//
// Zero value is closed. Call Load to initialize.
type Atom[V any, C Checkpoint] struct {
	val   V
	ckpt  C
	view  sync.RWMutex
	mutex sync.Mutex
}

// Load initializes Atom with value and checkpoint.
// Replaces any existing state without releasing old checkpoint.
func (a *Atom[V, C]) Load(val V, ckpt C) {
	a.mutex.Lock()
	a.view.Lock()
	a.val, a.ckpt = val, ckpt
	a.view.Unlock()
	a.mutex.Unlock()
}

// Close releases checkpoint.
// No-op if already closed.
func (a *Atom[V, C]) Close() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.view.Lock()
	defer a.view.Unlock()

	var nilCkpt C
	if a.ckpt == nilCkpt {
		return
	}
	a.ckpt.Release()
	a.ckpt = nilCkpt

	var nilVal V
	a.val = nilVal
}

// Acquire returns current value and acquired checkpoint for reading.
// Returns zero values if closed.
//
// Important: Caller must call ckpt.Release() when done.
func (a *Atom[V, C]) Acquire() (val V, ckpt C) {
	a.view.RLock()
	var nilCkpt C
	if ckpt = a.ckpt; ckpt != nilCkpt {
		ckpt.Acquire()
		val = a.val
	}
	a.view.RUnlock()
	return
}

// Value returns the current value without pinning it. Only the writer,
// which is the one that can replace the value, may rely on it.
func (a *Atom[V, C]) Value() (val V, ok bool) {
	a.view.RLock()
	var nilCkpt C
	if ok = a.ckpt != nilCkpt; ok {
		val = a.val
	}
	a.view.RUnlock()
	return
}

// Swap atomically updates value and checkpoint via callback.
//
// On success, switches to new state, releases old checkpoint.
// On error, state unchanged.
func (a *Atom[V, C]) Swap(swap func(val V) (newVal V, newCkpt C, err error)) (err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	oldCkpt := a.ckpt
	var nilCkpt C
	if oldCkpt == nilCkpt {
		return ErrClosed
	}

	newVal, newCkpt, err := swap(a.val)
	if err != nil {
		return
	}

	a.view.Lock()
	a.val = newVal
	a.ckpt = newCkpt
	a.view.Unlock()

	oldCkpt.Release()
	return
}
