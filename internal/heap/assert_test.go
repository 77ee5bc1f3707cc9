//go:build debug

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssertBlockID(t *testing.T) {
	require.NotPanics(t, func() { assertBlockID("test", 2, 3) })
	require.Panics(t, func() { assertBlockID("test", 1, 3) })
	require.Panics(t, func() { assertBlockID("test", 3, 3) })
}
