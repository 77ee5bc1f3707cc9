//go:build debug

package heap

import "fmt"

// assertBlockID panics unless blockID addresses an allocated data block.
// Only enabled with -tags debug.
func assertBlockID(method string, blockID BlockID, count uint32) {
	if blockID < 2 || blockID >= count {
		panic(fmt.Sprintf("%s: blockID %d outside [2, %d)", method, blockID, count))
	}
}
