//go:build !debug

package heap

func assertBlockID(string, BlockID, uint32) {}
