// Package benchmark compares the runtime's building blocks with each other
// and with plain goroutines and channels.
package benchmark

import "strconv"

// sizeLabel returns a readable label for benchmark sizes.
func sizeLabel(size int) string {
	switch {
	case size >= 10000:
		return "10k"
	case size >= 1000:
		return "1k"
	case size >= 100:
		return "100"
	default:
		return "10"
	}
}

// contentionLabel returns a label for a number of concurrent producers.
func contentionLabel(level int) string {
	return strconv.Itoa(level) + "producers"
}

// threadLabel returns a label for a pool capacity.
func threadLabel(threads int) string {
	return strconv.Itoa(threads) + "threads"
}
