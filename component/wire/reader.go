package wire

import (
	"bytes"
	"io"
)

// SequentialReader chains a buffered remainder in front of a live
// stream so a caller that already consumed part of the first chunk
// (parsing a header out of it) can hand the rest straight to a
// generic copy loop instead of special-casing the first read. An
// empty buffered slice collapses to next unchanged.
func SequentialReader(buffered []byte, next io.Reader) io.Reader {
	if len(buffered) == 0 {
		return next
	}
	return io.MultiReader(bytes.NewReader(buffered), next)
}
