package vless

import (
	"regexp"
	"strings"
)

// hexTable is the 256-entry byte→hex lookup spec §4.1 calls for,
// avoiding an allocating fmt.Sprintf per byte on the parse hot path —
// the same "precomputed table over fmt" idiom the teacher's address
// formatting (adapter/outbound/vless.go) uses for wire-level bytes.
var hexTable = func() [256]string {
	const digits = "0123456789abcdef"
	var t [256]string
	for i := 0; i < 256; i++ {
		t[i] = string([]byte{digits[i>>4], digits[i&0xf]})
	}
	return t
}()

// uuidPattern is the canonical UUID shape from spec §4.1/§8: version
// nibble in {1..5}, variant nibble in {8,9,a,b}.
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// formatUUID renders 16 raw bytes as a lowercase hyphenated UUID
// string using the byte→hex table, with no validation.
func formatUUID(b []byte) string {
	var sb strings.Builder
	sb.Grow(36)
	write := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			sb.WriteString(hexTable[b[i]])
		}
	}
	write(0, 4)
	sb.WriteByte('-')
	write(4, 6)
	sb.WriteByte('-')
	write(6, 8)
	sb.WriteByte('-')
	write(8, 10)
	sb.WriteByte('-')
	write(10, 16)
	return sb.String()
}

// validUUID reports whether s has the canonical version/variant shape
// spec §4.1/§8 require.
func validUUID(s string) bool {
	return uuidPattern.MatchString(s)
}
