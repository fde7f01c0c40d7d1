// Package wire holds small decoding primitives used by the VLESS
// engine (spec §2.3 "Shared Primitives"): the early-data base64
// alphabet and a sequential buffered-then-live reader. Neither the
// teacher nor the rest of the pack carries anything like this — it is
// grounded directly on spec §2.3 and written in the teacher's terse,
// no-ceremony style for small helpers (see transport/vless/uuid.go).
package wire

import (
	"encoding/base64"
	"strings"
)

// DecodeEarlyData decodes the Sec-WebSocket-Protocol early-data value
// (spec §4.2): URL-safe base64 ('-'/'_' in place of '+'/'/') with
// padding optional. Browsers and VLESS clients alike send this
// unpadded, so padding is restored before handing off to the standard
// decoder rather than reaching for RawURLEncoding, which would reject
// a value padded by a stricter client.
func DecodeEarlyData(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}
