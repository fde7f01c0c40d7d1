package vless

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	C "github.com/FarelRA/underpass/constant"
)

const testUUID = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"

func uuidBytes(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 16)
	hex := "a1b2c3d4e5f64a7b8c9d0e1f2a3b4c5d"
	for i := 0; i < 16; i++ {
		hi := fromHex(hex[i*2])
		lo := fromHex(hex[i*2+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func buildChunk(t *testing.T, command byte, atype byte, addr []byte, port uint16, payload []byte) []byte {
	t.Helper()
	buf := []byte{0x00}
	buf = append(buf, uuidBytes(t)...)
	buf = append(buf, 0x00) // addons_len
	buf = append(buf, command)
	buf = append(buf, byte(port>>8), byte(port&0xff))
	buf = append(buf, atype)
	buf = append(buf, addr...)
	buf = append(buf, payload...)
	return buf
}

func TestParseHeaderDomainTCP(t *testing.T) {
	domain := "example.com"
	addr := append([]byte{byte(len(domain))}, domain...)
	chunk := buildChunk(t, 0x01, 0x02, addr, 443, []byte("GET / HTTP/1.1\r\n"))

	h, payload, err := ParseHeader(chunk, testUUID)
	require.NoError(t, err)
	require.Equal(t, CommandTCP, h.Command)
	require.Equal(t, "example.com", h.Address)
	require.Equal(t, uint16(443), h.Port)
	require.Equal(t, len(chunk)-len(payload), h.RawDataOffset)
	require.Equal(t, "GET / HTTP/1.1\r\n", string(payload))
	require.Equal(t, []byte{0x00, 0x00}, h.Preamble())
}

func TestParseHeaderIPv4(t *testing.T) {
	chunk := buildChunk(t, 0x01, 0x01, []byte{8, 8, 8, 8}, 53, nil)

	h, payload, err := ParseHeader(chunk, testUUID)
	require.NoError(t, err)
	require.Equal(t, "8.8.8.8", h.Address)
	require.Equal(t, uint16(53), h.Port)
	require.Empty(t, payload)
}

func TestParseHeaderIPv6(t *testing.T) {
	addr := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	chunk := buildChunk(t, 0x01, 0x03, addr, 8080, nil)

	h, _, err := ParseHeader(chunk, testUUID)
	require.NoError(t, err)
	require.Equal(t, "[2001:0db8:0000:0000:0000:0000:0000:0001]", h.Address)
	require.Equal(t, "[2001:0db8:0000:0000:0000:0000:0000:0001]:8080", h.Destination())
}

func TestParseHeaderBadUUID(t *testing.T) {
	domain := "example.com"
	addr := append([]byte{byte(len(domain))}, domain...)
	chunk := buildChunk(t, 0x01, 0x02, addr, 443, nil)
	// corrupt the uuid bytes in place
	chunk[1] ^= 0xff

	_, _, err := ParseHeader(chunk, testUUID)
	require.Error(t, err)
	require.True(t, errors.Is(err, C.ErrUnauthorized))
}

func TestParseHeaderTooShort(t *testing.T) {
	_, _, err := ParseHeader(make([]byte, 10), testUUID)
	require.Error(t, err)
	require.True(t, errors.Is(err, C.ErrBadRequest))
}

func TestParseHeaderInvalidCommand(t *testing.T) {
	chunk := buildChunk(t, 0x03, 0x01, []byte{1, 1, 1, 1}, 80, nil)
	_, _, err := ParseHeader(chunk, testUUID)
	require.Error(t, err)
	require.True(t, errors.Is(err, C.ErrBadRequest))
}

func TestParseHeaderInvalidAddressType(t *testing.T) {
	chunk := buildChunk(t, 0x01, 0x09, []byte{1, 1, 1, 1}, 80, nil)
	_, _, err := ParseHeader(chunk, testUUID)
	require.Error(t, err)
	require.True(t, errors.Is(err, C.ErrBadRequest))
}

func TestParseHeaderEmptyDomain(t *testing.T) {
	chunk := buildChunk(t, 0x01, 0x02, []byte{0x00}, 80, nil)
	_, _, err := ParseHeader(chunk, testUUID)
	require.Error(t, err)
	require.True(t, errors.Is(err, C.ErrBadRequest))
}

func TestFormatUUIDRoundTrip(t *testing.T) {
	b := uuidBytes(t)
	require.Equal(t, testUUID, formatUUID(b))
	require.True(t, validUUID(formatUUID(b)))
}
