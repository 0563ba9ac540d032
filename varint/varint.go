// Package varint implements the QUIC RFC 9000 §16 variable-length integer
// encoding used for every QSF frame header field. The high two bits of the
// first byte select a width of 1, 2, 4, or 8 bytes; the remaining bits (plus
// any following bytes) are a big-endian value of 6, 14, 30, or 62 bits.
package varint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/qsfio/qsf/qsferr"
)

// MaxValue is the largest value representable (2^62 - 1).
const MaxValue = (uint64(1) << 62) - 1

const (
	tag1B = 0x00
	tag2B = 0x40
	tag4B = 0x80
	tag8B = 0xc0

	tagMask = 0xc0
)

const (
	threshold1B = uint64(1) << 6
	threshold2B = uint64(1) << 14
	threshold4B = uint64(1) << 30
)

// Width returns the minimum byte width needed to encode n.
func Width(n uint64) int {
	switch {
	case n < threshold1B:
		return 1
	case n < threshold2B:
		return 2
	case n < threshold4B:
		return 4
	default:
		return 8
	}
}

// Encode returns the minimal-width varint encoding of n.
func Encode(n uint64) ([]byte, error) {
	if n > MaxValue {
		return nil, qsferr.New(qsferr.ValueOutOfRange, "value %d exceeds 62-bit varint maximum", n)
	}
	switch Width(n) {
	case 1:
		return []byte{tag1B | byte(n)}, nil
	case 2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(n))
		buf[0] |= tag2B
		return buf, nil
	case 4:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n))
		buf[0] |= tag4B
		return buf, nil
	default:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n)
		buf[0] |= tag8B
		return buf, nil
	}
}

// MustEncode panics on error; useful for encoding values already known to be
// in range (e.g. frame type codes).
func MustEncode(n uint64) []byte {
	b, err := Encode(n)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode reads one varint starting at buf[0], returning the value and the
// number of bytes consumed.
func Decode(buf []byte) (value uint64, consumed int, err error) {
	if len(buf) == 0 {
		return 0, 0, qsferr.New(qsferr.Truncated, "varint: empty buffer")
	}
	width := widthFromTag(buf[0])
	if len(buf) < width {
		return 0, 0, qsferr.New(qsferr.Truncated, "varint: need %d bytes, have %d", width, len(buf))
	}
	tmp := make([]byte, width)
	copy(tmp, buf[:width])
	tmp[0] &^= tagMask
	switch width {
	case 1:
		return uint64(tmp[0]), 1, nil
	case 2:
		return uint64(binary.BigEndian.Uint16(tmp)), 2, nil
	case 4:
		return uint64(binary.BigEndian.Uint32(tmp)), 4, nil
	default:
		return binary.BigEndian.Uint64(tmp), 8, nil
	}
}

// ReadFrom reads one varint directly from r, the streaming counterpart to
// Decode used by the byte-to-frame reader stage: a clean io.EOF before any
// byte is read signals end-of-stream, but an io.EOF partway through the
// width-determined byte count is a fatal Truncated error.
func ReadFrom(r io.Reader) (uint64, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, qsferr.Wrap(qsferr.Truncated, err, "varint: read first byte")
	}
	width := widthFromTag(first[0])
	buf := make([]byte, width)
	buf[0] = first[0]
	if width > 1 {
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return 0, qsferr.Wrap(qsferr.Truncated, err, "varint: need %d bytes", width)
		}
	}
	buf[0] &^= tagMask
	switch width {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(buf)), nil
	default:
		return binary.BigEndian.Uint64(buf), nil
	}
}

func widthFromTag(b byte) int {
	switch b & tagMask {
	case tag1B:
		return 1
	case tag2B:
		return 2
	case tag4B:
		return 4
	default:
		return 8
	}
}

// widthTag returns the "1B"|"2B"|"4B"|"8B" tag for an already-computed width.
func widthTag(width int) string {
	switch width {
	case 1:
		return "1B"
	case 2:
		return "2B"
	case 4:
		return "4B"
	default:
		return "8B"
	}
}

// Object is the self-describing manifest form of a varint: a width tag plus
// a hex string value, used so identifiers embedded in JSON manifests are
// unambiguous regardless of the host's native integer precision.
type Object struct {
	F string `json:"f" cbor:"f"`
	V string `json:"v" cbor:"v"`
}

// ToObject converts n to its Object form.
func ToObject(n uint64) Object {
	return Object{F: widthTag(Width(n)), V: fmt.Sprintf("0x%x", n)}
}

// FromObject parses an Object back into a uint64. It validates that F
// matches the value's natural width tag is not required (a caller may have
// produced the object with a wider-than-minimal tag); only V is decoded.
func FromObject(o Object) (uint64, error) {
	hexPart := o.V
	if len(hexPart) >= 2 && (hexPart[0:2] == "0x" || hexPart[0:2] == "0X") {
		hexPart = hexPart[2:]
	}
	if len(hexPart)%2 == 1 {
		hexPart = "0" + hexPart
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return 0, qsferr.Wrap(qsferr.ValueOutOfRange, err, "varint object: invalid hex value %q", o.V)
	}
	if len(raw) > 8 {
		return 0, qsferr.New(qsferr.ValueOutOfRange, "varint object: value %q too wide", o.V)
	}
	var padded [8]byte
	copy(padded[8-len(raw):], raw)
	return binary.BigEndian.Uint64(padded[:]), nil
}

// IsWellFormed reports whether o carries a recognized width tag and a
// parseable hex value, without exposing the decoded value. Used by the
// manifest structural-match check (manifest.Parse), which only needs to know
// the shape is a valid VarintObject, not its numeric value.
func IsWellFormed(o Object) bool {
	switch o.F {
	case "1B", "2B", "4B", "8B":
	default:
		return false
	}
	_, err := FromObject(o)
	return err == nil
}
