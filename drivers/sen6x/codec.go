package sen6x

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
)

// Wire framing: a 16-bit big-endian command, then per data word two
// big-endian bytes followed by a CRC-8 over exactly those two bytes.

// WordLen is the on-wire size of one data word including its CRC byte.
const WordLen = 3

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/SENSIRION",
})

// CRC returns the Sensirion CRC-8 of b.
func CRC(b []byte) byte { return crc8.Checksum(b, crcTable) }

// EncodeCommand returns the two-byte frame for a bare command.
func EncodeCommand(cmd uint16) []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, 2), cmd)
}

// EncodeCommandWithWords returns the command followed by each word and its CRC.
func EncodeCommandWithWords(cmd uint16, words ...uint16) []byte {
	return AppendFrame(make([]byte, 0, 2+len(words)*WordLen), cmd, words...)
}

// AppendFrame is EncodeCommandWithWords into a caller-provided buffer.
func AppendFrame(dst []byte, cmd uint16, words ...uint16) []byte {
	dst = binary.BigEndian.AppendUint16(dst, cmd)
	for _, w := range words {
		dst = appendWord(dst, w)
	}
	return dst
}

func appendWord(dst []byte, w uint16) []byte {
	hi, lo := byte(w>>8), byte(w)
	return append(dst, hi, lo, CRC([]byte{hi, lo}))
}

// DecodeWords verifies and unpacks n words from raw. Any CRC mismatch fails
// the whole frame; no partial result is returned.
func DecodeWords(raw []byte, n int) ([]uint16, error) {
	if err := checkFrame(raw, n); err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(raw[i*WordLen:])
	}
	return out, nil
}

// DecodeBytes verifies n words and returns their 2n data bytes, CRCs removed.
func DecodeBytes(raw []byte, n int) ([]byte, error) {
	if err := checkFrame(raw, n); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, raw[i*WordLen], raw[i*WordLen+1])
	}
	return out, nil
}

func checkFrame(raw []byte, n int) error {
	if n < 0 || len(raw) < n*WordLen {
		return errors.Wrapf(ErrShortFrame, "have %d bytes, need %d", len(raw), n*WordLen)
	}
	for i := 0; i < n; i++ {
		t := raw[i*WordLen : i*WordLen+WordLen]
		if got := CRC(t[:2]); got != t[2] {
			return errors.Wrapf(ErrChecksum, "word %d: got 0x%02X want 0x%02X", i, t[2], got)
		}
	}
	return nil
}

// CString trims b at the first NUL.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
