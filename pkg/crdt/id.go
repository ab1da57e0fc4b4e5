// Package crdt implements the Logoot-Split CRDT: dense byte-string
// identifiers arranged into blocks with intra-block offsets, the document
// they describe, and the local-edit/remote-apply halves of the replication
// protocol.
package crdt

import (
	"encoding/binary"
	"math/rand"
)

// MaxDigit is the exclusive upper bound for a position digit or offset.
// Digits are stored as big-endian uint16, so the ceiling is 2^16.
const MaxDigit = 1 << 16

// ID is a CRDT identifier: a byte string whose length is a multiple of 2,
// of the form P0 P1 ... Pk-1 SITE OFFSET. Two IDs are compared as unsigned
// lexicographic byte strings.
type ID []byte

// digit reads the big-endian uint16 at the given 2-byte-aligned index.
func digit(id ID, i int) uint16 {
	return binary.BigEndian.Uint16(id[i : i+2])
}

// Offset returns the OFFSET digit: the last two bytes of the ID.
func Offset(id ID) uint16 {
	return digit(id, len(id)-2)
}

// Site returns the SITE digit: the two bytes immediately before OFFSET.
func Site(id ID) uint16 {
	return digit(id, len(id)-4)
}

// BaseEqual reports whether a and b share a base: equal length and equal
// bytes everywhere except the final OFFSET digit.
func BaseEqual(a, b ID) bool {
	if len(a) != len(b) {
		return false
	}
	n := len(a)
	if n < 2 {
		return false
	}
	for i := 0; i < n-2; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReplaceOffset returns a copy of id with its OFFSET digit set to n.
func ReplaceOffset(id ID, n uint16) ID {
	out := make(ID, len(id))
	copy(out, id)
	binary.BigEndian.PutUint16(out[len(out)-2:], n)
	return out
}

// Compare returns -1, 0, or 1 as a compares less than, equal to, or
// greater than b under unsigned lexicographic byte order.
func Compare(a, b ID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b ID) bool { return Compare(a, b) < 0 }

// length of the SITE+OFFSET suffix every ID carries, in digits (bytes/2).
const suffixDigits = 2

// GenerateBetween produces an ID strictly between lowID@lowOffset and
// highID@highOffset (a missing low neighbor is treated as the empty ID
// padded with zero digits; a missing high neighbor as the empty ID padded
// with MaxDigit digits), tagged with the originating site.
//
// It walks position digits left to right. While the high and low digit at
// a position differ by less than 2, it must emit the low digit verbatim
// (there is no room for a new value at this position) and continue to the
// next digit. Once they differ by at least 2, a uniformly random digit in
// the open interval is chosen and the walk stops; the new ID's base is
// unique to this call by construction (the random middle digit plus the
// site tag that follows it).
func GenerateBetween(lowID ID, lowOffset uint16, highID ID, highOffset uint16, site uint16) ID {
	// Total digit count of each neighbor (0 for a missing/empty neighbor).
	lowTotal := len(lowID) / 2
	highTotal := len(highID) / 2

	var out []uint16
	i := 0
	for {
		l := neighborDigit(lowID, lowTotal, i, lowOffset, 0)
		h := neighborDigit(highID, highTotal, i, highOffset, MaxDigit)

		// Signed comparison: a later digit's (h - l) can be negative even
		// when an earlier digit already established low < high (e.g. low
		// and high differ by exactly 1 at the first digit, then the
		// offset slot has lowOffset > highOffset). Unsigned subtraction
		// would wrap that negative difference to a huge value and take
		// the random-middle branch over a garbage range, corrupting order.
		if h-l < 2 {
			out = append(out, uint16(l))
			i++
			continue
		}

		m := l + 1 + rand.Int63n(h-l-1)
		out = append(out, uint16(m))
		break
	}

	buf := make(ID, (len(out)+suffixDigits)*2)
	off := 0
	for _, d := range out {
		binary.BigEndian.PutUint16(buf[off:off+2], d)
		off += 2
	}
	binary.BigEndian.PutUint16(buf[off:off+2], site)
	off += 2
	binary.BigEndian.PutUint16(buf[off:off+2], 0)
	return buf
}

// neighborDigit returns the i-th digit (0-based, stride 2) of a neighbor ID
// whose total digit count is total. The final digit (index total-1, the
// OFFSET slot) is overridden by the supplied offset rather than read from
// the ID's own bytes — every other stored digit, including SITE, is read
// verbatim. Once i runs past total (a missing neighbor, or i beyond its
// length), pad returns the caller's sentinel (0 for the low side, MaxDigit
// for the high side).
func neighborDigit(id ID, total, i int, offset uint16, pad int64) int64 {
	switch {
	case total == 0:
		return pad
	case i < total-1:
		return int64(digit(id, i*2))
	case i == total-1:
		return int64(offset)
	default:
		return pad
	}
}
