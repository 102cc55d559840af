// Package types defines the wire-level data model shared by every layer of
// the indexer: contract identifiers, token amounts, cellpacks and transfer
// parcels.
package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Uint128 is a fixed-width 128-bit unsigned integer, stored as two 64-bit
// halves. AlkaneId components and token amounts are u128 on the wire
// (little-endian, 16 bytes) and need to round-trip that layout exactly;
// math/big.Int does not have a fixed width, so a dedicated type is used
// instead (see DESIGN.md).
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// ZeroU128 is the additive identity.
var ZeroU128 = Uint128{}

// U128FromUint64 builds a Uint128 from a plain uint64.
func U128FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// U128FromBig converts a big.Int into a Uint128. The input must be
// non-negative and fit in 128 bits.
func U128FromBig(v *big.Int) (Uint128, error) {
	if v.Sign() < 0 {
		return Uint128{}, fmt.Errorf("types: negative value cannot convert to u128")
	}
	if v.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("types: value overflows u128")
	}
	var buf [16]byte
	v.FillBytes(buf[:])
	// FillBytes is big-endian; swap into our Lo/Hi halves.
	var out Uint128
	out.Hi = binary.BigEndian.Uint64(buf[0:8])
	out.Lo = binary.BigEndian.Uint64(buf[8:16])
	return out, nil
}

// Big returns the big.Int representation of v.
func (v Uint128) Big() *big.Int {
	out := new(big.Int).SetUint64(v.Hi)
	out.Lsh(out, 64)
	out.Or(out, new(big.Int).SetUint64(v.Lo))
	return out
}

// String renders the decimal representation.
func (v Uint128) String() string { return v.Big().String() }

// IsZero reports whether v is the zero value.
func (v Uint128) IsZero() bool { return v.Lo == 0 && v.Hi == 0 }

// Cmp compares two Uint128 values the way big.Int.Cmp does.
func (v Uint128) Cmp(o Uint128) int {
	if v.Hi != o.Hi {
		if v.Hi < o.Hi {
			return -1
		}
		return 1
	}
	if v.Lo != o.Lo {
		if v.Lo < o.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Add returns v+o and reports whether the addition overflowed 128 bits.
func (v Uint128) Add(o Uint128) (Uint128, bool) {
	lo, carry := bitsAdd64(v.Lo, o.Lo, 0)
	hi, carry2 := bitsAdd64(v.Hi, o.Hi, carry)
	return Uint128{Lo: lo, Hi: hi}, carry2 != 0
}

// Sub returns v-o and reports whether the subtraction underflowed.
func (v Uint128) Sub(o Uint128) (Uint128, bool) {
	lo, borrow := bitsSub64(v.Lo, o.Lo, 0)
	hi, borrow2 := bitsSub64(v.Hi, o.Hi, borrow)
	return Uint128{Lo: lo, Hi: hi}, borrow2 != 0
}

func bitsAdd64(x, y, carry uint64) (sum, carryOut uint64) {
	sum = x + y + carry
	if sum < x || (carry == 1 && sum == x) {
		carryOut = 1
	}
	return
}

func bitsSub64(x, y, borrow uint64) (diff, borrowOut uint64) {
	diff = x - y - borrow
	if x < y || (x == y && borrow == 1) {
		borrowOut = 1
	}
	return
}

// MarshalLE encodes v as a 16-byte little-endian buffer, the canonical wire
// form used by the host ABI and by persisted balance sheets (spec §4.1).
func (v Uint128) MarshalLE() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], v.Lo)
	binary.LittleEndian.PutUint64(out[8:16], v.Hi)
	return out
}

// UnmarshalU128LE decodes a 16-byte little-endian buffer into a Uint128.
func UnmarshalU128LE(b []byte) (Uint128, error) {
	if len(b) < 16 {
		return Uint128{}, fmt.Errorf("types: short buffer for u128: %d bytes", len(b))
	}
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}
