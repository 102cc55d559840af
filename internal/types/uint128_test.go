package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint128RoundTripBig(t *testing.T) {
	cases := []string{"0", "1", "340282366920938463463374607431768211455", "18446744073709551616", "1000"}
	for _, c := range cases {
		b, ok := new(big.Int).SetString(c, 10)
		require.True(t, ok)
		u, err := U128FromBig(b)
		require.NoError(t, err)
		require.Equal(t, c, u.String())
	}
}

func TestUint128LittleEndianRoundTrip(t *testing.T) {
	u := Uint128{Lo: 0x0102030405060708, Hi: 0x1112131415161718}
	buf := u.MarshalLE()
	back, err := UnmarshalU128LE(buf[:])
	require.NoError(t, err)
	require.Equal(t, u, back)
}

func TestUint128AddSub(t *testing.T) {
	a := U128FromUint64(10)
	b := U128FromUint64(3)
	sum, overflow := a.Add(b)
	require.False(t, overflow)
	require.Equal(t, uint64(13), sum.Lo)

	diff, underflow := a.Sub(b)
	require.False(t, underflow)
	require.Equal(t, uint64(7), diff.Lo)

	_, underflow = b.Sub(a)
	require.True(t, underflow)
}

func TestUint128AddOverflow(t *testing.T) {
	max := Uint128{Lo: ^uint64(0), Hi: ^uint64(0)}
	_, overflow := max.Add(U128FromUint64(1))
	require.True(t, overflow)
}

func TestAlkaneIdSpecialForms(t *testing.T) {
	require.True(t, NewAlkaneId(1, 0).IsCreate())
	require.False(t, NewAlkaneId(1, 1).IsCreate())

	n, ok := NewAlkaneId(3, 42).ReservedNumber()
	require.True(t, ok)
	require.Equal(t, uint64(42), n.Lo)

	src, ok := NewAlkaneId(5, 7).FactorySource()
	require.True(t, ok)
	require.True(t, src.Equal(NewAlkaneId(2, 7)))

	src, ok = NewAlkaneId(6, 8).FactorySource()
	require.True(t, ok)
	require.True(t, src.Equal(NewAlkaneId(4, 8)))
}

func TestAlkaneIdIsCreated(t *testing.T) {
	nextSeq := U128FromUint64(5)
	require.True(t, NewAlkaneId(2, 3).IsCreated(nextSeq))
	require.False(t, NewAlkaneId(2, 5).IsCreated(nextSeq))
	require.True(t, NewAlkaneId(4, 100).IsCreated(nextSeq))
	require.False(t, NewAlkaneId(1, 0).IsCreated(nextSeq))
	require.False(t, NewAlkaneId(3, 1).IsCreated(nextSeq))
	require.False(t, NewAlkaneId(5, 1).IsCreated(nextSeq))
}

func TestParseCellpack(t *testing.T) {
	values := []Uint128{U128FromUint64(2), U128FromUint64(1), U128FromUint64(77), U128FromUint64(99)}
	cp, err := ParseCellpack(values)
	require.NoError(t, err)
	require.True(t, cp.Target.Equal(NewAlkaneId(2, 1)))
	require.Len(t, cp.Inputs, 2)
	op, rest := cp.Opcode()
	require.Equal(t, uint64(77), op.Lo)
	require.Len(t, rest, 1)
}

func TestDecodeVarintU128List(t *testing.T) {
	values := []Uint128{U128FromUint64(0), U128FromUint64(1), U128FromUint64(127), U128FromUint64(128), U128FromUint64(300), U128FromUint64(1 << 40)}
	var buf []byte
	for _, v := range values {
		buf = append(buf, EncodeVarintU128(v)...)
	}
	decoded, err := DecodeVarintU128List(buf)
	require.NoError(t, err)
	require.Len(t, decoded, len(values))
	for i, v := range values {
		require.Equal(t, v.Lo, decoded[i].Lo, "index %d", i)
	}
}
