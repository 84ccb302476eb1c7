// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const curveOrderHex = "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25" +
	"e8cd0364141"

func TestPowModN(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "base")
		exp := rapid.Uint64Range(0, 64).Draw(t, "exp")

		var base btcec.ModNScalar
		base.SetByteSlice(raw)

		var want btcec.ModNScalar
		want.SetInt(1)
		for i := uint64(0); i < exp; i++ {
			want.Mul(&base)
		}

		got := powModN(&base, exp)
		require.True(t, want.Equals(&got))
	})
}

func TestParityFactor(t *testing.T) {
	t.Parallel()

	even := parityFactor(false)
	odd := parityFactor(true)

	var sum btcec.ModNScalar
	sum.Add2(&even, &odd)
	require.True(t, sum.IsZero())
	require.Equal(
		t, "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd03"+
			"64140", hex.EncodeToString(scalarBytes(&odd)),
	)
}

func TestParseScalar(t *testing.T) {
	t.Parallel()

	n := mustHex(t, curveOrderHex)
	nMinusOne := mustHex(t, curveOrderHex)
	nMinusOne[31]--

	_, err := parseScalar("s", n)
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = parseScalar("s", make([]byte, ScalarSize))
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = parseScalar("s", nMinusOne[:31])
	require.ErrorIs(t, err, ErrInvalidByteSize)

	s, err := parseScalar("s", nMinusOne)
	require.NoError(t, err)
	require.Equal(t, nMinusOne, scalarBytes(&s))

	// Secrets are reduced first, so N is zero and rejected while N+1 is
	// accepted as one.
	_, err = parseSecret("k", n)
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	nPlusOne := mustHex(t, curveOrderHex)
	nPlusOne[31]++
	k, err := parseSecret("k", nPlusOne)
	require.NoError(t, err)

	var one btcec.ModNScalar
	one.SetInt(1)
	require.True(t, k.Equals(&one))
}

func TestLiftX(t *testing.T) {
	t.Parallel()

	g := generator()
	gx := xOnlyBytes(&g)

	p, err := liftX(gx).Unpack()
	require.NoError(t, err)
	require.True(t, pointsEqual(&g, &p))
	require.False(t, hasOddY(&p))

	_, err = liftX(invalidX).Unpack()
	require.ErrorIs(t, err, ErrInvalidPoint)

	_, err = liftX(bytes.Repeat([]byte{0xff}, XOnlyPointSize)).Unpack()
	require.ErrorIs(t, err, ErrInvalidPoint)

	_, err = liftX(gx[:31]).Unpack()
	require.ErrorIs(t, err, ErrInvalidByteSize)

	// The compressed encoding keeps the parity, x-only always picks the
	// even point.
	var minusOne btcec.ModNScalar
	minusOne.SetInt(1).Negate()
	negG := mulPoint(&minusOne, &g)
	require.True(t, hasOddY(&negG))

	c, err := liftPoint(compressedBytes(&negG)).Unpack()
	require.NoError(t, err)
	require.True(t, pointsEqual(&negG, &c))

	x, err := liftPoint(xOnlyBytes(&negG)).Unpack()
	require.NoError(t, err)
	require.True(t, pointsEqual(&g, &x))
}
