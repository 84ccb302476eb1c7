// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"github.com/btcsuite/btcd/btcec/v2"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// XOnlyPointSize is the size of an x-only point encoding.
	XOnlyPointSize = 32

	// CompressedPointSize is the size of a compressed point encoding.
	CompressedPointSize = btcec.PubKeyBytesLenCompressed
)

// liftX returns the curve point with the given x coordinate and an even y
// coordinate, or an error if no such point exists.
func liftX(x []byte) fn.Result[btcec.JacobianPoint] {
	if len(x) != XOnlyPointSize {
		return fn.Err[btcec.JacobianPoint](
			errSize("x-only point", len(x), XOnlyPointSize),
		)
	}

	var fx, fy secp.FieldVal
	if overflow := fx.SetByteSlice(x); overflow {
		return fn.Err[btcec.JacobianPoint](errPoint("x coordinate", x))
	}
	if !secp.DecompressY(&fx, false, &fy) {
		return fn.Err[btcec.JacobianPoint](errPoint("x coordinate", x))
	}
	fy.Normalize()

	var p btcec.JacobianPoint
	p.X.Set(&fx)
	p.Y.Set(&fy)
	p.Z.SetInt(1)

	return fn.Ok(p)
}

// liftCompressed parses a 33 byte compressed point.
func liftCompressed(b []byte) fn.Result[btcec.JacobianPoint] {
	if len(b) != CompressedPointSize {
		return fn.Err[btcec.JacobianPoint](
			errSize("compressed point", len(b), CompressedPointSize),
		)
	}

	p, err := btcec.ParseJacobian(b)
	if err != nil {
		return fn.Err[btcec.JacobianPoint](errPoint("compressed point", b))
	}

	return fn.Ok(p)
}

// liftPoint lifts either encoding depending on the length of b.
func liftPoint(b []byte) fn.Result[btcec.JacobianPoint] {
	if len(b) == CompressedPointSize {
		return liftCompressed(b)
	}

	return liftX(b)
}

// isInfinity reports whether p is the point at infinity.
func isInfinity(p *btcec.JacobianPoint) bool {
	x, y, z := p.X, p.Y, p.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()

	return (x.IsZero() && y.IsZero()) || z.IsZero()
}

// toAffine returns an affine copy of p. p must not be the point at infinity.
func toAffine(p *btcec.JacobianPoint) btcec.JacobianPoint {
	a := *p
	a.ToAffine()

	return a
}

// hasOddY reports whether the affine y coordinate of p is odd.
func hasOddY(p *btcec.JacobianPoint) bool {
	a := toAffine(p)
	return a.Y.IsOdd()
}

// xOnlyBytes returns the 32 byte x coordinate of p.
func xOnlyBytes(p *btcec.JacobianPoint) []byte {
	a := toAffine(p)
	x := a.X.Bytes()

	return x[:]
}

// compressedBytes returns the 33 byte compressed encoding of p.
func compressedBytes(p *btcec.JacobianPoint) []byte {
	a := toAffine(p)

	b := make([]byte, CompressedPointSize)
	b[0] = secp.PubKeyFormatCompressedEven
	if a.Y.IsOdd() {
		b[0] = secp.PubKeyFormatCompressedOdd
	}
	a.X.PutBytesUnchecked(b[1:])

	return b
}

// pointBytes encodes p using either the x-only or the compressed encoding.
func pointBytes(p *btcec.JacobianPoint, size int) []byte {
	if size == CompressedPointSize {
		return compressedBytes(p)
	}

	return xOnlyBytes(p)
}

// pointsEqual reports whether a and b are the same point.
func pointsEqual(a, b *btcec.JacobianPoint) bool {
	aInf, bInf := isInfinity(a), isInfinity(b)
	if aInf || bInf {
		return aInf == bInf
	}

	aa, bb := toAffine(a), toAffine(b)

	return aa.X.Equals(&bb.X) && aa.Y.Equals(&bb.Y)
}

// mulPoint returns k*p.
func mulPoint(k *btcec.ModNScalar, p *btcec.JacobianPoint) btcec.JacobianPoint {
	var r btcec.JacobianPoint
	btcec.ScalarMultNonConst(k, p, &r)

	return r
}

// mulBase returns k*G.
func mulBase(k *btcec.ModNScalar) btcec.JacobianPoint {
	var r btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &r)

	return r
}

// addPoints returns a+b.
func addPoints(a, b *btcec.JacobianPoint) btcec.JacobianPoint {
	var r btcec.JacobianPoint
	btcec.AddNonConst(a, b, &r)

	return r
}

// generator returns the curve generator G.
func generator() btcec.JacobianPoint {
	var g btcec.JacobianPoint
	btcec.GeneratorJacobian(&g)

	return g
}
