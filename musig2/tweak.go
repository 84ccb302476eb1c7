// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// TweakSize is the size of a serialized tweak.
const TweakSize = 32

// PointState is the accumulator of the tweak engine. It tracks a point that
// has gone through zero or more rounds of even-y normalization followed by a
// tweak addition.
type PointState struct {
	// Point is the current point, in affine coordinates.
	Point btcec.JacobianPoint

	// Parity is N-1 if Point has an odd y coordinate and 1 otherwise.
	// It is the factor that maps Point to its even-y version.
	Parity btcec.ModNScalar

	// State is the product of the parities applied in every round so
	// far. Signers multiply their secret by it.
	State btcec.ModNScalar

	// Tweak is the sum of all tweaks, corrected for the parities applied
	// after each of them was added. The combiner adds it to the final
	// signature.
	Tweak btcec.ModNScalar
}

// NewPointState returns the zero-tweak state for point: state 1, tweak 0 and
// the parity of point itself.
func NewPointState(point *btcec.JacobianPoint) (PointState, error) {
	if isInfinity(point) {
		return PointState{}, fmt.Errorf("%w: point at infinity",
			ErrInvalidPoint)
	}

	var ps PointState
	ps.Point = toAffine(point)
	ps.Parity = parityFactor(ps.Point.Y.IsOdd())
	ps.State.SetInt(1)

	return ps, nil
}

// applyTweak runs one round of the tweak engine and returns the resulting
// state. The receiver isn't modified.
//
// The new state is computed as:
//   - g = parity(P)
//   - P' = g*P + t*G
//   - state' = g*state
//   - tweak' = t + g*tweak
func (p PointState) applyTweak(t *btcec.ModNScalar) (PointState, error) {
	g := parityFactor(p.Point.Y.IsOdd())

	negated := mulPoint(&g, &p.Point)
	tG := mulBase(t)
	point := addPoints(&negated, &tG)
	if isInfinity(&point) {
		return PointState{}, fmt.Errorf("%w: tweak produced the point "+
			"at infinity", ErrInvalidPoint)
	}

	var next PointState
	next.Point = toAffine(&point)
	next.Parity = g
	next.State.Mul2(&g, &p.State)
	next.Tweak.Mul2(&g, &p.Tweak).Add(t)

	return next, nil
}

// ApplyTweaks folds the ordered list of tweaks into the state of point. After
// the last round the parity is recomputed from the final point, so it always
// describes the point that is actually used for signing. With no tweaks the
// result equals NewPointState(point).
func ApplyTweaks(point *btcec.JacobianPoint,
	tweaks []btcec.ModNScalar) (PointState, error) {

	acc, err := NewPointState(point)
	if err != nil {
		return PointState{}, err
	}

	for i := range tweaks {
		acc, err = acc.applyTweak(&tweaks[i])
		if err != nil {
			return PointState{}, fmt.Errorf("tweak %d: %w", i, err)
		}
	}

	acc.Parity = parityFactor(acc.Point.Y.IsOdd())

	return acc, nil
}

// ParseTweaks parses a list of 32 byte tweaks, reducing each modulo N.
func ParseTweaks(tweaks [][]byte) ([]btcec.ModNScalar, error) {
	scalars := make([]btcec.ModNScalar, len(tweaks))
	for i, t := range tweaks {
		if len(t) != TweakSize {
			return nil, errSize(
				fmt.Sprintf("tweak %d", i), len(t), TweakSize,
			)
		}
		scalars[i].SetByteSlice(t)
	}

	return scalars, nil
}

// IsOdd reports whether the current point has an odd y coordinate.
func (p *PointState) IsOdd() bool {
	return p.Point.Y.IsOdd()
}

// XOnly returns the x-only encoding of the current point.
func (p *PointState) XOnly() []byte {
	return xOnlyBytes(&p.Point)
}

// Compressed returns the compressed encoding of the current point.
func (p *PointState) Compressed() []byte {
	return compressedBytes(&p.Point)
}

// signFactor returns parity*state, the factor a signer applies to its secret
// so that it matches the even-y version of the final point.
func (p *PointState) signFactor() btcec.ModNScalar {
	var f btcec.ModNScalar
	f.Mul2(&p.Parity, &p.State)

	return f
}

// tweakCorrection returns parity*tweak.
func (p *PointState) tweakCorrection() btcec.ModNScalar {
	var c btcec.ModNScalar
	c.Mul2(&p.Parity, &p.Tweak)

	return c
}
