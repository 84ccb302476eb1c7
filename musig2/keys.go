// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/musig2/lnutils"
)

var (
	// KeyAggTagList is the tagged hash tag used to compute the hash of the
	// list of sorted public keys.
	KeyAggTagList = []byte("KeyAgg list")

	// KeyAggTagCoeff is the tagged hash tag used to compute the key
	// aggregation coefficient for each key.
	KeyAggTagCoeff = []byte("KeyAgg coefficient")
)

// PubKeySize is the size of an x-only public key.
const PubKeySize = XOnlyPointSize

// indexedKey is an x-only key together with its position in the caller's
// input list.
type indexedKey struct {
	key [PubKeySize]byte
	idx int
}

// sortableKeys defines a slice of x-only keys that implements the sort
// interface, ordering the keys by their raw bytes.
type sortableKeys []indexedKey

// Less reports whether the element with index i must sort before the element
// with index j.
func (s sortableKeys) Less(i, j int) bool {
	return bytes.Compare(s[i].key[:], s[j].key[:]) == -1
}

// Swap swaps the elements with indexes i and j.
func (s sortableKeys) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Len is the number of elements in the collection.
func (s sortableKeys) Len() int {
	return len(s)
}

// keyHashFingerprint computes the tagged hash of the series of sorted public
// keys passed as input. This is used to compute the aggregation coefficient
// for each key. The final computation is:
//   - H(tag=KeyAgg list, pk1 || pk2..)
func keyHashFingerprint(keys sortableKeys) []byte {
	var keyBytes bytes.Buffer
	for _, k := range keys {
		keyBytes.Write(k.key[:])
	}

	h := chainhash.TaggedHash(KeyAggTagList, keyBytes.Bytes())
	return h[:]
}

// aggregationCoefficient computes the key aggregation coefficient for the
// specified target key. The coefficient is computed as:
//   - H(tag=KeyAgg coefficient, keyHashFingerprint(pks) || pk) mod n
func aggregationCoefficient(keysHash []byte,
	targetKey [PubKeySize]byte) btcec.ModNScalar {

	return hashToScalar(KeyAggTagCoeff, keysHash, targetKey[:])
}

// KeyAggregate is the result of key aggregation: the sorted key set, the
// coefficient of every key and the aggregate point before any tweaks.
type KeyAggregate struct {
	keys   [][PubKeySize]byte
	coeffs map[[PubKeySize]byte]btcec.ModNScalar
	point  btcec.JacobianPoint
}

// AggregateKeys aggregates the given x-only public keys:
//   - L = H(tag=KeyAgg list, sorted keys)
//   - c_k = H(tag=KeyAgg coefficient, L || k) mod n
//   - P = sum(c_k * lift_x(k))
//
// The input order doesn't matter as the keys are sorted first. Duplicate keys
// are allowed and each contributes its own term. If a key can't be lifted, or
// the running sum hits the point at infinity, a *KeyError wrapping
// ErrInvalidPoint is returned. Its Index is the key's position in the input.
func AggregateKeys(pubKeys [][]byte) (*KeyAggregate, error) {
	if len(pubKeys) == 0 {
		return nil, fmt.Errorf("%w: no public keys", ErrInvalidByteSize)
	}

	keySet := make(sortableKeys, len(pubKeys))
	for i, pk := range pubKeys {
		if len(pk) != PubKeySize {
			return nil, &KeyError{
				Index: i,
				Key:   append([]byte(nil), pk...),
				Err:   errSize("public key", len(pk), PubKeySize),
			}
		}
		copy(keySet[i].key[:], pk)
		keySet[i].idx = i
	}

	// Duplicates keep their input order.
	sort.Stable(keySet)

	keysHash := keyHashFingerprint(keySet)

	agg := &KeyAggregate{
		keys:   make([][PubKeySize]byte, len(keySet)),
		coeffs: make(map[[PubKeySize]byte]btcec.ModNScalar, len(keySet)),
	}

	for i, k := range keySet {
		agg.keys[i] = k.key

		keyPoint, err := liftX(k.key[:]).Unpack()
		if err != nil {
			return nil, &KeyError{
				Index: k.idx,
				Key:   append([]byte(nil), k.key[:]...),
				Err:   err,
			}
		}

		coeff, ok := agg.coeffs[k.key]
		if !ok {
			coeff = aggregationCoefficient(keysHash, k.key)
			agg.coeffs[k.key] = coeff
		}

		// P += c_k * P_k
		term := mulPoint(&coeff, &keyPoint)
		agg.point = addPoints(&agg.point, &term)
		if isInfinity(&agg.point) {
			return nil, &KeyError{
				Index: k.idx,
				Key:   append([]byte(nil), k.key[:]...),
				Err: fmt.Errorf("%w: aggregate key is the point "+
					"at infinity", ErrInvalidPoint),
			}
		}
	}

	agg.point = toAffine(&agg.point)

	log.Tracef("Aggregated %d keys into %v", len(keySet),
		lnutils.NewLogClosure(func() string {
			return hex.EncodeToString(compressedBytes(&agg.point))
		}))

	return agg, nil
}

// Keys returns the sorted key set.
func (k *KeyAggregate) Keys() [][]byte {
	keys := make([][]byte, len(k.keys))
	for i := range k.keys {
		keys[i] = append([]byte(nil), k.keys[i][:]...)
	}

	return keys
}

// NumKeys returns the number of keys in the set, counting duplicates.
func (k *KeyAggregate) NumKeys() int {
	return len(k.keys)
}

// Coefficient returns the aggregation coefficient of the given key, or
// ErrKeyNotInSession if the key isn't part of the set.
func (k *KeyAggregate) Coefficient(pubKey []byte) (btcec.ModNScalar, error) {
	var key [PubKeySize]byte
	if len(pubKey) != PubKeySize {
		return btcec.ModNScalar{}, errSize(
			"public key", len(pubKey), PubKeySize,
		)
	}
	copy(key[:], pubKey)

	coeff, ok := k.coeffs[key]
	if !ok {
		return btcec.ModNScalar{}, fmt.Errorf("%w: %x",
			ErrKeyNotInSession, pubKey)
	}

	return coeff, nil
}

// Point returns the aggregate point before tweaks.
func (k *KeyAggregate) Point() btcec.JacobianPoint {
	return k.point
}

// InternalKey returns the compressed encoding of the aggregate point before
// tweaks.
func (k *KeyAggregate) InternalKey() []byte {
	return compressedBytes(&k.point)
}

// KeyContext is an aggregate key with the key tweaks applied.
type KeyContext struct {
	*KeyAggregate

	state PointState
}

// NewKeyContext aggregates the keys and applies the key tweaks found in the
// options. Nonce tweaks in the options are ignored.
func NewKeyContext(pubKeys [][]byte,
	opts ...SessionOption) (*KeyContext, error) {

	cfg := buildConfig(opts)

	return newKeyContext(pubKeys, cfg.KeyTweaks)
}

func newKeyContext(pubKeys [][]byte, keyTweaks [][]byte) (*KeyContext,
	error) {

	tweaks, err := ParseTweaks(keyTweaks)
	if err != nil {
		return nil, fmt.Errorf("key tweaks: %w", err)
	}

	agg, err := AggregateKeys(pubKeys)
	if err != nil {
		return nil, err
	}

	state, err := ApplyTweaks(&agg.point, tweaks)
	if err != nil {
		return nil, fmt.Errorf("unable to tweak aggregate key: %w", err)
	}

	return &KeyContext{
		KeyAggregate: agg,
		state:        state,
	}, nil
}

// PubKey returns the x-only aggregate key after tweaks. This is the key a
// BIP-340 verifier checks the final signature against.
func (k *KeyContext) PubKey() []byte {
	return k.state.XOnly()
}

// KeyState returns a copy of the tweak accumulator of the aggregate key.
func (k *KeyContext) KeyState() PointState {
	return k.state
}

// SecretToKeyPair maps a 32 byte secret to the signing scalar and the x-only
// public key it belongs to. The scalar is negated if needed so that its public
// point has an even y coordinate, matching the x-only key.
func SecretToKeyPair(secret []byte) (btcec.ModNScalar, [PubKeySize]byte,
	error) {

	var pubKey [PubKeySize]byte

	sk, err := parseSecret("secret key", secret)
	if err != nil {
		return btcec.ModNScalar{}, pubKey, err
	}

	point := mulBase(&sk)
	if hasOddY(&point) {
		sk.Negate()
	}
	copy(pubKey[:], xOnlyBytes(&point))

	return sk, pubKey, nil
}
