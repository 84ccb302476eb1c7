// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// NonceRounds is the number of nonces each signer contributes to a
	// session.
	NonceRounds = 2

	// PubNonceSize is the size of an x-only public nonce: two 32 byte
	// x-only points.
	PubNonceSize = NonceRounds * XOnlyPointSize

	// PubNonceCompressedSize is the size of a public nonce that uses the
	// compressed point encoding for both of its points.
	PubNonceCompressedSize = NonceRounds * CompressedPointSize

	// SecNonceSize is the size of a secret nonce: two 32 byte scalars.
	SecNonceSize = NonceRounds * ScalarSize

	// AggNonceSize is the size of a serialized aggregate nonce: two
	// x-only points.
	AggNonceSize = NonceRounds * XOnlyPointSize
)

// Nonces holds the public and secret nonces of one signer for one session.
type Nonces struct {
	// PubNonce holds the two x-only points that serve as the public set
	// of nonces.
	PubNonce [PubNonceSize]byte

	// SecNonce holds the two 32-byte scalar values that are the private
	// keys to the two public nonces.
	SecNonce [SecNonceSize]byte
}

// NonceGenOption is a function option that allows callers to modify how nonce
// generation happens.
type NonceGenOption func(*nonceGenOpts)

// nonceGenOpts is the set of options that control how nonce generation
// happens.
type nonceGenOpts struct {
	// randReader is what we'll use to generate the nonce seed. If
	// unspecified, then crypto/rand is used.
	randReader io.Reader

	// seed, if set, is used as is instead of reading from randReader.
	seed *[SecNonceSize]byte
}

// cryptoRandAdapter is an adapter struct that allows us to pass in the package
// level Read function from crypto/rand into a context that accepts an
// io.Reader.
type cryptoRandAdapter struct{}

// Read implements the io.Reader interface for the crypto/rand package.
func (c *cryptoRandAdapter) Read(p []byte) (n int, err error) {
	return rand.Read(p)
}

// defaultNonceGenOpts returns the default set of nonce generation options.
func defaultNonceGenOpts() *nonceGenOpts {
	return &nonceGenOpts{
		randReader: &cryptoRandAdapter{},
	}
}

// WithCustomRand allows a caller to use a custom random number generator in
// place for crypto/rand. This should only really be used to generate
// deterministic tests.
func WithCustomRand(r io.Reader) NonceGenOption {
	return func(o *nonceGenOpts) {
		o.randReader = r
	}
}

// WithNonceSeed makes GenNonces derive the nonces from the given 64 byte
// seed. A seed must never be used for more than one session.
func WithNonceSeed(seed [SecNonceSize]byte) NonceGenOption {
	return func(o *nonceGenOpts) {
		o.seed = &seed
	}
}

// GenNonces generates the secret nonces, as well as the public nonces which
// correspond to an EC point generated using the secret nonce as a private key.
// Each half of the 64 byte seed is reduced modulo N to form one secret nonce.
func GenNonces(options ...NonceGenOption) (*Nonces, error) {
	opts := defaultNonceGenOpts()
	for _, opt := range options {
		opt(opts)
	}

	var seed [SecNonceSize]byte
	switch {
	case opts.seed != nil:
		seed = *opts.seed

	default:
		if _, err := io.ReadFull(opts.randReader, seed[:]); err != nil {
			return nil, fmt.Errorf("unable to read nonce seed: %w",
				err)
		}
	}

	k, err := parseSecNonce(seed[:])
	if err != nil {
		return nil, err
	}

	var nonces Nonces
	for j := range k {
		k[j].PutBytesUnchecked(nonces.SecNonce[j*ScalarSize:])
	}
	copy(nonces.PubNonce[:], pubNonceFromScalars(&k, XOnlyPointSize))

	for j := range k {
		k[j].Zero()
	}

	return &nonces, nil
}

// parseSecNonce splits a 64 byte secret nonce into its two scalars, reducing
// both modulo N.
func parseSecNonce(secNonce []byte) ([NonceRounds]btcec.ModNScalar, error) {
	var k [NonceRounds]btcec.ModNScalar
	if len(secNonce) != SecNonceSize {
		return k, errSize("secret nonce", len(secNonce), SecNonceSize)
	}

	for j := range k {
		var err error
		k[j], err = parseSecret(
			fmt.Sprintf("secret nonce %d", j),
			secNonce[j*ScalarSize:(j+1)*ScalarSize],
		)
		if err != nil {
			return k, err
		}
	}

	return k, nil
}

// pubNonceFromScalars returns k_1*G || k_2*G using the given point encoding.
func pubNonceFromScalars(k *[NonceRounds]btcec.ModNScalar, size int) []byte {
	pubNonce := make([]byte, 0, NonceRounds*size)
	for j := range k {
		r := mulBase(&k[j])
		pubNonce = append(pubNonce, pointBytes(&r, size)...)
	}

	return pubNonce
}

// PubNonceFromSecret returns the x-only public nonce of a secret nonce.
func PubNonceFromSecret(secNonce []byte) ([]byte, error) {
	k, err := parseSecNonce(secNonce)
	if err != nil {
		return nil, err
	}

	return pubNonceFromScalars(&k, XOnlyPointSize), nil
}

// CompressedPubNonceFromSecret returns the public nonce of a secret nonce
// with both points in compressed encoding.
func CompressedPubNonceFromSecret(secNonce []byte) ([]byte, error) {
	k, err := parseSecNonce(secNonce)
	if err != nil {
		return nil, err
	}

	return pubNonceFromScalars(&k, CompressedPointSize), nil
}

// nonceEncoding returns the per-point encoding size used by a public nonce
// of the given length.
func nonceEncoding(n int) (int, error) {
	switch n {
	case PubNonceSize:
		return XOnlyPointSize, nil
	case PubNonceCompressedSize:
		return CompressedPointSize, nil
	}

	if n%XOnlyPointSize != 0 && n%CompressedPointSize != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of %d or "+
			"%d", ErrInvalidNonceSize, n, XOnlyPointSize,
			CompressedPointSize)
	}

	return 0, fmt.Errorf("%w: %d bytes doesn't hold exactly %d nonces",
		ErrInvalidNonceSize, n, NonceRounds)
}

// parsePubNonce lifts the points of a public nonce using the given encoding.
func parsePubNonce(pubNonce []byte,
	size int) ([NonceRounds]btcec.JacobianPoint, error) {

	var points [NonceRounds]btcec.JacobianPoint
	for j := range points {
		p, err := liftPoint(pubNonce[j*size : (j+1)*size]).Unpack()
		if err != nil {
			return points, fmt.Errorf("nonce %d: %w", j, err)
		}
		points[j] = p
	}

	return points, nil
}

// NonceAggregate holds the two aggregate nonce points of a session.
type NonceAggregate struct {
	points [NonceRounds]btcec.JacobianPoint
	size   int
}

// AggregateNonces sums the public nonces of all signers round by round:
//   - R_j = sum(R_{i,j})
//
// All nonces must have the same length, and that length must hold exactly
// two x-only or two compressed points. If one of the sums is the point at
// infinity, it's replaced by G. That can only happen if a signer is dishonest,
// and the session carries on so the culprit is caught when its partial
// signature fails to verify.
func AggregateNonces(pubNonces [][]byte) (*NonceAggregate, error) {
	if len(pubNonces) == 0 {
		return nil, fmt.Errorf("%w: no public nonces",
			ErrInvalidNonceSize)
	}

	nonceLen := len(pubNonces[0])
	for i, n := range pubNonces {
		if len(n) != nonceLen {
			return nil, fmt.Errorf("%w: nonce %d is %d bytes, "+
				"expected %d", ErrNonceSizeMismatch, i, len(n),
				nonceLen)
		}
	}
	size, err := nonceEncoding(nonceLen)
	if err != nil {
		return nil, err
	}

	agg := &NonceAggregate{size: size}
	for i, n := range pubNonces {
		points, err := parsePubNonce(n, size)
		if err != nil {
			return nil, fmt.Errorf("public nonce %d: %w", i, err)
		}

		for j := range points {
			agg.points[j] = addPoints(&agg.points[j], &points[j])
		}
	}

	for j := range agg.points {
		if isInfinity(&agg.points[j]) {
			log.Warnf("Aggregate nonce %d is the point at "+
				"infinity, using G", j)

			agg.points[j] = generator()
			continue
		}
		agg.points[j] = toAffine(&agg.points[j])
	}

	return agg, nil
}

// Bytes returns the aggregate nonce as two concatenated x-only points.
func (n *NonceAggregate) Bytes() []byte {
	b := make([]byte, 0, AggNonceSize)
	for j := range n.points {
		b = append(b, xOnlyBytes(&n.points[j])...)
	}

	return b
}

// Point returns the aggregate point of round j.
func (n *NonceAggregate) Point(j int) btcec.JacobianPoint {
	return n.points[j]
}

// NonceSize returns the per-point encoding size of the signer nonces, either
// XOnlyPointSize or CompressedPointSize.
func (n *NonceAggregate) NonceSize() int {
	return n.size
}
