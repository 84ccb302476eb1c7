package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/musig2/coordinator"
	"github.com/lightningnetwork/musig2/lnutils"
	"github.com/lightningnetwork/musig2/musig2"
	"github.com/lightningnetwork/musig2/musigwire"
	"github.com/urfave/cli"
)

var (
	errNoSecret = errors.New("either --secret or --name must be set")

	errNoMessage = errors.New("either --msg or --msghex must be set")
)

// printJSON writes resp to w as indented JSON.
func printJSON(w io.Writer, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "    "); err != nil {
		return err
	}
	out.WriteString("\n")

	_, err = out.WriteTo(w)
	return err
}

// hexArg decodes the hex value of a required flag.
func hexArg(ctx *cli.Context, name string) ([]byte, error) {
	if !ctx.IsSet(name) {
		return nil, fmt.Errorf("--%s must be set", name)
	}

	b, err := hex.DecodeString(ctx.String(name))
	if err != nil {
		return nil, fmt.Errorf("unable to decode --%s: %w", name, err)
	}

	return b, nil
}

// messageArg returns the message to sign, given as text or hex.
func messageArg(ctx *cli.Context) ([]byte, error) {
	switch {
	case ctx.IsSet("msghex"):
		return hexArg(ctx, "msghex")

	case ctx.IsSet("msg"):
		return []byte(ctx.String("msg")), nil

	default:
		return nil, errNoMessage
	}
}

// encodeWire serializes a wire message and returns it as hex.
func encodeWire(msg musigwire.Message) (string, error) {
	var b bytes.Buffer
	if _, err := musigwire.WriteMessage(&b, msg); err != nil {
		return "", err
	}

	return hex.EncodeToString(b.Bytes()), nil
}

var (
	pubKeysFlag = cli.StringSliceFlag{
		Name:  "pubkey",
		Usage: "The x-only public key of a signer, may be repeated.",
	}

	noncesFlag = cli.StringSliceFlag{
		Name:  "nonce",
		Usage: "The public nonce of a signer, may be repeated.",
	}

	msgFlag = cli.StringFlag{
		Name:  "msg",
		Usage: "The message to sign, as text.",
	}

	msgHexFlag = cli.StringFlag{
		Name:  "msghex",
		Usage: "The message to sign, as hex.",
	}

	sessionFlags = []cli.Flag{pubKeysFlag, noncesFlag, msgFlag, msgHexFlag}
)

// sessionFromArgs builds the session described by the --pubkey, --nonce and
// message flags, using the configured tweaks.
func sessionFromArgs(ctx *cli.Context) (*musig2.Session, error) {
	pubKeys, err := decodeHexList("public key", ctx.StringSlice("pubkey"))
	if err != nil {
		return nil, err
	}
	pubNonces, err := decodeHexList("nonce", ctx.StringSlice("nonce"))
	if err != nil {
		return nil, err
	}
	msg, err := messageArg(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := getConfig(ctx).sessionOptions()
	if err != nil {
		return nil, err
	}

	return musig2.NewSession(pubKeys, pubNonces, msg, opts...)
}

var keyGenCommand = cli.Command{
	Name:     "keygen",
	Category: "Keys",
	Usage:    "Derive the x-only public key of a secret key.",
	Description: `
	Derives the public key that belongs to a 32 byte secret key. The secret
	is either given as hex, or derived as the sha256 of --name, which is
	handy for reproducible test keys.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "secret",
			Usage: "The 32 byte secret key as hex.",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "Derive the secret key as sha256(name).",
		},
	},
	Action: keyGen,
}

func keyGen(ctx *cli.Context) error {
	var secret []byte
	switch {
	case ctx.IsSet("secret"):
		var err error
		secret, err = hexArg(ctx, "secret")
		if err != nil {
			return err
		}

	case ctx.IsSet("name"):
		h := sha256.Sum256([]byte(ctx.String("name")))
		secret = h[:]

	default:
		return errNoSecret
	}

	_, pubKey, err := musig2.SecretToKeyPair(secret)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, struct {
		SecKey string `json:"seckey"`
		PubKey string `json:"pubkey"`
	}{
		SecKey: hex.EncodeToString(secret),
		PubKey: hex.EncodeToString(pubKey[:]),
	})
}

var nonceGenCommand = cli.Command{
	Name:     "noncegen",
	Category: "Nonces",
	Usage:    "Generate a fresh pair of nonces.",
	Description: `
	Generates a secret nonce and its public nonce in both encodings. The
	secret nonce must only ever be used for a single signature.

	With --seed, the 64 byte seed is used instead of fresh randomness.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "seed",
			Usage: "A 64 byte hex seed to derive the nonces from.",
		},
	},
	Action: nonceGen,
}

func nonceGen(ctx *cli.Context) error {
	var opts []musig2.NonceGenOption
	if ctx.IsSet("seed") {
		seed, err := hexArg(ctx, "seed")
		if err != nil {
			return err
		}
		if len(seed) != musig2.SecNonceSize {
			return fmt.Errorf("seed must be %d bytes, got %d",
				musig2.SecNonceSize, len(seed))
		}

		var s [musig2.SecNonceSize]byte
		copy(s[:], seed)
		opts = append(opts, musig2.WithNonceSeed(s))
	}

	nonces, err := musig2.GenNonces(opts...)
	if err != nil {
		return err
	}

	compressed, err := musig2.CompressedPubNonceFromSecret(
		nonces.SecNonce[:],
	)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, struct {
		SecNonce           string `json:"secnonce"`
		PubNonce           string `json:"pubnonce"`
		PubNonceCompressed string `json:"pubnonce_compressed"`
	}{
		SecNonce:           hex.EncodeToString(nonces.SecNonce[:]),
		PubNonce:           hex.EncodeToString(nonces.PubNonce[:]),
		PubNonceCompressed: hex.EncodeToString(compressed),
	})
}

var aggregateCommand = cli.Command{
	Name:     "aggregate",
	Category: "Keys",
	Usage:    "Aggregate the public keys of a set of signers.",
	Description: `
	Aggregates the given x-only public keys, in any order, and applies the
	configured key tweaks. The result is the key the final signature
	verifies against.`,
	Flags:  []cli.Flag{pubKeysFlag},
	Action: aggregate,
}

func aggregate(ctx *cli.Context) error {
	pubKeys, err := decodeHexList("public key", ctx.StringSlice("pubkey"))
	if err != nil {
		return err
	}

	opts, err := getConfig(ctx).sessionOptions()
	if err != nil {
		return err
	}

	keyCtx, err := musig2.NewKeyContext(pubKeys, opts...)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, struct {
		AggregateKey string `json:"aggregate_key"`
		InternalKey  string `json:"internal_key"`
		NumKeys      int    `json:"num_keys"`
	}{
		AggregateKey: hex.EncodeToString(keyCtx.PubKey()),
		InternalKey:  hex.EncodeToString(keyCtx.InternalKey()),
		NumKeys:      keyCtx.NumKeys(),
	})
}

var sessionCommand = cli.Command{
	Name:     "session",
	Category: "Signing",
	Usage:    "Show the values derived for a signing session.",
	Description: `
	Builds the session for the given keys, nonces and message and prints
	every public value derived from them.`,
	Flags:  sessionFlags,
	Action: showSession,
}

func showSession(ctx *cli.Context) error {
	session, err := sessionFromArgs(ctx)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, musig2.DisplayHex(session))
}

var signCommand = cli.Command{
	Name:     "sign",
	Category: "Signing",
	Usage:    "Create a partial signature.",
	Description: `
	Creates the partial signature of one signer. The signer's public key
	and public nonce must be part of the session.

	The output holds the raw partial signature and the same signature
	wrapped in a wire message that can be handed to combine.`,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "seckey",
			Usage: "The 32 byte secret key of the signer as hex.",
		},
		cli.StringFlag{
			Name: "secnonce",
			Usage: "The 64 byte secret nonce of the signer as " +
				"hex.",
		},
		cli.BoolFlag{
			Name: "fast",
			Usage: "Skip checking the partial signature before " +
				"returning it.",
		},
	}, sessionFlags...),
	Action: sign,
}

func sign(ctx *cli.Context) error {
	session, err := sessionFromArgs(ctx)
	if err != nil {
		return err
	}

	secKey, err := hexArg(ctx, "seckey")
	if err != nil {
		return err
	}
	secNonce, err := hexArg(ctx, "secnonce")
	if err != nil {
		return err
	}

	var signOpts []musig2.SignOption
	if ctx.Bool("fast") {
		signOpts = append(signOpts, musig2.WithFastSign())
	}

	sig, err := musig2.Sign(session, secKey, secNonce, signOpts...)
	if err != nil {
		return err
	}

	id := musigwire.NewSessionID(session.AggregateKey(), session.Message())
	wire, err := encodeWire(musigwire.NewPartialSigMsg(id, sig))
	if err != nil {
		return err
	}

	log.DebugS(context.Background(), "Created partial signature",
		lnutils.LogKey("signer", sig.PubKey[:]),
		"session_id", lnutils.NewLogClosure(func() string {
			return hex.EncodeToString(id[:])
		}))

	return printJSON(ctx.App.Writer, struct {
		PartialSig string `json:"partial_sig"`
		Wire       string `json:"wire"`
	}{
		PartialSig: hex.EncodeToString(sig.Bytes()),
		Wire:       wire,
	})
}

var combineCommand = cli.Command{
	Name:     "combine",
	Category: "Signing",
	Usage:    "Combine partial signatures into the final signature.",
	Description: `
	Checks the partial signatures of every signer and combines them into
	one BIP-340 signature. Each partial signature carries its signer's key
	and nonce, so only the public keys and the message are needed to
	rebuild the session.

	A partial signature is given either raw or as the wire message printed
	by sign.`,
	Flags: []cli.Flag{
		pubKeysFlag, msgFlag, msgHexFlag,
		cli.StringSliceFlag{
			Name:  "psig",
			Usage: "A partial signature as hex, may be repeated.",
		},
	},
	Action: combine,
}

// parsePartialSig decodes a partial signature given either in its raw
// encoding or wrapped in a wire message.
func parsePartialSig(s string) (*musig2.PartialSignature,
	*musigwire.SessionID, error) {

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, nil, err
	}

	switch len(b) {
	case musig2.PartialSigSize, musig2.PartialSigCompressedSize:
		sig, err := musig2.ParsePartialSig(b)
		return sig, nil, err
	}

	msg, err := musigwire.ReadMessage(bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}

	sigMsg, ok := msg.(*musigwire.PartialSigMsg)
	if !ok {
		return nil, nil, fmt.Errorf("expected %v message, got %v",
			musigwire.MsgPartialSig, msg.MsgType())
	}

	return &sigMsg.PartialSig.PartialSignature, &sigMsg.SessionID, nil
}

func combine(ctx *cli.Context) error {
	pubKeys, err := decodeHexList("public key", ctx.StringSlice("pubkey"))
	if err != nil {
		return err
	}
	msg, err := messageArg(ctx)
	if err != nil {
		return err
	}

	opts, err := getConfig(ctx).sessionOptions()
	if err != nil {
		return err
	}

	mgr := coordinator.NewManager(nil)
	roundID, err := mgr.NewRound(pubKeys, msg, opts...)
	if err != nil {
		return err
	}
	defer mgr.Cleanup(roundID)

	psigs := ctx.StringSlice("psig")
	sigs := make([]*musig2.PartialSignature, 0, len(psigs))
	var sessionID *musigwire.SessionID
	for i, s := range psigs {
		sig, id, err := parsePartialSig(s)
		if err != nil {
			return fmt.Errorf("partial signature %d: %w", i, err)
		}

		switch {
		case id == nil:

		case sessionID == nil:
			sessionID = id

		case *sessionID != *id:
			return fmt.Errorf("partial signature %d belongs to "+
				"another session", i)
		}

		if _, err := mgr.RegisterNonce(
			roundID, sig.PubKey[:], sig.PubNonce,
		); err != nil {
			return fmt.Errorf("partial signature %d: %w", i, err)
		}

		sigs = append(sigs, sig)
	}

	session, err := mgr.Session(roundID)
	if err != nil {
		return err
	}

	id := musigwire.NewSessionID(session.AggregateKey(), msg)
	if sessionID != nil && *sessionID != id {
		log.WarnS(context.Background(), "Partial signatures carry "+
			"an unexpected session ID", nil,
			"expected", hex.EncodeToString(id[:]),
			"got", hex.EncodeToString(sessionID[:]))
	}

	for i, sig := range sigs {
		if _, err := mgr.RegisterPartialSig(roundID, sig); err != nil {
			return fmt.Errorf("partial signature %d: %w", i, err)
		}
	}

	finalSig, err := mgr.Finalize(context.Background(), roundID)
	if err != nil {
		return err
	}

	finalMsg, err := musigwire.NewFinalSigMsg(id, finalSig)
	if err != nil {
		return err
	}
	wire, err := encodeWire(finalMsg)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, struct {
		AggregateKey string `json:"aggregate_key"`
		Signature    string `json:"signature"`
		Wire         string `json:"wire"`
	}{
		AggregateKey: hex.EncodeToString(session.AggregateKey()),
		Signature:    hex.EncodeToString(finalSig),
		Wire:         wire,
	})
}

var verifyCommand = cli.Command{
	Name:     "verify",
	Category: "Signing",
	Usage:    "Verify a BIP-340 signature.",
	Description: `
	Verifies a 64 byte BIP-340 signature against an x-only public key and
	a message of any length.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "pubkey",
			Usage: "The x-only public key as hex.",
		},
		msgFlag, msgHexFlag,
		cli.StringFlag{
			Name:  "sig",
			Usage: "The 64 byte signature as hex.",
		},
	},
	Action: verify,
}

func verify(ctx *cli.Context) error {
	pubKey, err := hexArg(ctx, "pubkey")
	if err != nil {
		return err
	}
	msg, err := messageArg(ctx)
	if err != nil {
		return err
	}
	sig, err := hexArg(ctx, "sig")
	if err != nil {
		return err
	}

	valid, err := musig2.VerifySchnorr(pubKey, msg, sig)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, struct {
		Valid bool `json:"valid"`
	}{
		Valid: valid,
	})
}
