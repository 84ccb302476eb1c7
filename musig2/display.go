// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DisplayHex renders the public parts of a session as hex strings, keyed by
// name. It's meant for debugging and for printing sessions in tools; the
// output isn't a serialization format and can't be parsed back.
func DisplayHex(s *Session) map[string]string {
	h := hex.EncodeToString

	hexList := func(items [][]byte) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = h(item)
		}
		return strings.Join(parts, ",")
	}

	keyState := s.KeyState()
	nonceState := s.NonceState()

	out := map[string]string{
		"pub_keys":        hexList(s.PubKeys()),
		"pub_nonces":      hexList(s.PubNonces()),
		"int_pubkey":      h(s.InternalKey()),
		"group_pubkey":    h(s.AggregateKey()),
		"key_parity":      h(scalarBytes(&keyState.Parity)),
		"key_state":       h(scalarBytes(&keyState.State)),
		"key_tweak":       h(scalarBytes(&keyState.Tweak)),
		"group_nonce":     h(s.AggregateNonce()),
		"nonce_coeff":     h(s.NonceCoefficient()),
		"int_nonce":       h(s.InternalNonce()),
		"group_rx":        h(s.FinalNonce()),
		"nonce_parity":    h(scalarBytes(&nonceState.Parity)),
		"nonce_state":     h(scalarBytes(&nonceState.State)),
		"nonce_tweak":     h(scalarBytes(&nonceState.Tweak)),
		"challenge":       h(s.Challenge()),
		"message":         h(s.Message()),
		"nonce_encoding":  fmt.Sprintf("%d", s.NonceSize()),
		"key_tweak_count": fmt.Sprintf("%d", len(s.cfg.KeyTweaks)),
	}

	for _, pk := range s.PubKeys() {
		coeff, err := s.Coefficient(pk)
		if err != nil {
			continue
		}
		out["key_coeff_"+h(pk)] = h(scalarBytes(&coeff))
	}

	return out
}
