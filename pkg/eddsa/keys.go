package eddsa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const keyMessageTemplate = "Sign this message to access %s Exchange: %s with key nonce: %d"

// ErrExternalSigningFailure reports that the wallet signer could not produce
// the seed signature.
var ErrExternalSigningFailure = errors.New("external signing failure")

// MessageSigner signs an arbitrary message the way an Ethereum wallet does
// (personal_sign). Implementations may block on user interaction.
type MessageSigner interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// KeyMessage renders the message a wallet signs to derive its layer-2 key.
func KeyMessage(network, contractAddress string, nonce uint64) string {
	return fmt.Sprintf(keyMessageTemplate, network, contractAddress, nonce)
}

// SeedFromSignature returns the UTF-8 bytes of "0x" + hex(sha256(sig)).
func SeedFromSignature(sig []byte) []byte {
	sum := sha256.Sum256(sig)
	return []byte("0x" + hex.EncodeToString(sum[:]))
}

// KeyPairFromSeed interprets seed as a little-endian integer and reduces it
// into a secret scalar.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrExternalSigningFailure)
	}
	return NewKeyPair(leToInt(seed)), nil
}

// DeriveKeyPair asks signer to sign the key message for (network, contract,
// nonce) and derives the key pair from the signature. The same wallet and
// nonce always yield the same key.
func DeriveKeyPair(ctx context.Context, signer MessageSigner, network, contractAddress string, nonce uint64) (*KeyPair, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrExternalSigningFailure)
	}

	sig, err := signer.SignMessage(ctx, []byte(KeyMessage(network, contractAddress, nonce)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalSigningFailure, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrExternalSigningFailure)
	}

	return KeyPairFromSeed(SeedFromSignature(sig))
}

// Pad64 left-pads a bare hex string with zeros to 64 characters. Longer input
// is returned unchanged.
func Pad64(s string) string {
	if len(s) >= 64 {
		return s
	}
	return strings.Repeat("0", 64-len(s)) + s
}

// XPad64 is Pad64 that keeps a leading 0x.
func XPad64(s string) string {
	if strings.HasPrefix(s, "0x") {
		return "0x" + Pad64(s[2:])
	}
	return Pad64(s)
}

func hex64(v *big.Int) string {
	return "0x" + Pad64(v.Text(16))
}

// PublicKeyXHex returns the x coordinate as 0x + 64 hex characters.
func (k *KeyPair) PublicKeyXHex() string { return hex64(k.Public.XBig()) }

// PublicKeyYHex returns the y coordinate as 0x + 64 hex characters.
func (k *KeyPair) PublicKeyYHex() string { return hex64(k.Public.YBig()) }

// SecretHex returns the secret scalar as 0x + 64 hex characters.
func (k *KeyPair) SecretHex() string { return hex64(k.Secret) }

// Hex concatenates Rx, Ry and s, each padded to 64 hex characters.
func (s *Signature) Hex() string {
	return "0x" + Pad64(s.R.XBig().Text(16)) + Pad64(s.R.YBig().Text(16)) + Pad64(s.S.Text(16))
}
