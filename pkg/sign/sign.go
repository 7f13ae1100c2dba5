package sign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignatureLength is the size of an r || s || v secp256k1 signature.
const SignatureLength = 65

// ErrInvalidSignature is returned for signatures that are not 65 bytes long.
var ErrInvalidSignature = errors.New("invalid signature length")

// Signer signs 32-byte digests with a key it does not expose.
type Signer interface {
	PublicKey() PublicKey
	// Sign expects a digest, not a raw message.
	Sign(hash []byte) (Signature, error)
}

// PublicKey is the public half of a Signer.
type PublicKey interface {
	Address() Address
	Bytes() []byte
}

// Address identifies an account.
type Address interface {
	fmt.Stringer

	Equals(other Address) bool
}

// Signature is an r || s || v signature with v in {27, 28}. It marshals to
// JSON as a 0x-prefixed hex string.
type Signature []byte

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := hexutil.Decode(str)
	if err != nil {
		return err
	}
	*s = raw
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}

// SignMessage signs msg with the EIP-191 personal message prefix, the way
// wallets implement personal_sign.
func SignMessage(signer Signer, msg []byte) (Signature, error) {
	return signer.Sign(accounts.TextHash(msg))
}

// SignTypedData signs the EIP-712 digest of typedData.
func SignTypedData(signer Signer, typedData apitypes.TypedData) (Signature, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return signer.Sign(hash)
}

// MessageSigner adapts a Signer to context-aware personal_sign.
type MessageSigner struct {
	Signer Signer
}

// SignMessage implements personal_sign. The context is only checked before
// signing since local keys do not block.
func (m MessageSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Signer == nil {
		return nil, errors.New("no wallet signer configured")
	}
	return SignMessage(m.Signer, msg)
}
