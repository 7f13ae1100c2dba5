package sign

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var _ Signer = (*MockSigner)(nil)

// MockSigner is a test double. It signs deterministically with a key derived
// from its name, or returns Err when set.
type MockSigner struct {
	inner *EthereumSigner
	Err   error
	Calls int
}

// NewMockSigner derives a throwaway key from keccak256(name).
func NewMockSigner(name string) *MockSigner {
	seed := ethcrypto.Keccak256([]byte(name))
	inner, err := NewEthereumSigner(common.Bytes2Hex(seed))
	if err != nil {
		// keccak output is a valid secp256k1 scalar for any realistic name
		panic(err)
	}
	return &MockSigner{inner: inner}
}

func (m *MockSigner) PublicKey() PublicKey { return m.inner.PublicKey() }

func (m *MockSigner) Sign(hash []byte) (Signature, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.inner.Sign(hash)
}
