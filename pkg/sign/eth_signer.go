package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	_ Signer    = (*EthereumSigner)(nil)
	_ PublicKey = EthereumPublicKey{}
	_ Address   = EthereumAddress{}
)

// EthereumAddress wraps common.Address.
type EthereumAddress struct{ common.Address }

// String returns the EIP-55 checksummed form.
func (a EthereumAddress) String() string { return a.Hex() }

// Equals compares addresses byte-wise, falling back to the string form for
// foreign Address implementations.
func (a EthereumAddress) Equals(other Address) bool {
	if o, ok := other.(EthereumAddress); ok {
		return a.Address == o.Address
	}
	return strings.EqualFold(a.String(), other.String())
}

// EthereumPublicKey wraps a secp256k1 public key.
type EthereumPublicKey struct{ *ecdsa.PublicKey }

func (p EthereumPublicKey) Address() Address {
	return EthereumAddress{ethcrypto.PubkeyToAddress(*p.PublicKey)}
}

// Bytes returns the uncompressed 65-byte encoding.
func (p EthereumPublicKey) Bytes() []byte { return ethcrypto.FromECDSAPub(p.PublicKey) }

// EthereumSigner signs with an in-memory secp256k1 key.
type EthereumSigner struct {
	key *ecdsa.PrivateKey
	pub EthereumPublicKey
}

// NewEthereumSigner parses a hex private key, with or without 0x.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return &EthereumSigner{
		key: key,
		pub: EthereumPublicKey{&key.PublicKey},
	}, nil
}

func (s *EthereumSigner) PublicKey() PublicKey { return s.pub }

// Sign signs a 32-byte digest. V is returned as 27/28.
func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// RecoverAddress returns the address that produced sig over hash. V may be
// 0/1 or 27/28; sig is not modified.
func RecoverAddress(hash []byte, sig Signature) (EthereumAddress, error) {
	if len(sig) != SignatureLength {
		return EthereumAddress{}, fmt.Errorf("%w: got %d", ErrInvalidSignature, len(sig))
	}
	local := make([]byte, SignatureLength)
	copy(local, sig)
	if local[64] >= 27 {
		local[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, local)
	if err != nil {
		return EthereumAddress{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return EthereumAddress{ethcrypto.PubkeyToAddress(*pub)}, nil
}

// RecoverMessageSigner is RecoverAddress for a personal_sign signature of msg.
func RecoverMessageSigner(msg []byte, sig Signature) (EthereumAddress, error) {
	return RecoverAddress(accounts.TextHash(msg), sig)
}

// AddressOf returns the Ethereum address of a signer's public key.
func AddressOf(s Signer) common.Address {
	return common.HexToAddress(s.PublicKey().Address().String())
}
