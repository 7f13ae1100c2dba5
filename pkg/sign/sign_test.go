package sign

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func setupSigner(t *testing.T) *EthereumSigner {
	t.Helper()
	signer, err := NewEthereumSigner(testPrivKey)
	require.NoError(t, err)
	return signer
}

func TestNewEthereumSigner(t *testing.T) {
	t.Run("with prefix", func(t *testing.T) {
		signer := setupSigner(t)
		assert.True(t, strings.EqualFold(testAddress, signer.PublicKey().Address().String()))
		assert.Equal(t, testAddress, AddressOf(signer).Hex())
	})

	t.Run("without prefix", func(t *testing.T) {
		signer, err := NewEthereumSigner(strings.TrimPrefix(testPrivKey, "0x"))
		require.NoError(t, err)
		assert.True(t, strings.EqualFold(testAddress, signer.PublicKey().Address().String()))
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := NewEthereumSigner("0xnothex")
		assert.Error(t, err)
	})

	t.Run("public key bytes", func(t *testing.T) {
		b := setupSigner(t).PublicKey().Bytes()
		require.Len(t, b, 65)
		assert.Equal(t, byte(0x04), b[0])
	})
}

func TestSignAndRecover(t *testing.T) {
	signer := setupSigner(t)
	hash := ethcrypto.Keccak256([]byte("digest me"))

	sig, err := signer.Sign(hash)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.True(t, addr.Equals(signer.PublicKey().Address()))
	assert.Contains(t, []byte{27, 28}, sig[64], "recovery must not mutate the signature")

	_, err = RecoverAddress(hash, sig[:64])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignMessage(t *testing.T) {
	signer := setupSigner(t)
	msg := []byte("Sign this message to access Loopring Exchange: 0x0 with key nonce: 0")

	sig, err := SignMessage(signer, msg)
	require.NoError(t, err)

	addr, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.String())

	again, err := SignMessage(signer, msg)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "RFC6979 signatures are deterministic")
}

func TestMessageSigner(t *testing.T) {
	ms := MessageSigner{Signer: setupSigner(t)}
	sig, err := ms.SignMessage(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Len(t, sig, SignatureLength)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ms.SignMessage(ctx, []byte("hi"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = MessageSigner{}.SignMessage(context.Background(), []byte("hi"))
	assert.Error(t, err)
}

func TestSignTypedData(t *testing.T) {
	signer := setupSigner(t)
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Ping": {
				{Name: "owner", Type: "address"},
				{Name: "nonce", Type: "uint32"},
			},
		},
		PrimaryType: "Ping",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{
			"owner": testAddress,
			"nonce": big.NewInt(3),
		},
	}

	sig, err := SignTypedData(signer, typedData)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)
	addr, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.String())

	t.Run("invalid typed data", func(t *testing.T) {
		broken := typedData
		broken.PrimaryType = "Missing"
		_, err := SignTypedData(signer, broken)
		assert.Error(t, err)
	})
}

func TestSignatureJSON(t *testing.T) {
	sig := Signature{0x01, 0x02, 0x03}
	data, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.Equal(t, `"0x010203"`, string(data))

	var decoded Signature
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sig, decoded)

	for _, bad := range []string{`{invalid}`, `"0xzz"`, `123`} {
		var s Signature
		assert.Error(t, json.Unmarshal([]byte(bad), &s), bad)
	}
}

func TestMockSigner(t *testing.T) {
	a := NewMockSigner("alice")
	b := NewMockSigner("alice")
	assert.True(t, a.PublicKey().Address().Equals(b.PublicKey().Address()))
	assert.False(t, a.PublicKey().Address().Equals(NewMockSigner("bob").PublicKey().Address()))

	hash := ethcrypto.Keccak256([]byte("x"))
	sig, err := a.Sign(hash)
	require.NoError(t, err)
	addr, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.True(t, addr.Equals(a.PublicKey().Address()))

	a.Err = errors.New("Metamask Cancel")
	_, err = a.Sign(hash)
	assert.EqualError(t, err, "Metamask Cancel")
	assert.Equal(t, 2, a.Calls)
}
