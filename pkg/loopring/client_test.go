package loopring

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/sign"
)

func TestClientAccount(t *testing.T) {
	owner := sign.AddressOf(sign.NewMockSigner("alice")).Hex()
	f := newFakeLoopring(t, owner)
	c := NewClient(f.srv.URL)

	info, err := c.Account(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(testAccountID), info.AccountID)
	assert.Equal(t, owner, info.Owner)
	assert.False(t, info.PublicKey.IsSet())

	pub, err := info.PublicKey.Point()
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestClientAccountNotFound(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	c := NewClient(f.srv.URL)

	_, err := c.Account(context.Background(), "0x0000000000000000000000000000000000000001")
	require.Error(t, err)

	var reqErr *layer2.BackendRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, codeAccountNotFound, reqErr.Code)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Equal(t, "account not found", err.Error())
	assert.True(t, isAccountNotFound(err))
	assert.False(t, layer2.IsAccountLocked(err))
}

func TestClientLockedError(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	c := NewClient(f.srv.URL)

	key := eddsa.NewKeyPair(big.NewInt(42))
	_, err := c.APIKey(context.Background(), testAccountID, key, eddsa.SchemeBlake512)
	require.Error(t, err)
	assert.ErrorIs(t, err, layer2.ErrAccountLocked)
	assert.True(t, layer2.IsAccountLocked(err))

	var reqErr *layer2.BackendRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, codeAccountLocked, reqErr.Code)
}

func TestClientAPIKey(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	key := eddsa.NewKeyPair(big.NewInt(7777))
	f.key = key.Public

	c := NewClient(f.srv.URL)
	for _, scheme := range []eddsa.Scheme{eddsa.SchemeBlake512, eddsa.SchemeSHA512} {
		apiKey, err := c.APIKey(context.Background(), testAccountID, key, scheme)
		require.NoError(t, err)
		assert.Equal(t, testAPIKey, apiKey)
	}

	// a different key fails the signature check
	_, err := c.APIKey(context.Background(), testAccountID, eddsa.NewKeyPair(big.NewInt(8888)), eddsa.SchemeBlake512)
	var reqErr *layer2.BackendRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
}

func TestClientTxStatus(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	c := NewClient(f.srv.URL)
	ctx := context.Background()

	st, err := c.TxStatus(ctx, testAPIKey, TxKindTransfer, testAccountID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Equal(t, uint64(666), st.BlockID)

	st, err = c.TxStatus(ctx, testAPIKey, TxKindTransfer, testAccountID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, st.Status)

	_, err = c.TxStatus(ctx, testAPIKey, TxKindTransfer, testAccountID+1, "0xabc")
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, err = c.TxStatus(ctx, "wrong-key", TxKindTransfer, testAccountID, "0xabc")
	var reqErr *layer2.BackendRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "invalid api key", reqErr.Message)
}

func TestBackendErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).Tokens(context.Background())
	var reqErr *layer2.BackendRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadGateway, reqErr.StatusCode)
	assert.Equal(t, "bad gateway", reqErr.Message)
}

func TestClientContextCancelled(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(f.srv.URL).Tokens(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
