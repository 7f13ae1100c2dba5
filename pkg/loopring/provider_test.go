package loopring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/layer2/pkg/layer2"
)

func TestNewProviderNetworks(t *testing.T) {
	p, err := NewProvider("homestead")
	require.NoError(t, err)
	assert.Equal(t, layer2.NetworkMainnet, p.Network())
	assert.Equal(t, uint64(1), p.Info().ChainID)
	assert.Equal(t, "LoopringLayer2Provider", p.Name())
	assert.Equal(t, "Layer 2 provider for Loopring by StablePay", p.Description())
	assert.Equal(t, layer2.VendorLoopring, p.Vendor())

	p, err = NewProvider(layer2.NetworkGoerli, WithNetworkInfo(NetworkInfo{EthRPC: "http://localhost:8545"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.Info().ChainID)
	assert.Equal(t, "http://localhost:8545", p.Info().EthRPC)
	assert.Equal(t, "https://uat2.loopring.io", p.Info().APIEndpoint)

	_, err = NewProvider(layer2.NetworkRopsten)
	assert.ErrorIs(t, err, layer2.ErrUnsupportedNetwork)
}

func TestFactoryRegistersWithRegistry(t *testing.T) {
	reg := layer2.NewRegistry()
	reg.Register(layer2.VendorLoopring, Factory())

	a, err := reg.Provider(context.Background(), layer2.VendorLoopring, "goerli")
	require.NoError(t, err)
	b, err := reg.Provider(context.Background(), layer2.VendorLoopring, " GOERLI ")
	require.NoError(t, err)
	assert.Same(t, a, b)
	require.NoError(t, reg.Close())
}

func TestProviderTokens(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	p, err := NewProvider(layer2.NetworkGoerli, WithNetworkInfo(f.info))
	require.NoError(t, err)
	ctx := context.Background()

	symbols, err := p.SupportedTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "LRC", "USDC"}, symbols)

	usdc, err := p.Token(ctx, "usdc")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), usdc.TokenID)
	assert.Equal(t, int32(6), usdc.Decimals)
	assert.False(t, usdc.IsEther())

	eth, err := p.Token(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, eth.IsEther())

	_, err = p.Token(ctx, "DOGE")
	assert.ErrorIs(t, err, ErrUnknownToken)

	tokens, err := p.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "ETH", tokens[0].Symbol)
	assert.Equal(t, "USDC", tokens[2].Symbol)

	assert.Equal(t, 1, f.recorded().tokenCalls)
}

func TestProviderTokenErrorsNotCached(t *testing.T) {
	f := newFakeLoopring(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	f.failTokens = true
	p, err := NewProvider(layer2.NetworkGoerli, WithNetworkInfo(f.info))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.SupportedTokens(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load tokens")

	f.mu.Lock()
	f.failTokens = false
	f.mu.Unlock()

	symbols, err := p.SupportedTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, symbols, 3)
	assert.Equal(t, 2, f.recorded().tokenCalls)
}

func TestProviderWalletRequiresSigner(t *testing.T) {
	p, err := NewProvider(layer2.NetworkGoerli)
	require.NoError(t, err)
	_, err = p.Wallet(context.Background(), nil)
	require.Error(t, err)
}

func TestProviderWithoutEthRPC(t *testing.T) {
	p, err := NewProvider(layer2.NetworkGoerli)
	require.NoError(t, err)
	_, err = p.ethBackend(context.Background())
	require.Error(t, err)
	assert.NoError(t, p.Close())
}
