package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/layer2/pkg/layer2"
)

func TestNetworksVerifyVariables(t *testing.T) {
	valid := func() NetworkConfig {
		n := NetworkConfig{Vendor: "Loopring", Name: "goerli"}
		n.APIEndpoint = "https://uat.example.org"
		n.WSEndpoint = "wss://ws.uat.example.org/v3/ws"
		n.EthRPC = "http://localhost:8545"
		n.ExchangeAddress = "0x2e76EBd1c7c0C8e7c2B875b6d505a260C525d25e"
		return n
	}

	tests := []struct {
		name    string
		mutate  func(cfg *NetworksConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*NetworksConfig) {}},
		{
			name:    "unsupported vendor",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].Vendor = "zksync" },
			wantErr: "unsupported vendor 'zksync'",
		},
		{
			name:    "bad name",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].Name = "Goerli-2" },
			wantErr: "invalid network name",
		},
		{
			name: "duplicate",
			mutate: func(cfg *NetworksConfig) {
				cfg.Networks = append(cfg.Networks, cfg.Networks[0])
			},
			wantErr: "duplicate network 'goerli'",
		},
		{
			name:    "api endpoint",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].APIEndpoint = "ftp://x" },
			wantErr: "invalid api endpoint",
		},
		{
			name:    "ws endpoint",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].WSEndpoint = "https://x" },
			wantErr: "invalid websocket endpoint",
		},
		{
			name:    "eth rpc",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].EthRPC = "localhost:8545" },
			wantErr: "invalid eth rpc",
		},
		{
			name:    "exchange address",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].ExchangeAddress = "0x1234" },
			wantErr: "invalid exchange contract address",
		},
		{
			name:    "deposit address",
			mutate:  func(cfg *NetworksConfig) { cfg.Networks[0].DepositAddress = "deposit" },
			wantErr: "invalid deposit contract address",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NetworksConfig{Networks: []NetworkConfig{valid()}}
			tc.mutate(&cfg)

			err := cfg.verifyVariables()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "loopring", cfg.Networks[0].Vendor)
		})
	}
}

func TestLoadNetworks(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadNetworks(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, cfg.Networks)
	})

	t.Run("overrides", func(t *testing.T) {
		dir := t.TempDir()
		content := `networks:
  - vendor: loopring
    name: goerli
    api_endpoint: https://uat3.example.org
    chain_id: 5
  - name: mainnet
    deposit_address: "0x674bdf20A0F284D710BC40872100128e2d66Bd3f"
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, networksFileName), []byte(content), 0644))
		t.Setenv("LOOPRING_GOERLI_ETH_RPC", "https://goerli.example.org")

		cfg, err := LoadNetworks(dir)
		require.NoError(t, err)
		require.Len(t, cfg.Networks, 2)

		goerli, ok := cfg.Override(layer2.VendorLoopring, layer2.NetworkGoerli)
		require.True(t, ok)
		assert.Equal(t, "https://uat3.example.org", goerli.APIEndpoint)
		assert.Equal(t, uint64(5), goerli.ChainID)
		assert.Equal(t, "https://goerli.example.org", goerli.EthRPC)

		mainnet, ok := cfg.Override(layer2.VendorLoopring, layer2.NormalizeNetwork("homestead"))
		require.True(t, ok)
		assert.Equal(t, "0x674bdf20A0F284D710BC40872100128e2d66Bd3f", mainnet.DepositAddress)
		assert.Empty(t, mainnet.EthRPC)

		_, ok = cfg.Override(layer2.Vendor("zksync"), layer2.NetworkGoerli)
		assert.False(t, ok)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, networksFileName), []byte("networks: [oops"), 0644))
		_, err := LoadNetworks(dir)
		assert.ErrorContains(t, err, "failed to parse")
	})
}
