package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"gopkg.in/yaml.v3"

	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/loopring"
)

const (
	checkChainIDCallTimeout = 5 * time.Second
	networksFileName        = "networks.yaml"
)

var (
	networkNameRegex     = regexp.MustCompile(`^[a-z][a-z_]*[a-z]$`)
	contractAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	httpURLRegex         = regexp.MustCompile(`^https?://[^\s]+$`)
	wsURLRegex           = regexp.MustCompile(`^wss?://[^\s]+$`)
)

// NetworksConfig is the root of networks.yaml. Each entry overrides the
// built-in deployment of a vendor on one network.
type NetworksConfig struct {
	Networks []NetworkConfig `yaml:"networks"`
}

// NetworkConfig overrides one deployment. Empty fields keep the defaults.
type NetworkConfig struct {
	Vendor string `yaml:"vendor"`
	// Name is the network, e.g. "mainnet" or "goerli".
	Name string `yaml:"name"`

	loopring.NetworkInfo `yaml:",inline"`
}

// LoadNetworks reads <configDirPath>/networks.yaml. A missing file means no
// overrides. The layer-1 RPC of each entry may also come from the
// <VENDOR>_<NAME>_ETH_RPC environment variable.
func LoadNetworks(configDirPath string) (NetworksConfig, error) {
	var cfg NetworksConfig

	f, err := os.Open(filepath.Join(configDirPath, networksFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", networksFileName, err)
	}
	if err := cfg.verifyVariables(); err != nil {
		return cfg, err
	}
	cfg.applyRPCEnv()
	return cfg, nil
}

func (cfg *NetworksConfig) verifyVariables() error {
	seen := make(map[string]bool)
	for i, n := range cfg.Networks {
		vendor := strings.ToLower(n.Vendor)
		if vendor == "" {
			vendor = string(layer2.VendorLoopring)
		}
		if vendor != string(layer2.VendorLoopring) {
			return fmt.Errorf("unsupported vendor '%s' for network '%s'", n.Vendor, n.Name)
		}
		cfg.Networks[i].Vendor = vendor

		if !networkNameRegex.MatchString(n.Name) {
			return fmt.Errorf("invalid network name '%s', should match snake_case format", n.Name)
		}
		key := vendor + "/" + n.Name
		if seen[key] {
			return fmt.Errorf("duplicate network '%s' for vendor '%s'", n.Name, vendor)
		}
		seen[key] = true

		if n.APIEndpoint != "" && !httpURLRegex.MatchString(n.APIEndpoint) {
			return fmt.Errorf("invalid api endpoint '%s' for network '%s'", n.APIEndpoint, n.Name)
		}
		if n.WSEndpoint != "" && !wsURLRegex.MatchString(n.WSEndpoint) {
			return fmt.Errorf("invalid websocket endpoint '%s' for network '%s'", n.WSEndpoint, n.Name)
		}
		if n.EthRPC != "" && !httpURLRegex.MatchString(n.EthRPC) && !wsURLRegex.MatchString(n.EthRPC) {
			return fmt.Errorf("invalid eth rpc '%s' for network '%s'", n.EthRPC, n.Name)
		}
		if n.ExchangeAddress != "" && !contractAddressRegex.MatchString(n.ExchangeAddress) {
			return fmt.Errorf("invalid exchange contract address '%s' for network '%s'", n.ExchangeAddress, n.Name)
		}
		if n.DepositAddress != "" && !contractAddressRegex.MatchString(n.DepositAddress) {
			return fmt.Errorf("invalid deposit contract address '%s' for network '%s'", n.DepositAddress, n.Name)
		}
	}
	return nil
}

func (cfg *NetworksConfig) applyRPCEnv() {
	for i, n := range cfg.Networks {
		name := fmt.Sprintf("%s_%s_ETH_RPC", strings.ToUpper(n.Vendor), strings.ToUpper(n.Name))
		if rpc := os.Getenv(name); rpc != "" {
			cfg.Networks[i].EthRPC = rpc
		}
	}
}

// Override returns the configured overrides for vendor on network, if any.
func (cfg NetworksConfig) Override(vendor layer2.Vendor, network layer2.Network) (loopring.NetworkInfo, bool) {
	for _, n := range cfg.Networks {
		if n.Vendor == string(vendor) && layer2.NormalizeNetwork(n.Name) == network {
			return n.NetworkInfo, true
		}
	}
	return loopring.NetworkInfo{}, false
}

// checkChainID verifies the layer-1 RPC points at the expected chain.
func checkChainID(ctx context.Context, rpc string, expected uint64) error {
	ctx, cancel := context.WithTimeout(ctx, checkChainIDCallTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpc)
	if err != nil {
		return fmt.Errorf("failed to connect to blockchain RPC: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID from blockchain RPC: %w", err)
	}
	if chainID.Uint64() != expected {
		return fmt.Errorf("unexpected chain ID from blockchain RPC: got %d, want %d", chainID.Uint64(), expected)
	}
	return nil
}
