package loopring

import (
	"fmt"

	"github.com/stablepay/layer2/pkg/layer2"
)

// NetworkInfo describes a Loopring deployment.
type NetworkInfo struct {
	APIEndpoint     string `yaml:"api_endpoint"`
	WSEndpoint      string `yaml:"ws_endpoint"`
	ChainID         uint64 `yaml:"chain_id"`
	ExchangeAddress string `yaml:"exchange_address"`
	// DepositAddress is the ERC-20 spender for deposits. Empty means the
	// exchange itself.
	DepositAddress string `yaml:"deposit_address"`
	DomainName     string `yaml:"domain_name"`
	DomainVersion  string `yaml:"domain_version"`
	// EthRPC is the layer-1 node used for deposits.
	EthRPC string `yaml:"eth_rpc"`
}

const (
	domainName    = "Loopring Protocol"
	domainVersion = "3.6.0"
)

var defaultNetworks = map[layer2.Network]NetworkInfo{
	layer2.NetworkMainnet: {
		APIEndpoint:     "https://api3.loopring.io",
		WSEndpoint:      "wss://ws.api3.loopring.io/v3/ws",
		ChainID:         1,
		ExchangeAddress: "0x0BABA1Ad5bE3a5C0a66E7ac838a129Bf948f1eA4",
		DepositAddress:  "0x674bdf20A0F284D710BC40872100128e2d66Bd3f",
		DomainName:      domainName,
		DomainVersion:   domainVersion,
	},
	layer2.NetworkGoerli: {
		APIEndpoint:     "https://uat2.loopring.io",
		WSEndpoint:      "wss://ws.uat2.loopring.io/v3/ws",
		ChainID:         5,
		ExchangeAddress: "0x2e76EBd1c7c0C8e7c2B875b6d505a260C525d25e",
		DomainName:      domainName,
		DomainVersion:   domainVersion,
	},
}

// DefaultNetworkInfo returns the built-in deployment for network.
func DefaultNetworkInfo(network layer2.Network) (NetworkInfo, error) {
	info, ok := defaultNetworks[layer2.NormalizeNetwork(string(network))]
	if !ok {
		return NetworkInfo{}, fmt.Errorf("%w: %s (supported: %s, %s)",
			layer2.ErrUnsupportedNetwork, network, layer2.NetworkMainnet, layer2.NetworkGoerli)
	}
	return info, nil
}

// Merge overlays the non-empty fields of o on info.
func (info NetworkInfo) Merge(o NetworkInfo) NetworkInfo {
	if o.APIEndpoint != "" {
		info.APIEndpoint = o.APIEndpoint
	}
	if o.WSEndpoint != "" {
		info.WSEndpoint = o.WSEndpoint
	}
	if o.ChainID != 0 {
		info.ChainID = o.ChainID
	}
	if o.ExchangeAddress != "" {
		info.ExchangeAddress = o.ExchangeAddress
	}
	if o.DepositAddress != "" {
		info.DepositAddress = o.DepositAddress
	}
	if o.DomainName != "" {
		info.DomainName = o.DomainName
	}
	if o.DomainVersion != "" {
		info.DomainVersion = o.DomainVersion
	}
	if o.EthRPC != "" {
		info.EthRPC = o.EthRPC
	}
	return info
}

// Spender is the address ERC-20 deposits must be approved for.
func (info NetworkInfo) Spender() string {
	if info.DepositAddress != "" {
		return info.DepositAddress
	}
	return info.ExchangeAddress
}
