package loopring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
	"github.com/stablepay/layer2/pkg/sign"
)

const (
	providerName        = "LoopringLayer2Provider"
	providerDescription = "Layer 2 provider for Loopring by StablePay"
	// keyNetworkLabel names the exchange in the key derivation message.
	keyNetworkLabel = "Loopring"
)

var _ layer2.Provider = (*Provider)(nil)

// ErrUnknownToken is returned for symbols the exchange does not list.
var ErrUnknownToken = errors.New("unknown token")

// Provider is the Loopring exchange on one network.
type Provider struct {
	network      layer2.Network
	info         NetworkInfo
	client       *Client
	logger       log.Logger
	scheme       eddsa.Scheme
	pollInterval time.Duration
	unlockMaxFee string
	httpClient   *http.Client

	tokensMu sync.Mutex
	tokens   map[string]Token

	ethMu sync.Mutex
	eth   EthBackend
}

type Option func(*Provider)

// WithNetworkInfo overlays the non-empty fields of info on the defaults.
func WithNetworkInfo(info NetworkInfo) Option {
	return func(p *Provider) { p.info = p.info.Merge(info) }
}

func WithLogger(lg log.Logger) Option {
	return func(p *Provider) { p.logger = lg }
}

// WithScheme selects the EdDSA nonce derivation used for API signatures.
func WithScheme(s eddsa.Scheme) Option {
	return func(p *Provider) { p.scheme = s }
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// WithUnlockMaxFee caps the fee paid to register a signing key, in display
// units of the fee token.
func WithUnlockMaxFee(amount string) Option {
	return func(p *Provider) { p.unlockMaxFee = amount }
}

func WithHTTP(h *http.Client) Option {
	return func(p *Provider) { p.httpClient = h }
}

// WithEthBackend sets the layer-1 node instead of dialing NetworkInfo.EthRPC.
func WithEthBackend(b EthBackend) Option {
	return func(p *Provider) { p.eth = b }
}

// NewProvider returns the provider for network. Only mainnet and goerli have
// deployments.
func NewProvider(network layer2.Network, opts ...Option) (*Provider, error) {
	network = layer2.NormalizeNetwork(string(network))
	info, err := DefaultNetworkInfo(network)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		network:      network,
		info:         info,
		logger:       log.NewNoopLogger(),
		scheme:       eddsa.SchemeBlake512,
		pollInterval: DefaultPollInterval,
		unlockMaxFee: "0",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithName("loopring").WithKV("network", string(network))

	clientOpts := []ClientOption{WithClientLogger(p.logger)}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, WithHTTPClient(p.httpClient))
	}
	p.client = NewClient(p.info.APIEndpoint, clientOpts...)
	return p, nil
}

// Factory adapts NewProvider to the registry.
func Factory(opts ...Option) layer2.Factory {
	return func(_ context.Context, network layer2.Network) (layer2.Provider, error) {
		return NewProvider(network, opts...)
	}
}

func (p *Provider) Name() string            { return providerName }
func (p *Provider) Description() string     { return providerDescription }
func (p *Provider) Vendor() layer2.Vendor   { return layer2.VendorLoopring }
func (p *Provider) Network() layer2.Network { return p.network }
func (p *Provider) Info() NetworkInfo       { return p.info }
func (p *Provider) Client() *Client         { return p.client }

// SupportedTokens lists token symbols in name order.
func (p *Provider) SupportedTokens(ctx context.Context) ([]string, error) {
	tokens, err := p.tokenTable(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(tokens))
	for symbol := range tokens {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Tokens returns the token table, loading it on first use.
func (p *Provider) Tokens(ctx context.Context) ([]Token, error) {
	table, err := p.tokenTable(ctx)
	if err != nil {
		return nil, err
	}
	tokens := make([]Token, 0, len(table))
	for _, t := range table {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].TokenID < tokens[j].TokenID })
	return tokens, nil
}

// Token looks up symbol, ignoring case.
func (p *Provider) Token(ctx context.Context, symbol string) (Token, error) {
	table, err := p.tokenTable(ctx)
	if err != nil {
		return Token{}, err
	}
	t, ok := table[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return t, nil
}

func (p *Provider) tokenTable(ctx context.Context) (map[string]Token, error) {
	p.tokensMu.Lock()
	defer p.tokensMu.Unlock()

	if p.tokens != nil {
		return p.tokens, nil
	}

	tokens, err := p.client.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	table := make(map[string]Token, len(tokens))
	for _, t := range tokens {
		table[strings.ToUpper(t.Symbol)] = t
	}
	p.tokens = table
	p.logger.Debug("token table loaded", "count", len(table))
	return table, nil
}

// Wallet binds the provider to signer.
func (p *Provider) Wallet(_ context.Context, signer sign.Signer) (layer2.Backend, error) {
	if signer == nil {
		return nil, errors.New("wallet signer is required")
	}
	return newWallet(p, signer), nil
}

func (p *Provider) ethBackend(ctx context.Context) (EthBackend, error) {
	p.ethMu.Lock()
	defer p.ethMu.Unlock()

	if p.eth != nil {
		return p.eth, nil
	}
	if p.info.EthRPC == "" {
		return nil, fmt.Errorf("no layer-1 RPC endpoint configured for %s", p.network)
	}
	client, err := ethclient.DialContext(ctx, p.info.EthRPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to blockchain node: %w", err)
	}
	p.eth = client
	return client, nil
}

// Close releases the layer-1 connection, if any.
func (p *Provider) Close() error {
	p.ethMu.Lock()
	defer p.ethMu.Unlock()

	if c, ok := p.eth.(*ethclient.Client); ok {
		c.Close()
	}
	p.eth = nil
	return nil
}
