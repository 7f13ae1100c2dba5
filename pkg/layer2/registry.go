package layer2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Vendor names a layer-2 provider implementation.
type Vendor string

const VendorLoopring Vendor = "loopring"

// Network names an Ethereum network.
type Network string

const (
	NetworkMainnet   Network = "mainnet"
	NetworkGoerli    Network = "goerli"
	NetworkRinkeby   Network = "rinkeby"
	NetworkRopsten   Network = "ropsten"
	NetworkLocalhost Network = "localhost"
)

// NormalizeNetwork lower-cases name and maps the "homestead" alias to mainnet.
func NormalizeNetwork(name string) Network {
	n := Network(strings.ToLower(strings.TrimSpace(name)))
	if n == "homestead" {
		return NetworkMainnet
	}
	return n
}

// Factory builds a provider for a network.
type Factory func(ctx context.Context, network Network) (Provider, error)

// Registry hands out one provider per (vendor, network), built on first use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Vendor]Factory
	instances map[string]Provider
	group     singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Vendor]Factory),
		instances: make(map[string]Provider),
	}
}

// Register adds or replaces the factory for vendor.
func (r *Registry) Register(vendor Vendor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[vendor] = factory
}

// SupportedVendors lists registered vendors in name order.
func (r *Registry) SupportedVendors() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vendors := make([]Vendor, 0, len(r.factories))
	for v := range r.factories {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })
	return vendors
}

// Provider returns the provider for vendor on network. Concurrent first calls
// share a single construction; a failed construction is not remembered.
func (r *Registry) Provider(ctx context.Context, vendor Vendor, network string) (Provider, error) {
	n := NormalizeNetwork(network)
	key := string(vendor) + "/" + string(n)

	r.mu.RLock()
	p, ok := r.instances[key]
	factory, known := r.factories[vendor]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVendor, vendor)
	}

	// The construction is shared, so it must outlive any one caller.
	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.instances[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := factory(buildCtx, n)
		if err != nil {
			return nil, fmt.Errorf("error encountered while creating provider instance: %w", err)
		}

		r.mu.Lock()
		r.instances[key] = created
		r.mu.Unlock()
		return created, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Provider), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes and forgets every provider built so far.
func (r *Registry) Close() error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]Provider)
	r.mu.Unlock()

	var errs []error
	for _, p := range instances {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
