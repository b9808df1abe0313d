package gateway

import (
	"fmt"
	"sort"

	"event-registration/internal/services/gateway/credo"
	"event-registration/internal/services/gateway/flutterwave"
	"event-registration/internal/services/gateway/paystack"
	"event-registration/internal/status"
	"event-registration/utils"
)

// Factory creates gateway adapters from their provider configuration.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateGateway builds the adapter for provider. config must be the
// provider package's *Config.
func (f *Factory) CreateGateway(provider Provider, config any) (Gateway, error) {
	switch provider {
	case Flutterwave:
		cfg, ok := config.(*flutterwave.Config)
		if !ok {
			return nil, fmt.Errorf("invalid Flutterwave config type, expected *flutterwave.Config")
		}
		return NewFlutterwaveAdapter(cfg), nil

	case Paystack:
		cfg, ok := config.(*paystack.Config)
		if !ok {
			return nil, fmt.Errorf("invalid Paystack config type, expected *paystack.Config")
		}
		return NewPaystackAdapter(cfg), nil

	case Credo:
		cfg, ok := config.(*credo.Config)
		if !ok {
			return nil, fmt.Errorf("invalid Credo config type, expected *credo.Config")
		}
		return NewCredoAdapter(cfg), nil

	default:
		return nil, fmt.Errorf("%w: %s", status.ErrUnsupportedProvider, provider)
	}
}

func (f *Factory) SupportedProviders() []Provider {
	return []Provider{Flutterwave, Paystack, Credo}
}

// Registry holds the configured gateways, each behind its own circuit
// breaker. It is filled at startup and read-only afterwards.
type Registry struct {
	gateways    map[Provider]Gateway
	factory     *Factory
	primary     Provider
	breakerOpts []utils.BreakerOption
}

func NewRegistry(factory *Factory, breakerOpts ...utils.BreakerOption) *Registry {
	return &Registry{
		gateways:    make(map[Provider]Gateway),
		factory:     factory,
		breakerOpts: breakerOpts,
	}
}

// RegisterGateway creates and registers the adapter for provider.
func (r *Registry) RegisterGateway(provider Provider, config any) error {
	g, err := r.factory.CreateGateway(provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}

	r.Register(g)
	return nil
}

// Register adds an already built gateway. The first one registered becomes
// primary.
func (r *Registry) Register(g Gateway) {
	r.gateways[g.Provider()] = newGuardedGateway(g, r.breakerOpts...)

	if r.primary == "" {
		r.primary = g.Provider()
	}
}

func (r *Registry) Gateway(provider Provider) (Gateway, error) {
	g, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s is not configured", status.ErrUnsupportedProvider, provider)
	}
	return g, nil
}

func (r *Registry) Primary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("%w: no gateway configured", status.ErrUnsupportedProvider)
	}
	return r.Gateway(r.primary)
}

func (r *Registry) SetPrimary(provider Provider) error {
	if _, exists := r.gateways[provider]; !exists {
		return fmt.Errorf("%w: %s is not configured", status.ErrUnsupportedProvider, provider)
	}
	r.primary = provider
	return nil
}

// Providers lists registered providers in name order.
func (r *Registry) Providers() []Provider {
	providers := make([]Provider, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}
