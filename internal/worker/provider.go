package worker

import "context"

// providerSpec is the type-erased dependency-graph node the Container
// resolves against. Providers are identity-addressed: providerSpec values
// are always referenced by pointer, so two providers built from identical
// arguments remain distinct nodes, matching the "identity-addressed" rule
// in the data model.
type providerSpec struct {
	scope   Scope
	deps    []*providerSpec
	factory func(ctx context.Context, deps []any) (any, error)
	dispose func(ctx context.Context, value any) error
	desc    string
}

// Provider is the typed handle application code holds onto. It wraps a
// providerSpec so Resolve can return a V without a cast at the call site.
type Provider[V any] struct {
	spec *providerSpec
}

// Describe returns the human-readable description given at construction;
// the Container logs it when the provider's disposer fails.
func (p *Provider[V]) Describe() string { return p.spec.desc }

// Scope reports the provider's declared scope.
func (p *Provider[V]) Scope() Scope { return p.spec.scope }

// Provide0 declares a provider with no dependencies.
func Provide0[V any](scope Scope, desc string, factory func(ctx context.Context) (V, error)) *Provider[V] {
	spec := &providerSpec{
		scope: scope,
		desc:  desc,
		factory: func(ctx context.Context, _ []any) (any, error) {
			return factory(ctx)
		},
	}
	return &Provider[V]{spec: spec}
}

// Provide1 declares a provider depending on one other provider.
func Provide1[D1, V any](scope Scope, desc string, dep1 *Provider[D1], factory func(ctx context.Context, d1 D1) (V, error)) *Provider[V] {
	spec := &providerSpec{
		scope: scope,
		desc:  desc,
		deps:  []*providerSpec{dep1.spec},
		factory: func(ctx context.Context, deps []any) (any, error) {
			return factory(ctx, deps[0].(D1))
		},
	}
	return &Provider[V]{spec: spec}
}

// Provide2 declares a provider depending on two other providers.
func Provide2[D1, D2, V any](scope Scope, desc string, dep1 *Provider[D1], dep2 *Provider[D2], factory func(ctx context.Context, d1 D1, d2 D2) (V, error)) *Provider[V] {
	spec := &providerSpec{
		scope: scope,
		desc:  desc,
		deps:  []*providerSpec{dep1.spec, dep2.spec},
		factory: func(ctx context.Context, deps []any) (any, error) {
			return factory(ctx, deps[0].(D1), deps[1].(D2))
		},
	}
	return &Provider[V]{spec: spec}
}

// Provide3 declares a provider depending on three other providers.
func Provide3[D1, D2, D3, V any](scope Scope, desc string, dep1 *Provider[D1], dep2 *Provider[D2], dep3 *Provider[D3], factory func(ctx context.Context, d1 D1, d2 D2, d3 D3) (V, error)) *Provider[V] {
	spec := &providerSpec{
		scope: scope,
		desc:  desc,
		deps:  []*providerSpec{dep1.spec, dep2.spec, dep3.spec},
		factory: func(ctx context.Context, deps []any) (any, error) {
			return factory(ctx, deps[0].(D1), deps[1].(D2), deps[2].(D3))
		},
	}
	return &Provider[V]{spec: spec}
}

// WithDisposer attaches a disposer invoked when the owning Container tears
// down. Disposal failures are logged, never surfaced.
func (p *Provider[V]) WithDisposer(dispose func(ctx context.Context, value V) error) *Provider[V] {
	p.spec.dispose = func(ctx context.Context, value any) error {
		return dispose(ctx, value.(V))
	}
	return p
}
