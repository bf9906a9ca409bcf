// Package worker implements the dependency-injected, scoped runtime at the
// center of the framework: the Container, Registry, Hook Engine, API
// Dispatcher, Task Engine, Subscription Manager, Stream Registry, and
// Application lifecycle.
package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
)

// Container is a scoped resolver: it caches resolved provider values for
// its own scope, delegates ancestor-scoped providers to its nearest
// ancestor of that scope, and refuses to resolve descendant-scoped
// providers.
type Container struct {
	parent *Container
	scope  Scope
	logger loggingpkg.ServiceLogger

	mu       sync.Mutex
	cache    map[*providerSpec]any
	order    []*providerSpec
	children map[*Container]struct{}
	disposed bool

	group singleflight.Group
}

// NewRootContainer creates the Global-scope container. There is exactly one
// per Application.
func NewRootContainer(logger loggingpkg.ServiceLogger) *Container {
	return newContainer(nil, ScopeGlobal, logger)
}

func newContainer(parent *Container, scope Scope, logger loggingpkg.ServiceLogger) *Container {
	return &Container{
		parent:   parent,
		scope:    scope,
		logger:   logger,
		cache:    make(map[*providerSpec]any),
		children: make(map[*Container]struct{}),
	}
}

// CreateScope creates a child container at scope, inheriting this
// container's cached instances for resolution purposes (ancestor lookups
// walk up through parent).
func (c *Container) CreateScope(scope Scope) *Container {
	child := newContainer(c, scope, c.logger)
	c.mu.Lock()
	c.children[child] = struct{}{}
	c.mu.Unlock()
	return child
}

// Provide pre-seeds an instance for p without invoking its factory. The
// value still participates in reverse-order disposal.
func Provide[V any](c *Container, p *Provider[V], value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[p.spec] = value
	c.order = append(c.order, p.spec)
}

// Resolve resolves p within c.
func Resolve[V any](ctx context.Context, c *Container, p *Provider[V]) (V, error) {
	v, err := c.resolveSpec(ctx, p.spec)
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Container) resolveSpec(ctx context.Context, p *providerSpec) (any, error) {
	if c.isDisposed() {
		return nil, errspkg.ErrContainerDisposed
	}

	if v, ok := c.lookupCached(p); ok {
		return v, nil
	}

	if p.scope == ScopeTransient {
		return c.construct(ctx, p)
	}

	switch {
	case p.scope == c.scope:
		return c.resolveOwn(ctx, p)
	case p.scope.depth() < c.scope.depth():
		ancestor := c.ancestorWithScope(p.scope)
		if ancestor == nil {
			return nil, errspkg.New(errspkg.ScopeMismatch, fmt.Sprintf("no ancestor container for scope %s", p.scope))
		}
		return ancestor.resolveSpec(ctx, p)
	default:
		return nil, errspkg.New(errspkg.ScopeMismatch, fmt.Sprintf("provider scope %s cannot be resolved from container scope %s", p.scope, c.scope))
	}
}

// resolveOwn resolves a provider whose scope matches this container,
// single-flighting concurrent resolves of the same provider.
func (c *Container) resolveOwn(ctx context.Context, p *providerSpec) (any, error) {
	key := fmt.Sprintf("%p", p)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookupCachedLocal(p); ok {
			return v, nil
		}
		value, err := c.construct(ctx, p)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[p] = value
		c.order = append(c.order, p)
		c.mu.Unlock()
		return value, nil
	})
	return v, err
}

func (c *Container) construct(ctx context.Context, p *providerSpec) (any, error) {
	resolvedDeps := make([]any, len(p.deps))
	for i, dep := range p.deps {
		v, err := c.resolveSpec(ctx, dep)
		if err != nil {
			return nil, err
		}
		resolvedDeps[i] = v
	}
	return p.factory(ctx, resolvedDeps)
}

func (c *Container) lookupCached(p *providerSpec) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.lookupCachedLocal(p); ok {
			return v, true
		}
	}
	return nil, false
}

func (c *Container) lookupCachedLocal(p *providerSpec) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[p]
	return v, ok
}

func (c *Container) ancestorWithScope(scope Scope) *Container {
	for cur := c.parent; cur != nil; cur = cur.parent {
		if cur.scope == scope {
			return cur
		}
	}
	return nil
}

func (c *Container) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Load eagerly resolves every root and its dependency subgraph, surfacing
// construction errors before the container starts serving.
func (c *Container) Load(ctx context.Context, roots ...*providerSpec) error {
	for _, root := range roots {
		if _, err := c.resolveSpec(ctx, root); err != nil {
			return err
		}
	}
	return nil
}

// Dispose tears the container down: children first, then this container's
// own cached instances in strict reverse resolution order. Idempotent.
// Disposer failures are logged and do not halt disposal of the remainder.
func (c *Container) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	children := make([]*Container, 0, len(c.children))
	for child := range c.children {
		children = append(children, child)
	}
	order := c.order
	cache := c.cache
	c.order = nil
	c.cache = make(map[*providerSpec]any)
	c.mu.Unlock()

	for _, child := range children {
		_ = child.Dispose(ctx)
	}

	for i := len(order) - 1; i >= 0; i-- {
		spec := order[i]
		if spec.dispose == nil {
			continue
		}
		value, ok := cache[spec]
		if !ok {
			continue
		}
		if err := spec.dispose(ctx, value); err != nil {
			if c.logger != nil {
				c.logger.Error("provider disposal failed", err, loggingpkg.LogFields{"provider": spec.desc})
			}
		}
	}

	if c.parent != nil {
		c.parent.mu.Lock()
		delete(c.parent.children, c)
		c.parent.mu.Unlock()
	}
	return nil
}

// Scope reports the container's scope tag.
func (c *Container) Scope() Scope { return c.scope }
