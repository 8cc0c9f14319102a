// Package mount collects the subtrees an application contributes and
// attaches them to a router at startup. The router itself never discovers
// or loads modules.
package mount

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/duplex/pkg/router"
)

// Module contributes one subtree under a namespace.
type Module interface {
	// Namespace is the first path segment the subtree is attached under.
	Namespace() string

	// Subtree builds the handler collection. It is called once, by Apply.
	Subtree() (*router.Subtree, error)
}

// Collector is implemented by modules that carry their own Prometheus
// collectors. Apply registers them next to the subtree.
type Collector interface {
	Collectors() []prometheus.Collector
}

// Func adapts a namespace and a build function to a Module.
func Func(namespace string, build func() (*router.Subtree, error)) Module {
	return funcModule{ns: namespace, build: build}
}

type funcModule struct {
	ns    string
	build func() (*router.Subtree, error)
}

func (m funcModule) Namespace() string                 { return m.ns }
func (m funcModule) Subtree() (*router.Subtree, error) { return m.build() }

// Registry holds modules in registration order.
type Registry struct {
	mu      sync.Mutex
	modules []Module
	byNS    map[string]Module
	reg     prometheus.Registerer
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRegisterer sets where module collectors are registered. Default:
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.reg = reg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byNS:   make(map[string]Module),
		reg:    prometheus.DefaultRegisterer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds m. Namespaces must be unique.
func (r *Registry) Register(m Module) error {
	ns := m.Namespace()
	if ns == "" {
		return errors.New("mount: module without namespace")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byNS[ns]; exists {
		return fmt.Errorf("mount: namespace %q already registered", ns)
	}
	r.modules = append(r.modules, m)
	r.byNS[ns] = m
	return nil
}

// Namespaces lists the registered namespaces in registration order.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.modules))
	for i, m := range r.modules {
		out[i] = m.Namespace()
	}
	return out
}

// Apply builds every module and attaches its subtree to rt, in
// registration order. If any module fails, the subtrees attached so far
// are detached again and the error names the failing namespace.
func (r *Registry) Apply(rt *router.Router) error {
	r.mu.Lock()
	modules := append([]Module(nil), r.modules...)
	r.mu.Unlock()

	var attached []string
	rollback := func(err error) error {
		for _, ns := range attached {
			rt.Detach(ns)
		}
		return err
	}

	for _, m := range modules {
		ns := m.Namespace()
		sub, err := m.Subtree()
		if err != nil {
			return rollback(fmt.Errorf("mount %q: %w", ns, err))
		}
		if err := rt.Attach(ns, sub); err != nil {
			return rollback(fmt.Errorf("mount %q: %w", ns, err))
		}
		attached = append(attached, ns)

		if c, ok := m.(Collector); ok {
			for _, col := range c.Collectors() {
				if err := r.reg.Register(col); err != nil {
					// Already registered is not an error worth failing startup for.
					r.logger.Debug("collector already registered", "namespace", ns, "error", err)
				}
			}
		}
		r.logger.Info("module mounted", "namespace", ns)
	}
	return nil
}
