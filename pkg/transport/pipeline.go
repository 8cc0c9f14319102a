package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rhuss/duplex/pkg/api"
)

// SettingsProvider supplies interceptor settings at chain build time: the
// global settings and per-namespace overrides.
type SettingsProvider interface {
	MiddlewareSettings() Settings
	ScopeSettings() map[string]Settings
}

// StaticSettings is a SettingsProvider over fixed maps.
type StaticSettings struct {
	Global Settings
	Scopes map[string]Settings
}

func (s StaticSettings) MiddlewareSettings() Settings       { return s.Global }
func (s StaticSettings) ScopeSettings() map[string]Settings { return s.Scopes }

// snapshot is one immutable build of the pipeline.
type snapshot struct {
	global      Settings
	scopes      map[string]Settings
	handler     Handler
	descriptors []Descriptor
	scoped      map[string]scopedChain
}

type scopedChain struct {
	handler     Handler
	descriptors []Descriptor
}

// Pipeline routes each exchange through the global chain, or through the
// chain of its namespace (first path segment) when that namespace has
// overrides. Chains are built once per configuration. Reconfiguration
// builds a complete new snapshot and publishes it with an atomic swap;
// Handle never takes a lock and in-flight exchanges finish on the snapshot
// they started with.
type Pipeline struct {
	catalog  *Catalog
	terminal Handler
	logger   *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewPipeline builds the initial chains from provider around terminal.
func NewPipeline(catalog *Catalog, terminal Handler, provider SettingsProvider, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{catalog: catalog, terminal: terminal, logger: logger}
	var global Settings
	var scopes map[string]Settings
	if provider != nil {
		global, scopes = provider.MiddlewareSettings(), provider.ScopeSettings()
	}
	if err := p.Reconfigure(global, scopes); err != nil {
		return nil, err
	}
	return p, nil
}

// Handle implements Handler.
func (p *Pipeline) Handle(ctx context.Context, req *api.Request) (*api.Response, error) {
	s := p.snap.Load()
	if sc, ok := s.scoped[Namespace(req.Path)]; ok {
		return sc.handler.Handle(ctx, req)
	}
	return s.handler.Handle(ctx, req)
}

// Reconfigure rebuilds every chain from the given settings and swaps them
// in. On error the current snapshot stays in place.
func (p *Pipeline) Reconfigure(global Settings, scopes map[string]Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(global.Clone(), cloneScopes(scopes))
}

// Toggle enables or disables one interceptor globally. Scope overrides
// that set "enabled" for the same interceptor still win inside their
// namespace.
func (p *Pipeline) Toggle(name string, enabled bool) error {
	if _, ok := p.catalog.Lookup(name); !ok {
		return fmt.Errorf("unknown middleware %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.snap.Load()
	global := cur.global.Clone()
	f := global[name]
	if f == nil {
		f = Fields{}
	}
	f[FieldEnabled] = enabled
	global[name] = f
	if err := p.rebuildLocked(global, cloneScopes(cur.scopes)); err != nil {
		return err
	}
	p.logger.Info("middleware toggled", "middleware", name, "enabled", enabled)
	return nil
}

// Descriptors returns the enabled interceptors of the chain serving
// namespace, outermost first. An empty namespace selects the global chain.
func (p *Pipeline) Descriptors(namespace string) []Descriptor {
	s := p.snap.Load()
	if sc, ok := s.scoped[namespace]; ok {
		return sc.descriptors
	}
	return s.descriptors
}

// Scopes lists the namespaces with their own chain.
func (p *Pipeline) Scopes() []string {
	s := p.snap.Load()
	out := make([]string, 0, len(s.scoped))
	for ns := range s.scoped {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) rebuildLocked(global Settings, scopes map[string]Settings) error {
	handler, descs, err := p.catalog.Build(global, p.terminal, p.logger)
	if err != nil {
		return err
	}
	next := &snapshot{
		global:      global,
		scopes:      scopes,
		handler:     handler,
		descriptors: descs,
		scoped:      make(map[string]scopedChain, len(scopes)),
	}
	for ns, override := range scopes {
		h, d, err := p.catalog.Build(Merge(global, override), p.terminal, p.logger.With("scope", ns))
		if err != nil {
			return fmt.Errorf("scope %q: %w", ns, err)
		}
		next.scoped[ns] = scopedChain{handler: h, descriptors: d}
	}
	p.snap.Store(next)
	return nil
}

func cloneScopes(scopes map[string]Settings) map[string]Settings {
	out := make(map[string]Settings, len(scopes))
	for ns, s := range scopes {
		out[ns] = s.Clone()
	}
	return out
}

// Namespace returns the first segment of path, the unit per-scope
// interceptor settings apply to.
func Namespace(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
