package transport

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory instantiates an interceptor from its effective fields.
type Factory func(fields Fields, logger *slog.Logger) (Middleware, error)

// Definition is the class-level description of an interceptor.
type Definition struct {
	Name           string
	Rank           int
	DefaultEnabled bool
	Defaults       Fields
	New            Factory
}

// Descriptor is the effective configuration of one interceptor in a built
// chain.
type Descriptor struct {
	Name    string `json:"name"`
	Rank    int    `json:"rank"`
	Enabled bool   `json:"enabled"`
	Config  Fields `json:"config,omitempty"`
}

// Catalog holds the interceptor definitions known to the process.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]Definition)}
}

// Register adds a definition. Names must be unique.
func (c *Catalog) Register(def Definition) error {
	if def.Name == "" || def.New == nil {
		return fmt.Errorf("middleware definition needs a name and a factory")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("middleware %q already registered", def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	return def, ok
}

// Descriptors resolves settings against the catalog and returns every
// interceptor, enabled or not, ordered by ascending rank and then name.
// Explicit "enabled" and "rank" fields override the class defaults.
// Settings for unknown names are an error.
func (c *Catalog) Descriptors(settings Settings) ([]Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name := range settings {
		if _, ok := c.defs[name]; !ok {
			return nil, fmt.Errorf("unknown middleware %q", name)
		}
	}

	out := make([]Descriptor, 0, len(c.defs))
	for name, def := range c.defs {
		fields := def.Defaults.clone()
		override := settings[name]
		for k, v := range override {
			fields[k] = v
		}
		d := Descriptor{
			Name:    name,
			Rank:    fields.Int(FieldRank, def.Rank),
			Enabled: fields.Bool(FieldEnabled, def.DefaultEnabled),
		}
		delete(fields, FieldEnabled)
		delete(fields, FieldRank)
		if len(fields) > 0 {
			d.Config = fields
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Build instantiates the enabled interceptors outer to inner and returns
// them composed around terminal, together with the enabled descriptors.
func (c *Catalog) Build(settings Settings, terminal Handler, logger *slog.Logger) (Handler, []Descriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	all, err := c.Descriptors(settings)
	if err != nil {
		return nil, nil, err
	}

	var enabled []Descriptor
	var mws []Middleware
	for _, d := range all {
		if !d.Enabled {
			continue
		}
		def, _ := c.Lookup(d.Name)
		mw, err := def.New(d.Config, logger.With("middleware", d.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("middleware %q: %w", d.Name, err)
		}
		enabled = append(enabled, d)
		mws = append(mws, mw)
	}
	return Chain(mws...)(terminal), enabled, nil
}
