package router

import (
	"fmt"
	"strings"
)

// Route is a bound endpoint with its requirements. Routes inside an attached
// router are immutable.
type Route struct {
	// Path is the full path the route resolves from, without leading slash.
	Path       string
	Endpoint   Endpoint
	Auth       Expr
	Capability Expr
	Meta       map[string]any
}

// Option configures a route or subtree at registration time.
type Option func(*entryOptions) error

type entryOptions struct {
	auth Expr
	caps Expr
	meta map[string]any
}

// WithAuth requires the caller tags to satisfy expr. The expression is
// parsed here, once.
func WithAuth(expr string) Option {
	return func(o *entryOptions) error {
		e, err := ParseExpr(expr)
		if err != nil {
			return err
		}
		o.auth = e
		return nil
	}
}

// WithCapability requires the caller capabilities to satisfy expr.
func WithCapability(expr string) Option {
	return func(o *entryOptions) error {
		e, err := ParseExpr(expr)
		if err != nil {
			return err
		}
		o.caps = e
		return nil
	}
}

// WithMeta attaches an arbitrary metadata value.
func WithMeta(key string, value any) Option {
	return func(o *entryOptions) error {
		if o.meta == nil {
			o.meta = map[string]any{}
		}
		o.meta[key] = value
		return nil
	}
}

func applyOptions(opts []Option) (entryOptions, error) {
	var o entryOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, err
		}
	}
	return o, nil
}

// node is either a bound route or a nested subtree, never both.
type node struct {
	route *Route
	sub   *Subtree
}

// Subtree is an application-owned collection of routes attached to a
// Router under a namespace. A Subtree is not safe for concurrent
// modification; Router.Attach takes a private copy.
type Subtree struct {
	auth     Expr
	caps     Expr
	meta     map[string]any
	def      *Route
	children map[string]*node
}

// NewSubtree creates an empty subtree. Auth and capability options apply to
// every route below it, in addition to the routes' own requirements.
func NewSubtree(opts ...Option) (*Subtree, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Subtree{
		auth:     o.auth,
		caps:     o.caps,
		meta:     o.meta,
		children: map[string]*node{},
	}, nil
}

// Handle binds ep at path below the subtree. Multi-segment paths create
// bare intermediate subtrees as needed.
func (s *Subtree) Handle(path string, ep Endpoint, opts ...Option) error {
	if ep.Call == nil {
		return fmt.Errorf("route %q: endpoint has no function", path)
	}
	segs, err := splitPath(path)
	if err != nil {
		return fmt.Errorf("route %q: %w", path, err)
	}
	if len(segs) == 0 {
		return fmt.Errorf("route %q: empty path, use Default", path)
	}
	o, err := applyOptions(opts)
	if err != nil {
		return fmt.Errorf("route %q: %w", path, err)
	}

	parent, err := s.descend(segs[:len(segs)-1])
	if err != nil {
		return fmt.Errorf("route %q: %w", path, err)
	}
	last := segs[len(segs)-1]
	if _, exists := parent.children[last]; exists {
		return fmt.Errorf("route %q: segment %q already registered", path, last)
	}
	parent.children[last] = &node{route: &Route{
		Path:       strings.Join(segs, "/"),
		Endpoint:   ep,
		Auth:       o.auth,
		Capability: o.caps,
		Meta:       o.meta,
	}}
	return nil
}

// Default binds the entry used when a path addresses the subtree itself.
func (s *Subtree) Default(ep Endpoint, opts ...Option) error {
	if ep.Call == nil {
		return fmt.Errorf("default route: endpoint has no function")
	}
	if s.def != nil {
		return fmt.Errorf("default route already registered")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return fmt.Errorf("default route: %w", err)
	}
	s.def = &Route{Endpoint: ep, Auth: o.auth, Capability: o.caps, Meta: o.meta}
	return nil
}

// Mount nests child under segment.
func (s *Subtree) Mount(segment string, child *Subtree) error {
	segs, err := splitPath(segment)
	if err != nil || len(segs) != 1 {
		return fmt.Errorf("mount %q: namespace must be a single segment", segment)
	}
	if _, exists := s.children[segs[0]]; exists {
		return fmt.Errorf("mount %q: segment already registered", segment)
	}
	if child.reaches(s, map[*Subtree]bool{}) {
		return fmt.Errorf("mount %q: subtree contains the mount point", segment)
	}
	s.children[segs[0]] = &node{sub: child}
	return nil
}

// reaches reports whether target is s or lies below it.
func (s *Subtree) reaches(target *Subtree, seen map[*Subtree]bool) bool {
	if s == target {
		return true
	}
	if seen[s] {
		return false
	}
	seen[s] = true
	for _, n := range s.children {
		if n.sub != nil && n.sub.reaches(target, seen) {
			return true
		}
	}
	return false
}

func (s *Subtree) descend(segs []string) (*Subtree, error) {
	cur := s
	for _, seg := range segs {
		n, ok := cur.children[seg]
		if !ok {
			next := &Subtree{children: map[string]*node{}}
			cur.children[seg] = &node{sub: next}
			cur = next
			continue
		}
		if n.route != nil {
			return nil, fmt.Errorf("segment %q is a route, not a subtree", seg)
		}
		cur = n.sub
	}
	return cur, nil
}

// freeze returns a deep copy of s whose route paths are prefixed with
// prefix. Routes are copied so later changes to s do not leak into an
// attached router.
func (s *Subtree) freeze(prefix string) *Subtree {
	c := &Subtree{
		auth:     s.auth,
		caps:     s.caps,
		meta:     copyMeta(s.meta),
		children: make(map[string]*node, len(s.children)),
	}
	if s.def != nil {
		c.def = s.def.withPath(prefix)
	}
	for seg, n := range s.children {
		full := joinPath(prefix, seg)
		if n.route != nil {
			c.children[seg] = &node{route: n.route.withPath(full)}
			continue
		}
		c.children[seg] = &node{sub: n.sub.freeze(full)}
	}
	return c
}

func (r *Route) withPath(path string) *Route {
	c := *r
	c.Path = path
	c.Meta = copyMeta(r.Meta)
	return &c
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "/" + seg
}

// splitPath normalizes a path into segments: surrounding and repeated
// slashes are dropped. Dot segments are rejected.
func splitPath(path string) ([]string, error) {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("dot segment in path")
		}
		segs = append(segs, seg)
	}
	return segs, nil
}
