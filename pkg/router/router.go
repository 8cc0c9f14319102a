package router

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
)

// Router resolves normalized paths to routes. Resolution is lock-free and a
// pure function of path, caller tags and caller capabilities. Attach and
// Detach serialize on a writer mutex and publish a new root atomically, so
// in-flight resolutions keep seeing the tree they started with.
type Router struct {
	mu     sync.Mutex
	root   atomic.Pointer[Subtree]
	logger *slog.Logger
}

// New creates an empty router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{logger: logger}
	r.root.Store(&Subtree{children: map[string]*node{}})
	return r
}

// Attach mounts a private copy of s under namespace. Changes made to s
// afterwards are not visible to the router.
func (r *Router) Attach(namespace string, s *Subtree) error {
	segs, err := splitPath(namespace)
	if err != nil || len(segs) != 1 {
		return fmt.Errorf("attach %q: namespace must be a single segment", namespace)
	}
	ns := segs[0]

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.root.Load()
	if _, exists := old.children[ns]; exists {
		return fmt.Errorf("attach %q: namespace already attached", ns)
	}
	next := &Subtree{children: make(map[string]*node, len(old.children)+1)}
	for k, v := range old.children {
		next.children[k] = v
	}
	next.children[ns] = &node{sub: s.freeze(ns)}
	r.root.Store(next)

	r.logger.Info("subtree attached", "namespace", ns)
	return nil
}

// Detach removes the subtree mounted under namespace. It reports whether
// one was attached.
func (r *Router) Detach(namespace string) bool {
	segs, err := splitPath(namespace)
	if err != nil || len(segs) != 1 {
		return false
	}
	ns := segs[0]

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.root.Load()
	if _, exists := old.children[ns]; !exists {
		return false
	}
	next := &Subtree{children: make(map[string]*node, len(old.children))}
	for k, v := range old.children {
		if k != ns {
			next.children[k] = v
		}
	}
	r.root.Store(next)
	r.logger.Info("subtree detached", "namespace", ns)
	return true
}

// Namespaces lists the attached namespaces in sorted order.
func (r *Router) Namespaces() []string {
	root := r.root.Load()
	out := make([]string, 0, len(root.children))
	for k := range root.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve walks path segment by segment. A missing segment, segments left
// over below a route, or a subtree without default entry yield a not found
// error. A found route whose auth expressions, including those of every
// subtree on the way, reject tags yields an authorization error; one whose
// capability expressions reject caps yields an unavailable error. Auth is
// checked first.
func (r *Router) Resolve(path string, tags, caps api.TagSet) (*Route, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, api.NewNotFoundError(fmt.Sprintf("invalid path %q", path))
	}

	cur := r.root.Load()
	var auths, capExprs []Expr
	var route *Route
	for i, seg := range segs {
		n, ok := cur.children[seg]
		if !ok {
			return nil, notFound(path)
		}
		if n.route != nil {
			if i != len(segs)-1 {
				return nil, notFound(path)
			}
			route = n.route
			break
		}
		cur = n.sub
		auths = append(auths, cur.auth)
		capExprs = append(capExprs, cur.caps)
	}
	if route == nil {
		if cur.def == nil {
			return nil, notFound(path)
		}
		route = cur.def
	}
	auths = append(auths, route.Auth)
	capExprs = append(capExprs, route.Capability)

	for _, e := range auths {
		if !evalExpr(e, tags) {
			debug.Log(debug.Router, "authorization failed", "path", route.Path, "requires", e.String(), "tags", tags.String())
			return nil, api.NewAuthorizationError(fmt.Sprintf("caller is not authorized for %q", route.Path))
		}
	}
	for _, e := range capExprs {
		if !evalExpr(e, caps) {
			debug.Log(debug.Router, "capability missing", "path", route.Path, "requires", e.String(), "capabilities", caps.String())
			return nil, api.NewUnavailableError(api.CodeCapability,
				fmt.Sprintf("route %q is not available to this caller", route.Path))
		}
	}
	debug.Log(debug.Router, "resolved", "path", path, "route", route.Path)
	return route, nil
}

func notFound(path string) error {
	return api.NewNotFoundError(fmt.Sprintf("no route for %q", path))
}

// RouteInfo describes a registered route for listings.
type RouteInfo struct {
	Path       string   `json:"path"`
	Auth       string   `json:"auth,omitempty"`
	Capability string   `json:"capability,omitempty"`
	Params     []string `json:"params,omitempty"`
}

// Walk calls fn for every reachable route in lexical path order. The
// requirements reported are the combined expressions along the path.
func (r *Router) Walk(fn func(RouteInfo) error) error {
	return walk(r.root.Load(), nil, nil, fn)
}

func walk(s *Subtree, auths, caps []Expr, fn func(RouteInfo) error) error {
	if s.def != nil {
		if err := fn(info(s.def, auths, caps)); err != nil {
			return err
		}
	}
	segs := make([]string, 0, len(s.children))
	for seg := range s.children {
		segs = append(segs, seg)
	}
	sort.Strings(segs)
	for _, seg := range segs {
		n := s.children[seg]
		if n.route != nil {
			if err := fn(info(n.route, auths, caps)); err != nil {
				return err
			}
			continue
		}
		if err := walk(n.sub, append(auths[:len(auths):len(auths)], n.sub.auth),
			append(caps[:len(caps):len(caps)], n.sub.caps), fn); err != nil {
			return err
		}
	}
	return nil
}

func info(rt *Route, auths, caps []Expr) RouteInfo {
	ri := RouteInfo{
		Path:       "/" + rt.Path,
		Auth:       combine(append(auths[:len(auths):len(auths)], rt.Auth)),
		Capability: combine(append(caps[:len(caps):len(caps)], rt.Capability)),
	}
	for _, p := range rt.Endpoint.Params {
		ri.Params = append(ri.Params, p.Name+":"+p.Type.String())
	}
	return ri
}

func combine(exprs []Expr) string {
	var out Expr
	for _, e := range exprs {
		switch {
		case e == nil:
		case out == nil:
			out = e
		default:
			out = And{Left: out, Right: e}
		}
	}
	if out == nil {
		return ""
	}
	return out.String()
}
