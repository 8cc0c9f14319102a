// Package shop is a small demo store used by the demo server and the
// integration tests. It exercises every parameter kind of the router,
// tagged admin routes, a capability gated stream and an order book kept in
// a storage.Store.
package shop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/inf.v0"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
	"github.com/rhuss/duplex/pkg/dispatch"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/storage"
	"github.com/rhuss/duplex/pkg/storage/memory"
	"github.com/rhuss/duplex/pkg/taskrunner"
)

// Namespace is the first path segment the shop is attached under.
const Namespace = "shop"

// Product is one catalog entry.
type Product struct {
	SKU   string
	Name  string
	Price *inf.Dec
	Stock int64
}

func (p Product) tree() map[string]any {
	return map[string]any{
		"sku":   p.SKU,
		"name":  p.Name,
		"price": p.Price,
		"stock": p.Stock,
	}
}

// Shop holds the catalog and the order book.
type Shop struct {
	mu       sync.RWMutex
	products map[string]*Product
	sales    map[civil.Date]*inf.Dec

	store  storage.Store
	orders *prometheus.CounterVec
	now    func() time.Time
}

// Option configures a Shop.
type Option func(*Shop)

// WithClock overrides the clock used to date orders.
func WithClock(now func() time.Time) Option {
	return func(s *Shop) { s.now = now }
}

// WithStore sets the order book. The default is an unbounded in-memory
// store.
func WithStore(store storage.Store) Option {
	return func(s *Shop) { s.store = store }
}

// New creates a shop stocked with products.
func New(products []Product, opts ...Option) *Shop {
	s := &Shop{
		products: make(map[string]*Product, len(products)),
		sales:    make(map[civil.Date]*inf.Dec),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duplex_shop_orders_total",
			Help: "Orders placed in the demo shop, by outcome.",
		}, []string{"outcome"}),
		now: time.Now,
	}
	for _, p := range products {
		p.Price = new(inf.Dec).Set(p.Price)
		s.products[p.SKU] = &p
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = memory.New(0)
	}
	return s
}

// Demo returns a shop with a fixed sample catalog.
func Demo(opts ...Option) *Shop {
	return New([]Product{
		{SKU: "tea-01", Name: "Sencha", Price: inf.NewDec(1250, 2), Stock: 40},
		{SKU: "tea-02", Name: "Assam", Price: inf.NewDec(995, 2), Stock: 25},
		{SKU: "cup-01", Name: "Stoneware cup", Price: inf.NewDec(1800, 2), Stock: 8},
	}, opts...)
}

// Namespace implements mount.Module.
func (s *Shop) Namespace() string { return Namespace }

// Collectors implements mount.Collector.
func (s *Shop) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.orders}
}

// Subtree implements mount.Module.
func (s *Shop) Subtree() (*router.Subtree, error) {
	root, err := router.NewSubtree()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		path string
		ep   router.Endpoint
		opts []router.Option
	}{
		{"products/list", router.NewEndpoint(s.list,
			router.Optional("limit", router.TypeInt, int64(0)),
		), nil},
		{"products/get", router.NewEndpoint(s.get,
			router.Required("sku", router.TypeString),
		), nil},
		{"products/watch", router.NewEndpoint(s.watch,
			router.Required("sku", router.TypeString),
			router.Optional("updates", router.TypeInt, int64(3)),
		), []router.Option{router.WithCapability("stream")}},
		{"products/restock", router.NewEndpoint(s.restock,
			router.Required("sku", router.TypeString),
			router.Required("quantity", router.TypeInt),
		), []router.Option{router.WithAuth("admin")}},
		{"products/price", router.NewEndpoint(s.setPrice,
			router.Required("sku", router.TypeString),
			router.Required("price", router.TypeDecimal),
		), []router.Option{router.WithAuth("admin")}},
		{"orders/quote", router.NewEndpoint(s.quote,
			router.Required("sku", router.TypeString),
			router.Required("quantity", router.TypeInt),
		), nil},
		{"orders/place", router.NewEndpoint(s.place,
			router.Required("sku", router.TypeString),
			router.Required("quantity", router.TypeInt),
		), []router.Option{router.WithAuth("user | admin")}},
		{"orders/get", router.NewEndpoint(s.getOrder,
			router.Required("id", router.TypeString),
		), []router.Option{router.WithAuth("user | admin")}},
		{"orders/list", router.NewEndpoint(s.listOrders,
			router.Optional("after", router.TypeString, ""),
			router.Optional("limit", router.TypeInt, int64(20)),
			router.Optional("order", router.TypeString, "desc"),
		), []router.Option{router.WithAuth("user | admin")}},
		{"orders/cancel", router.NewEndpoint(s.cancelOrder,
			router.Required("id", router.TypeString),
		), []router.Option{router.WithAuth("user | admin")}},
		{"reports/sales", router.NewEndpoint(s.salesReport,
			router.Required("day", router.TypeDate),
		), []router.Option{router.WithAuth("admin | (staff & reports)")}},
	}
	for _, r := range routes {
		if err := root.Handle(r.path, r.ep, r.opts...); err != nil {
			return nil, err
		}
	}

	if err := root.Default(router.NewEndpoint(func(context.Context, router.Args) (any, error) {
		return map[string]any{"name": "duplex demo shop", "products": int64(s.count())}, nil
	})); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Shop) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

func (s *Shop) lookup(sku string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok {
		return Product{}, api.NewNotFoundError(fmt.Sprintf("no product %q", sku))
	}
	out := *p
	out.Price = new(inf.Dec).Set(p.Price)
	return out, nil
}

func (s *Shop) list(_ context.Context, args router.Args) (any, error) {
	s.mu.RLock()
	skus := make([]string, 0, len(s.products))
	for sku := range s.products {
		skus = append(skus, sku)
	}
	s.mu.RUnlock()
	slices.Sort(skus)

	if limit := args.Int("limit"); limit > 0 && int(limit) < len(skus) {
		skus = skus[:limit]
	}
	out := make([]any, 0, len(skus))
	for _, sku := range skus {
		p, err := s.lookup(sku)
		if err != nil {
			continue
		}
		out = append(out, p.tree())
	}
	return out, nil
}

func (s *Shop) get(_ context.Context, args router.Args) (any, error) {
	p, err := s.lookup(args.String("sku"))
	if err != nil {
		return nil, err
	}
	return p.tree(), nil
}

// watch streams the stock level of a product, one partial response per
// update, and ends with the final level.
func (s *Shop) watch(ctx context.Context, args router.Args) (any, error) {
	sku := args.String("sku")
	for i := int64(0); i < args.Int("updates"); i++ {
		p, err := s.lookup(sku)
		if err != nil {
			return nil, err
		}
		if err := dispatch.Stream(ctx, map[string]any{"sku": sku, "stock": p.Stock, "seq": i}); err != nil {
			return nil, err
		}
	}
	p, err := s.lookup(sku)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sku": sku, "stock": p.Stock, "done": true}, nil
}

func (s *Shop) restock(_ context.Context, args router.Args) (any, error) {
	qty := args.Int("quantity")
	if qty <= 0 {
		return nil, api.NewValidationError("quantity", "must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[args.String("sku")]
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("no product %q", args.String("sku")))
	}
	p.Stock += qty
	return map[string]any{"sku": p.SKU, "stock": p.Stock}, nil
}

func (s *Shop) setPrice(_ context.Context, args router.Args) (any, error) {
	price := args.Decimal("price")
	if price == nil || price.Sign() <= 0 {
		return nil, api.NewValidationError("price", "must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[args.String("sku")]
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("no product %q", args.String("sku")))
	}
	p.Price = new(inf.Dec).Set(price)
	return p.tree(), nil
}

// quote prices an order on the task runner when one is available.
func (s *Shop) quote(ctx context.Context, args router.Args) (any, error) {
	price := func(context.Context) (map[string]any, error) {
		return s.price(args.String("sku"), args.Int("quantity"))
	}
	if r := taskrunner.FromContext(ctx); r != nil {
		return taskrunner.Run(ctx, r, price)
	}
	return price(ctx)
}

func (s *Shop) price(sku string, qty int64) (map[string]any, error) {
	if qty <= 0 {
		return nil, api.NewValidationError("quantity", "must be positive")
	}
	p, err := s.lookup(sku)
	if err != nil {
		return nil, err
	}
	total := new(inf.Dec).Mul(p.Price, inf.NewDec(qty, 0))
	return map[string]any{"sku": sku, "quantity": qty, "total": total}, nil
}

func (s *Shop) place(ctx context.Context, args router.Args) (any, error) {
	sku, qty := args.String("sku"), args.Int("quantity")
	if qty <= 0 {
		s.orders.WithLabelValues("rejected").Inc()
		return nil, api.NewValidationError("quantity", "must be positive")
	}

	s.mu.Lock()
	p, ok := s.products[sku]
	if !ok {
		s.mu.Unlock()
		s.orders.WithLabelValues("rejected").Inc()
		return nil, api.NewNotFoundError(fmt.Sprintf("no product %q", sku))
	}
	if p.Stock < qty {
		stock := p.Stock
		s.mu.Unlock()
		s.orders.WithLabelValues("rejected").Inc()
		return nil, api.NewValidationError("quantity", fmt.Sprintf("only %d in stock", stock))
	}
	p.Stock -= qty
	remaining := p.Stock
	total := new(inf.Dec).Mul(p.Price, inf.NewDec(qty, 0))
	s.mu.Unlock()

	order := &storage.Order{
		ID:       storage.NewOrderID(),
		Owner:    owner(ctx),
		SKU:      sku,
		Quantity: qty,
		Total:    total,
		PlacedAt: s.now(),
	}
	if err := s.store.SaveOrder(ctx, order); err != nil {
		s.adjust(sku, qty, nil, time.Time{})
		s.orders.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("saving order: %w", err)
	}
	s.adjust(sku, 0, total, order.PlacedAt)
	s.orders.WithLabelValues("placed").Inc()

	out := order.Tree()
	out["remaining"] = remaining
	return out, nil
}

// adjust returns stock to a product and adds delta to the sales of the
// day at.
func (s *Shop) adjust(sku string, stock int64, delta *inf.Dec, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[sku]; ok {
		p.Stock += stock
	}
	if delta == nil {
		return
	}
	day := civil.DateOf(at)
	if sum, ok := s.sales[day]; ok {
		sum.Add(sum, delta)
	} else {
		s.sales[day] = new(inf.Dec).Set(delta)
	}
}

// owner is the order owner for the caller: the authenticated subject, or
// "anonymous" when the exchange carries no identity.
func owner(ctx context.Context) string {
	return auth.Subject(ctx, "anonymous")
}

// scoped limits order book access to the caller's own orders unless the
// caller holds the admin tag.
func scoped(ctx context.Context) context.Context {
	if req := api.RequestFromContext(ctx); req != nil && req.Tags.Has("admin") {
		return ctx
	}
	return storage.SetOwner(ctx, owner(ctx))
}

func (s *Shop) getOrder(ctx context.Context, args router.Args) (any, error) {
	o, err := s.store.GetOrder(scoped(ctx), args.String("id"))
	if err != nil {
		return nil, orderError(args.String("id"), err)
	}
	return o.Tree(), nil
}

func (s *Shop) listOrders(ctx context.Context, args router.Args) (any, error) {
	order := args.String("order")
	if order != "asc" && order != "desc" {
		return nil, api.NewValidationError("order", "must be asc or desc")
	}
	limit := args.Int("limit")
	if limit < 1 || limit > 100 {
		return nil, api.NewValidationError("limit", "must be between 1 and 100")
	}
	list, err := s.store.ListOrders(scoped(ctx), storage.ListOptions{
		After: args.String("after"),
		Limit: int(limit),
		Order: order,
	})
	if err != nil {
		return nil, err
	}
	return list.Tree(), nil
}

// cancelOrder cancels an order, returns its quantity to stock and removes
// it from the sales of the day it was placed.
func (s *Shop) cancelOrder(ctx context.Context, args router.Args) (any, error) {
	id := args.String("id")
	o, err := s.store.CancelOrder(scoped(ctx), id, s.now())
	if err != nil {
		return nil, orderError(id, err)
	}
	s.adjust(o.SKU, o.Quantity, new(inf.Dec).Neg(o.Total), o.PlacedAt)
	s.orders.WithLabelValues("cancelled").Inc()
	return o.Tree(), nil
}

func orderError(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(fmt.Sprintf("no order %q", id))
	case errors.Is(err, storage.ErrCancelled):
		return api.NewValidationError("id", fmt.Sprintf("order %q is already cancelled", id))
	}
	return err
}

func (s *Shop) salesReport(_ context.Context, args router.Args) (any, error) {
	day := args.Date("day")
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := inf.NewDec(0, 2)
	if sum, ok := s.sales[day]; ok {
		total = new(inf.Dec).Set(sum)
	}
	return map[string]any{"day": day, "total": total}, nil
}
