package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"cloud.google.com/go/civil"
	"gopkg.in/inf.v0"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/envelope"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/taskrunner"
	"github.com/rhuss/duplex/pkg/wire"
)

func setup(t *testing.T, path string, ep router.Endpoint, opts ...Option) *Dispatcher {
	t.Helper()
	s, err := router.NewSubtree()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Handle(path, ep); err != nil {
		t.Fatal(err)
	}
	r := router.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := r.Attach("t", s); err != nil {
		t.Fatal(err)
	}
	return New(r, opts...)
}

func TestEnvelopeIntegerReachesHandlerAsInt(t *testing.T) {
	var got any
	ep := router.NewEndpoint(func(_ context.Context, args router.Args) (any, error) {
		got = args.Get("n")
		return nil, nil
	}, router.Required("n", router.TypeInt))
	d := setup(t, "x", ep)

	msg, err := envelope.Parse([]byte(`DPX1{"id":"abc","method":"POST","path":"/t/x","data":{"n":"5::L"}}`), wire.JSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := d.Handle(context.Background(), msg.Request(wire.JSON, "")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got != int64(5) {
		t.Errorf("handler received %#v (%T), want int64(5)", got, got)
	}
}

func TestBindModes(t *testing.T) {
	params := []router.Param{
		router.Required("id", router.TypeInt),
		router.Optional("page", router.TypeInt, int64(1)),
	}
	tests := []struct {
		name      string
		values    map[string]any
		strict    bool
		wantParam string
		wantPage  int64
	}{
		{"all given", map[string]any{"id": int64(1), "page": "3"}, false, "", 3},
		{"default used", map[string]any{"id": "7"}, false, "", 1},
		{"extra ignored when lenient", map[string]any{"id": int64(1), "debug": true}, false, "", 1},
		{"extra rejected when strict", map[string]any{"id": int64(1), "zz": 1, "debug": true}, true, "debug", 0},
		{"missing required", map[string]any{"page": int64(2)}, false, "id", 0},
		{"null required", map[string]any{"id": nil}, false, "id", 0},
		{"bad type", map[string]any{"id": "seven"}, false, "id", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Bind(params, tt.values, tt.strict)
			if tt.wantParam != "" {
				var apiErr *api.Error
				if !errors.As(err, &apiErr) || apiErr.Kind != api.ErrorKindValidation {
					t.Fatalf("err = %v, want validation error", err)
				}
				if apiErr.Param != tt.wantParam {
					t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
				}
				return
			}
			if err != nil {
				t.Fatalf("Bind: %v", err)
			}
			if args.Int("page") != tt.wantPage {
				t.Errorf("page = %d, want %d", args.Int("page"), tt.wantPage)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	dec, _ := new(inf.Dec).SetString("1.50")
	tests := []struct {
		name    string
		in      any
		typ     router.ParamType
		want    string
		wantErr bool
	}{
		{"int from text", "42", router.TypeInt, "42", false},
		{"int from integral float", 3.0, router.TypeInt, "3", false},
		{"int from fraction", 3.5, router.TypeInt, "", true},
		{"float from int", int64(2), router.TypeFloat, "2", false},
		{"decimal from text", "19.99", router.TypeDecimal, "19.99", false},
		{"decimal passthrough", dec, router.TypeDecimal, "1.50", false},
		{"decimal from int", int64(7), router.TypeDecimal, "7", false},
		{"bool from text", "true", router.TypeBool, "true", false},
		{"bool from garbage", "yes please", router.TypeBool, "", true},
		{"date from text", "2025-01-15", router.TypeDate, "2025-01-15", false},
		{"date passthrough", civil.Date{Year: 2025, Month: 1, Day: 15}, router.TypeDate, "2025-01-15", false},
		{"bad date", "2025-02-30", router.TypeDate, "", true},
		{"string from int", int64(9), router.TypeString, "9", false},
		{"list from text", "a", router.TypeList, "", true},
		{"map from list", []any{}, router.TypeMap, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Coerce(%#v, %s) = %#v, want error", tt.in, tt.typ, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce: %v", err)
			}
			if s := fmt.Sprint(got); s != tt.want {
				t.Errorf("Coerce(%#v, %s) = %s, want %s", tt.in, tt.typ, s, tt.want)
			}
		})
	}
}

func TestResultCoercion(t *testing.T) {
	price, _ := new(inf.Dec).SetString("99.50")
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"text", "hello", "hello"},
		{"decimal scalar as text", price, "99.50"},
		{"integer as text", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Result(tt.in, wire.JSON)
			if err != nil {
				t.Fatal(err)
			}
			if resp.Status != http.StatusOK || resp.Data != tt.want {
				t.Errorf("Result = %d %#v, want 200 %#v", resp.Status, resp.Data, tt.want)
			}
		})
	}

	resp, err := Result(map[string]any{"price": price, "items": []int{1, 2}}, wire.JSON)
	if err != nil {
		t.Fatal(err)
	}
	m := resp.Data.(map[string]any)
	if m["price"] != "99.50::N" {
		t.Errorf("price = %#v, want tagged decimal", m["price"])
	}
	if items := m["items"].([]any); items[1] != int64(2) {
		t.Errorf("items = %#v", items)
	}

	type item struct{ SKU string }
	resp, err = Result([]item{{SKU: "a"}}, wire.JSON)
	if err != nil {
		t.Fatalf("sequence of structs: %v", err)
	}
	if items := resp.Data.([]any); len(items) != 1 || items[0] != "{a}" {
		t.Errorf("items = %#v, want canonical text", resp.Data)
	}

	resp, err = Result(map[string]any{"first": &item{SKU: "b"}, "price": price}, wire.JSON)
	if err != nil {
		t.Fatal(err)
	}
	if m := resp.Data.(map[string]any); m["first"] != "{b}" || m["price"] != "99.50::N" {
		t.Errorf("mixed map = %#v", m)
	}

	raw := []byte{0, 1, 2}
	resp, _ = Result(raw, wire.CBOR)
	if b, ok := resp.Data.([]byte); !ok || len(b) != 3 {
		t.Errorf("bytes not passed through: %#v", resp.Data)
	}

	custom := api.NewResponse(http.StatusCreated, map[string]any{"when": civil.Date{Year: 2025, Month: 1, Day: 1}})
	resp, _ = Result(custom, wire.JSON)
	if resp.Status != http.StatusCreated || resp.Data.(map[string]any)["when"] != "2025-01-01::D" {
		t.Errorf("response result = %+v", resp)
	}
}

func TestHandlerErrorsAreWrapped(t *testing.T) {
	cause := errors.New("disk full")
	d := setup(t, "boom", router.NewEndpoint(func(context.Context, router.Args) (any, error) {
		return nil, cause
	}))
	_, err := d.Handle(context.Background(), api.NewRequest("1", "GET", "/t/boom"))
	if !api.IsKind(err, api.ErrorKindHandler) {
		t.Fatalf("err = %v, want handler error", err)
	}
	if !errors.Is(err, cause) {
		t.Error("handler error lost its cause")
	}

	d = setup(t, "nf", router.NewEndpoint(func(context.Context, router.Args) (any, error) {
		return nil, api.NewNotFoundError("no such product")
	}))
	_, err = d.Handle(context.Background(), api.NewRequest("1", "GET", "/t/nf"))
	if api.StatusFromError(err) != http.StatusNotFound {
		t.Errorf("taxonomy error from handler mapped to %d", api.StatusFromError(err))
	}
}

func TestStrictDispatcher(t *testing.T) {
	d := setup(t, "x", router.NewEndpoint(func(context.Context, router.Args) (any, error) {
		return "ok", nil
	}), WithStrictParams(true))
	req := api.NewRequest("1", "GET", "/t/x")
	req.Query["unexpected"] = "1"
	if _, err := d.Handle(context.Background(), req); !api.IsKind(err, api.ErrorKindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestStream(t *testing.T) {
	if err := Stream(context.Background(), "x"); !errors.Is(err, ErrStreamingUnsupported) {
		t.Errorf("err = %v, want ErrStreamingUnsupported", err)
	}

	var partials []*api.Response
	d := setup(t, "feed", router.NewEndpoint(func(ctx context.Context, _ router.Args) (any, error) {
		for i := 0; i < 2; i++ {
			if err := Stream(ctx, map[string]any{"i": i}); err != nil {
				return nil, err
			}
		}
		return "done", nil
	}))
	ctx := api.ContextWithStreamSink(context.Background(), func(resp *api.Response) error {
		partials = append(partials, resp)
		return nil
	})
	resp, err := d.Handle(ctx, api.NewRequest("z", "GET", "/t/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if len(partials) != 2 || !partials[0].Stream || partials[1].Data.(map[string]any)["i"] != int64(1) {
		t.Errorf("partials = %+v", partials)
	}
	if resp.Stream || resp.Data != "done" {
		t.Errorf("terminal = %+v", resp)
	}
}

func TestTaskRunnerInContext(t *testing.T) {
	runner := taskrunner.New(1, nil)
	d := setup(t, "cpu", router.NewEndpoint(func(ctx context.Context, _ router.Args) (any, error) {
		return taskrunner.Run(ctx, taskrunner.FromContext(ctx), func(context.Context) (string, error) {
			return "computed", nil
		})
	}), WithTaskRunner(runner))
	resp, err := d.Handle(context.Background(), api.NewRequest("1", "GET", "/t/cpu"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data != "computed" {
		t.Errorf("Data = %#v", resp.Data)
	}
}
