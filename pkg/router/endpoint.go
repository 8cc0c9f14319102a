package router

import (
	"context"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/inf.v0"
)

// ParamType is the declared type of an endpoint parameter. The dispatcher
// coerces bound values to it before the endpoint runs.
type ParamType int

const (
	TypeAny ParamType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeDecimal
	TypeDate
	TypeDateTime
	TypeTime
	TypeTimestamp
	TypeList
	TypeMap
	TypeBytes
)

var paramTypeNames = [...]string{
	TypeAny:       "any",
	TypeString:    "string",
	TypeInt:       "integer",
	TypeFloat:     "float",
	TypeBool:      "boolean",
	TypeDecimal:   "decimal",
	TypeDate:      "date",
	TypeDateTime:  "datetime",
	TypeTime:      "time",
	TypeTimestamp: "timestamp",
	TypeList:      "list",
	TypeMap:       "map",
	TypeBytes:     "bytes",
}

func (t ParamType) String() string {
	if int(t) < len(paramTypeNames) {
		return paramTypeNames[t]
	}
	return "unknown"
}

// Param declares one named endpoint parameter.
type Param struct {
	Name     string
	Type     ParamType
	Optional bool
	// Default is used for an optional parameter the caller did not send.
	Default any
}

// Required declares a mandatory parameter.
func Required(name string, t ParamType) Param {
	return Param{Name: name, Type: t}
}

// Optional declares a parameter with a default value.
func Optional(name string, t ParamType, def any) Param {
	return Param{Name: name, Type: t, Optional: true, Default: def}
}

// Func is the invocation thunk of an endpoint. Args holds every declared
// parameter, already coerced to its declared type.
type Func func(ctx context.Context, args Args) (any, error)

// Endpoint is a handler together with its parameter declarations. The
// declarations are fixed at registration, so no introspection happens per
// request.
type Endpoint struct {
	Params []Param
	Call   Func
}

// NewEndpoint builds an endpoint from a thunk and its parameters.
func NewEndpoint(call Func, params ...Param) Endpoint {
	return Endpoint{Params: params, Call: call}
}

// Args holds bound parameter values by name. The typed getters return the
// zero value when a parameter is absent or of another type.
type Args map[string]any

func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

func (a Args) Get(name string) any { return a[name] }

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int64 {
	n, _ := a[name].(int64)
	return n
}

// BigInt returns integers outside the int64 range as well as in it.
func (a Args) BigInt(name string) *big.Int {
	switch x := a[name].(type) {
	case *big.Int:
		return x
	case int64:
		return big.NewInt(x)
	}
	return nil
}

func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

func (a Args) Decimal(name string) *inf.Dec {
	d, _ := a[name].(*inf.Dec)
	return d
}

func (a Args) Date(name string) civil.Date {
	d, _ := a[name].(civil.Date)
	return d
}

func (a Args) DateTime(name string) civil.DateTime {
	d, _ := a[name].(civil.DateTime)
	return d
}

func (a Args) Time(name string) civil.Time {
	t, _ := a[name].(civil.Time)
	return t
}

func (a Args) Timestamp(name string) time.Time {
	t, _ := a[name].(time.Time)
	return t
}

func (a Args) List(name string) []any {
	l, _ := a[name].([]any)
	return l
}

func (a Args) Map(name string) map[string]any {
	m, _ := a[name].(map[string]any)
	return m
}

func (a Args) Bytes(name string) []byte {
	switch x := a[name].(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	}
	return nil
}
