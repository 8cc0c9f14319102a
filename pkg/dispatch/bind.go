package dispatch

import (
	"fmt"
	"sort"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/router"
)

// Bind builds the argument map for params from values. Missing required
// parameters and failed coercions yield a validation error naming the
// parameter. In strict mode names not declared by params are rejected too.
func Bind(params []router.Param, values map[string]any, strict bool) (router.Args, error) {
	args := make(router.Args, len(params))
	for _, p := range params {
		v, ok := values[p.Name]
		if !ok || v == nil {
			if p.Optional {
				args[p.Name] = p.Default
				continue
			}
			return nil, api.NewValidationError(p.Name, fmt.Sprintf("missing required parameter %q", p.Name))
		}
		cv, err := Coerce(v, p.Type)
		if err != nil {
			return nil, api.NewValidationError(p.Name, fmt.Sprintf("parameter %q: %v", p.Name, err))
		}
		args[p.Name] = cv
	}

	if strict {
		var unknown []string
		for name := range values {
			if !declared(params, name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, api.NewValidationError(unknown[0], fmt.Sprintf("unknown parameter %q", unknown[0]))
		}
	}
	return args, nil
}

func declared(params []router.Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}
