package api

import (
	"fmt"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxPathLength int
	MaxDepth      int
	MaxHeaders    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxPathLength: 2048,
		MaxDepth:      64,
		MaxHeaders:    128,
	}
}

// ValidateRequest checks the shape of a normalized request. It returns an
// *Error describing the first failure, or nil if the request is valid.
// Route resolution and parameter binding are checked later.
func ValidateRequest(req *Request, cfg ValidationConfig) *Error {
	if req.Method == "" {
		return NewValidationError("method", "method is required")
	}
	for _, r := range req.Method {
		if r < 'A' || r > 'Z' {
			return NewValidationError("method", fmt.Sprintf("invalid method %q", req.Method))
		}
	}

	if strings.TrimSpace(req.Path) == "" {
		return NewValidationError("path", "path is required")
	}
	if cfg.MaxPathLength > 0 && len(req.Path) > cfg.MaxPathLength {
		return NewValidationError("path",
			fmt.Sprintf("path exceeds maximum length of %d", cfg.MaxPathLength))
	}

	if cfg.MaxHeaders > 0 && len(req.Headers) > cfg.MaxHeaders {
		return NewValidationError("headers",
			fmt.Sprintf("headers exceed maximum of %d", cfg.MaxHeaders))
	}

	if cfg.MaxDepth > 0 {
		if depth(req.Data) > cfg.MaxDepth {
			return NewValidationError("data",
				fmt.Sprintf("data nesting exceeds maximum depth of %d", cfg.MaxDepth))
		}
		for k, v := range req.Query {
			if depth(v) > cfg.MaxDepth {
				return NewValidationError(k,
					fmt.Sprintf("query nesting exceeds maximum depth of %d", cfg.MaxDepth))
			}
		}
	}
	return nil
}

// depth returns the nesting depth of a tree; scalars have depth 0.
func depth(v any) int {
	max := 0
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if d := depth(item); d > max {
				max = d
			}
		}
		return max + 1
	case map[string]any:
		for _, item := range x {
			if d := depth(item); d > max {
				max = d
			}
		}
		return max + 1
	}
	return 0
}
