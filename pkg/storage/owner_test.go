package storage

import (
	"context"
	"testing"
)

func TestSetGetOwner(t *testing.T) {
	ctx := context.Background()

	if got := GetOwner(ctx); got != "" {
		t.Errorf("GetOwner(empty ctx) = %q, want %q", got, "")
	}

	ctx = SetOwner(ctx, "alice")
	if got := GetOwner(ctx); got != "alice" {
		t.Errorf("GetOwner = %q, want %q", got, "alice")
	}

	ctx = SetOwner(ctx, "bob")
	if got := GetOwner(ctx); got != "bob" {
		t.Errorf("GetOwner = %q, want %q", got, "bob")
	}
}

func TestGetOwner_NoCollision(t *testing.T) {
	ctx := context.WithValue(context.Background(), "owner", "wrong")
	if got := GetOwner(ctx); got != "" {
		t.Errorf("GetOwner should not match string key, got %q", got)
	}
}
