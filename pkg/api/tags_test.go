package api

import (
	"reflect"
	"testing"
)

func TestParseTagSet(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"admin", []string{"admin"}},
		{"user, admin", []string{"admin", "user"}},
		{"a b\tc", []string{"a", "b", "c"}},
		{" , ", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := ParseTagSet(tt.in).Sorted()
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTagSet(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTagSetNil(t *testing.T) {
	var s TagSet
	if s.Has("x") {
		t.Error("nil set has a member")
	}
	if got := s.Union(NewTagSet("a")).String(); got != "a" {
		t.Errorf("Union = %q, want a", got)
	}
}
