package play

import (
	"errors"
	"testing"
)

func strptr(s string) *string { return &s }

func TestGuardEval(t *testing.T) {
	facts := map[string]string{
		"os_family":    "debian",
		"distribution": "ubuntu",
		"arch":         "x86_64",
	}

	tests := []struct {
		name  string
		guard Guard
		want  bool
	}{
		{
			name:  "equals match",
			guard: Guard{Fact: "os_family", Equals: strptr("debian")},
			want:  true,
		},
		{
			name:  "equals mismatch is exact",
			guard: Guard{Fact: "os_family", Equals: strptr("Debian")},
			want:  false,
		},
		{
			name:  "not_equals",
			guard: Guard{Fact: "os_family", NotEquals: strptr("redhat")},
			want:  true,
		},
		{
			name:  "membership",
			guard: Guard{Fact: "distribution", In: []string{"debian", "ubuntu"}},
			want:  true,
		},
		{
			name:  "membership miss",
			guard: Guard{Fact: "distribution", In: []string{"fedora", "centos"}},
			want:  false,
		},
		{
			name: "all combinator",
			guard: Guard{All: []Guard{
				{Fact: "os_family", Equals: strptr("debian")},
				{Fact: "arch", Equals: strptr("x86_64")},
			}},
			want: true,
		},
		{
			name: "all short-circuits false",
			guard: Guard{All: []Guard{
				{Fact: "os_family", Equals: strptr("redhat")},
				{Fact: "arch", Equals: strptr("x86_64")},
			}},
			want: false,
		},
		{
			name: "any combinator",
			guard: Guard{Any: []Guard{
				{Fact: "os_family", Equals: strptr("redhat")},
				{Fact: "os_family", Equals: strptr("debian")},
			}},
			want: true,
		},
		{
			name:  "not combinator",
			guard: Guard{Not: &Guard{Fact: "os_family", Equals: strptr("redhat")}},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.guard.Eval(facts)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuardEvalUndefinedFact(t *testing.T) {
	guard := Guard{Fact: "nonexistent", Equals: strptr("x")}

	_, err := guard.Eval(map[string]string{"os_family": "debian"})
	if err == nil {
		t.Fatal("Eval() error = nil, want UndefinedFactError")
	}
	var undefErr *UndefinedFactError
	if !errors.As(err, &undefErr) {
		t.Fatalf("error type = %T, want *UndefinedFactError", err)
	}
	if undefErr.Key != "nonexistent" {
		t.Errorf("Key = %q, want nonexistent", undefErr.Key)
	}
}

func TestGuardValidate(t *testing.T) {
	known := map[string]bool{"os_family": true}

	tests := []struct {
		name    string
		guard   Guard
		wantErr bool
	}{
		{
			name:    "valid comparison",
			guard:   Guard{Fact: "os_family", Equals: strptr("debian")},
			wantErr: false,
		},
		{
			name:    "no variant set",
			guard:   Guard{Fact: "os_family"},
			wantErr: true,
		},
		{
			name:    "two variants set",
			guard:   Guard{Fact: "os_family", Equals: strptr("a"), NotEquals: strptr("b")},
			wantErr: true,
		},
		{
			name:    "comparison without fact",
			guard:   Guard{Equals: strptr("debian")},
			wantErr: true,
		},
		{
			name:    "unknown fact key",
			guard:   Guard{Fact: "bogus", Equals: strptr("x")},
			wantErr: true,
		},
		{
			name: "nested combinator validates children",
			guard: Guard{All: []Guard{
				{Fact: "bogus", Equals: strptr("x")},
			}},
			wantErr: true,
		},
		{
			name:    "combinator with fact key is rejected",
			guard:   Guard{Fact: "os_family", Not: &Guard{Fact: "os_family", Equals: strptr("x")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.guard.Validate(known)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
