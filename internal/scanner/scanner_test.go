package scanner

import (
	"context"
	"testing"

	"linkrelay/internal/domain"
)

type namedAdapter struct {
	name string
	tag  int
}

func (n namedAdapter) Name() string { return n.name }
func (n namedAdapter) Poll(context.Context, Source) ([]domain.Item, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(namedAdapter{name: "user-timeline"}, namedAdapter{name: "feed"})

	a, err := r.Resolve("feed")
	if err != nil {
		t.Fatalf("resolve feed: %v", err)
	}
	if a.Name() != "feed" {
		t.Fatalf("resolved wrong adapter: %s", a.Name())
	}

	if _, err := r.Resolve("carrier-pigeon"); err == nil {
		t.Fatalf("unknown type must fail to resolve")
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(namedAdapter{name: "feed", tag: 1})
	r.Register(namedAdapter{name: "feed", tag: 2})

	a, err := r.Resolve("feed")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := a.(namedAdapter).tag; got != 2 {
		t.Fatalf("later registration must win, got tag %d", got)
	}
}
