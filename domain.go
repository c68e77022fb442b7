package refcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Key is the untyped view of a Domain, used where the element type does not matter.
type Key interface {
	Name() string
}

// Domain is a reference-data category. Its element type is fixed at compile time,
// so a caller cannot ask for Zips as []Lookup. The storage key is the name.
type Domain[T any] struct {
	name string
}

func (d Domain[T]) Name() string   { return d.name }
func (d Domain[T]) String() string { return d.name }

var (
	registryMu sync.RWMutex
	registry   = map[string]string{} // name -> element type
)

// NewDomain declares a domain. A name maps to one element type process-wide;
// redeclaring it with a different type panics, because two element types under
// one key would make stored payloads undecodable for one of them.
func NewDomain[T any](name string) Domain[T] {
	if name == "" {
		panic("refcache: empty domain name")
	}
	var zero T
	typ := fmt.Sprintf("%T", zero)

	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[name]; ok && prev != typ {
		panic(fmt.Sprintf("refcache: domain %q already declared with element type %s", name, prev))
	}
	registry[name] = typ
	return Domain[T]{name: name}
}

// Domains returns every declared domain name, sorted.
func Domains() []string {
	registryMu.RLock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	registryMu.RUnlock()
	sort.Strings(out)
	return out
}

// LookupDomain reports whether name is a declared domain.
func LookupDomain(name string) bool {
	registryMu.RLock()
	_, ok := registry[name]
	registryMu.RUnlock()
	return ok
}

// Loader produces a domain's full list from the source of truth.
type Loader[T any] func(ctx context.Context) ([]T, error)
