// Package format is the registry of on-disk sequence representations.
// Adapters register themselves at init time, usually from a blank
// import, and loaders pick one either by name or by sniffing the
// input.
package format

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulseq-frame/disseqt/seq"
)

// Adapter parses one on-disk representation into the canonical model.
type Adapter interface {
	// Name is the registry tag, unique across adapters.
	Name() string

	// Sniff reports whether data plausibly starts this adapter's
	// format. It must be cheap: header bytes only, no full parse.
	Sniff(data []byte) bool

	// Parse decodes data into a fully built sequence.
	Parse(ctx context.Context, data []byte) (*seq.Sequence, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Adapter)
	order    []string
)

// Register makes an adapter loadable under its name. Registering two
// adapters with the same name panics, mirroring database/sql.
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	name := a.Name()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("format: Register called twice for %q", name))
	}
	registry[name] = a
	order = append(order, name)
}

// Lookup returns the adapter registered under name.
func Lookup(name string) (Adapter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := registry[name]
	return a, ok
}

// Detect returns the first adapter, in registration order, whose
// Sniff accepts data.
func Detect(data []byte) (Adapter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	for _, name := range order {
		if a := registry[name]; a.Sniff(data) {
			return a, true
		}
	}
	return nil, false
}

// Names returns the registered adapter names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, len(order))
	copy(names, order)
	sort.Strings(names)
	return names
}
