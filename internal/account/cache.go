package account

import "strings"

// SymbolResolver maps a textual symbol to its canonical identity.
type SymbolResolver interface {
	Resolve(symbol string) string
}

type SymbolResolverFunc func(symbol string) string

func (f SymbolResolverFunc) Resolve(symbol string) string { return f(symbol) }

// DefaultResolver trims and upper-cases symbols.
var DefaultResolver SymbolResolver = SymbolResolverFunc(func(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
})

type instrument struct {
	symbol   string
	position *Position
	pending  map[string]struct{}
}

// evictionFactor bounds the cache at this many keys per live instrument.
const evictionFactor = 4

// instrumentCache remembers which instrument a raw symbol resolved to. Keys
// are kept in a ring in insertion order; once the ring outgrows
// evictionFactor times the live instrument count the oldest key is dropped.
type instrumentCache struct {
	entries map[string]*instrument
	ring    []string
}

func newInstrumentCache() *instrumentCache {
	return &instrumentCache{entries: make(map[string]*instrument)}
}

func (c *instrumentCache) get(key string) (*instrument, bool) {
	in, ok := c.entries[key]
	return in, ok
}

func (c *instrumentCache) put(key string, in *instrument, live int) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = in
		return
	}
	c.entries[key] = in
	c.ring = append(c.ring, key)
	limit := evictionFactor * max(live, 1)
	for len(c.ring) > limit {
		oldest := c.ring[0]
		c.ring[0] = ""
		c.ring = c.ring[1:]
		delete(c.entries, oldest)
	}
}

func (c *instrumentCache) len() int { return len(c.entries) }
