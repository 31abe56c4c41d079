package service

import "sync"

// CollectionGuard serializes whole load-mutate-save cycles against the
// shared local documents. The file store makes individual reads and
// writes atomic; the guard makes multi-step updates atomic with respect
// to each other, so a background sync cannot interleave with a tool
// mutation and overwrite it.
type CollectionGuard struct {
	mu sync.Mutex
}

func (g *CollectionGuard) Lock()   { g.mu.Lock() }
func (g *CollectionGuard) Unlock() { g.mu.Unlock() }
