package syncengine

import "sync"

// Gate tracks whether the owning view is still active. It starts mounted and
// can be unmounted once; a retired gate never mounts again.
type Gate struct {
	mu      sync.Mutex
	mounted bool
	retired bool
}

func NewGate() *Gate {
	return &Gate{mounted: true}
}

func (g *Gate) Mount() {
	g.mu.Lock()
	if !g.retired {
		g.mounted = true
	}
	g.mu.Unlock()
}

func (g *Gate) Unmount() {
	g.mu.Lock()
	g.mounted = false
	g.retired = true
	g.mu.Unlock()
}

func (g *Gate) IsMounted() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mounted
}
