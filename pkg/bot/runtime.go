// Package bot contains the translation relay pipeline: per-event processing,
// operator commands, and language-pair selection.
package bot

import (
	"sync"

	"lingorelay/pkg/config"
)

// Runtime owns the shared mutable relay state: the active configuration and
// the currently selected language pair. It is injected into the components
// that need it instead of living as ambient globals.
type Runtime struct {
	mu          sync.RWMutex
	cfg         *config.Config
	currentPair config.Pair
}

func NewRuntime(cfg *config.Config) *Runtime {
	return &Runtime{
		cfg:         cfg,
		currentPair: cfg.DefaultPair(),
	}
}

// Config returns the active configuration snapshot.
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// CurrentPair returns the active language pair.
func (r *Runtime) CurrentPair() config.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentPair
}

// SetCurrentPair switches the active pair.
func (r *Runtime) SetCurrentPair(pair config.Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentPair = pair
}

// ApplyConfig swaps in a reloaded configuration atomically. The current pair
// survives the swap when it still exists in the new pair set; otherwise it
// falls back to the new default.
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	if _, ok := cfg.PairByKey(r.currentPair.Key); !ok {
		r.currentPair = cfg.DefaultPair()
	}
}
