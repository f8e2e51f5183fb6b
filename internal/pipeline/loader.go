package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
)

// Loader resolves models on first use and keeps them until Reload. A
// failed resolution is not cached.
type Loader struct {
	store domain.ModelStore
	opts  ensemble.ResolveOptions

	mu      sync.Mutex
	current atomic.Pointer[ensemble.Models]
}

// NewLoader creates a loader over store.
func NewLoader(store domain.ModelStore, opts ensemble.ResolveOptions) *Loader {
	return &Loader{store: store, opts: opts}
}

// Models returns the loaded models, resolving them if needed.
func (l *Loader) Models(ctx context.Context) (*ensemble.Models, error) {
	if m := l.current.Load(); m != nil {
		return m, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if m := l.current.Load(); m != nil {
		return m, nil
	}
	m, err := ensemble.Resolve(ctx, l.store, l.opts)
	if err != nil {
		return nil, err
	}
	l.current.Store(m)
	return m, nil
}

// Reload resolves the models again and swaps them in. In-flight requests
// keep the models they started with. On error the previous models stay.
func (l *Loader) Reload(ctx context.Context) (*ensemble.Models, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := ensemble.Resolve(ctx, l.store, l.opts)
	if err != nil {
		return nil, err
	}
	l.current.Store(m)
	return m, nil
}

// Current returns the loaded models or nil.
func (l *Loader) Current() *ensemble.Models {
	return l.current.Load()
}
