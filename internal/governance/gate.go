package governance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SettingsReader is the read side of the settings store.
type SettingsReader interface {
	Get(ctx context.Context) (*Settings, error)
}

// Gate caches the operating mode for ttl. One Gate is created at process start
// and shared by every request; its cache lives until restart and is refreshed
// lazily. Each instance caches independently, so a mode change reaches other
// instances within ttl.
type Gate struct {
	store   SettingsReader
	ttl     time.Duration
	log     *zap.Logger
	nowFunc func() time.Time

	mu        sync.Mutex
	mode      Mode
	fetchedAt time.Time
}

func NewGate(store SettingsReader, ttl time.Duration, log *zap.Logger) *Gate {
	return &Gate{
		store:   store,
		ttl:     ttl,
		log:     log,
		nowFunc: time.Now,
	}
}

// Mode returns the current mode. Read failures resolve to NORMAL without
// populating the cache.
func (g *Gate) Mode(ctx context.Context) Mode {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFunc()
	if g.mode != "" && now.Sub(g.fetchedAt) < g.ttl {
		return g.mode
	}

	st, err := g.store.Get(ctx)
	if err != nil {
		g.log.Error("failed to read system mode, assuming NORMAL", zap.Error(err))
		return ModeNormal
	}
	mode := ModeNormal
	if st != nil && st.Mode != "" {
		mode = st.Mode
	}
	g.mode = mode
	g.fetchedAt = now
	return mode
}

// Allowed combines Mode and IsActionAllowed.
func (g *Gate) Allowed(ctx context.Context, action string) (Mode, bool) {
	mode := g.Mode(ctx)
	return mode, IsActionAllowed(mode, action)
}

// Invalidate drops the cached mode so the next read hits the store.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = ""
	g.fetchedAt = time.Time{}
}
