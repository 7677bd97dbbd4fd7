package sim

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// baseTickInterval is the resolution of the scheduling loop; every subsystem
// cadence is a multiple of it.
const baseTickInterval = 50 * time.Millisecond

// Subsystem cadences.
const (
	MovementInterval    = 150 * time.Millisecond
	ActionInterval      = 200 * time.Millisecond
	ZoneInterval        = 200 * time.Millisecond
	InteractionInterval = 300 * time.Millisecond
	RegenInterval       = time.Second
)

// TickFunc is one subsystem pass driven by the clock.
type TickFunc func(ctx context.Context, now time.Time)

type clockEntry struct {
	name      string
	every     time.Duration
	fn        TickFunc
	lastRunAt time.Time
}

// Clock is the single scheduling loop. One goroutine drives every subsystem
// at its own cadence; a panicking pass is logged and the loop keeps running.
type Clock struct {
	entries []*clockEntry
	log     *zap.Logger
}

// NewClock builds an empty clock.
func NewClock(log *zap.Logger) *Clock {
	if log == nil {
		log = zap.NewNop()
	}
	return &Clock{log: log}
}

// Register adds a subsystem pass at the given cadence. Registration order is
// execution order within a base tick; call before Run.
func (c *Clock) Register(name string, every time.Duration, fn TickFunc) {
	if fn == nil || every <= 0 {
		return
	}
	c.entries = append(c.entries, &clockEntry{name: name, every: every, fn: fn})
}

// Run drives the loop until the context is cancelled. It blocks; callers run
// it on its own goroutine.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(baseTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Advance(ctx, now)
		}
	}
}

// Advance runs every subsystem whose cadence has elapsed at the given time.
// Exposed so tests can drive the clock without real time.
func (c *Clock) Advance(ctx context.Context, now time.Time) {
	for _, e := range c.entries {
		if now.Sub(e.lastRunAt) < e.every {
			continue
		}
		e.lastRunAt = now
		c.runEntry(ctx, e, now)
	}
}

// Names lists the registered subsystems for startup logging.
func (c *Clock) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

func (c *Clock) runEntry(ctx context.Context, e *clockEntry, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("tick pass panicked",
				zap.String("subsystem", e.name), zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()
	e.fn(ctx, now)
}
