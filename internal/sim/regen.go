package sim

import (
	"time"

	"go.uber.org/zap"

	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// regenInterval is the minimum gap between two passive recoveries of the
// same actor.
const regenInterval = time.Second

// Regen restores health to living, out-of-combat actors on a slow cadence.
type Regen struct {
	store *world.Store
	bc    Broadcaster
	log   *zap.Logger
}

// NewRegen builds the passive recovery pass.
func NewRegen(store *world.Store, bc Broadcaster, log *zap.Logger) *Regen {
	if log == nil {
		log = zap.NewNop()
	}
	return &Regen{store: store, bc: bc, log: log}
}

// regenAmount is the per-pass recovery for one actor, scaling with level and
// never below one point.
func regenAmount(a *world.Actor) int {
	amount := a.MaxHP/20 + a.Level
	if amount < 1 {
		amount = 1
	}
	return amount
}

// TickRegen heals every eligible actor at most once per interval and emits
// one batched event per affected area. Attacking actors do not recover.
func (r *Regen) TickRegen(now time.Time) {
	batches := make(map[string][]proto.HealthUpdate)
	r.store.Each(func(a *world.Actor) {
		if !a.Alive || a.Attacking || a.HP >= a.MaxHP {
			return
		}
		if now.Sub(a.LastRegenAt) < regenInterval {
			return
		}
		if healed := a.Heal(regenAmount(a)); healed > 0 {
			a.LastRegenAt = now
			batches[a.AreaID] = append(batches[a.AreaID], proto.HealthUpdate{ID: a.ID, HP: a.HP})
		}
	})

	for areaID, targets := range batches {
		r.bc.BroadcastArea(areaID, proto.HealthBatch{
			Type:    proto.EvtRegen,
			AreaID:  areaID,
			Targets: targets,
		})
	}
}
