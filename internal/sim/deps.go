package sim

import (
	"context"

	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// Broadcaster is the narrow outbound surface the tick subsystems need; the
// websocket registry implements it. Events are grouped per area and sent once
// per tick pass, never per mutation.
type Broadcaster interface {
	BroadcastArea(areaID string, payload any)
	SendActor(actorID string, payload any) bool
}

// RoomMover relocates an actor's session between area rooms on teleport.
type RoomMover interface {
	MoveActorRoom(actorID, fromAreaID, toAreaID string, x, y int)
}

// ActorRepository hydrates owned actors from durable storage at connect time.
type ActorRepository interface {
	FindOwnedActor(ctx context.Context, userID, actorID string) (*world.Actor, error)
}

// PresenceCache is the slice of the shared cache the engine touches directly:
// connection markers and the area chat lists.
type PresenceCache interface {
	MarkConnected(ctx context.Context, userID, sessionID string) error
	AppendChat(ctx context.Context, areaID, line string) error
}

// positionTracker mirrors applied steps onto the actor's connection session,
// keeping its last-known position current between teleports.
type positionTracker interface {
	UpdateActorPosition(actorID string, x, y int)
}

// interactionCanceller breaks the movement→interaction cycle: a fresh move
// request only needs to drop a pending interaction, not the whole component.
type interactionCanceller interface {
	CancelPending(actorID string)
}

// zoneLister is the read-only view of combat the interaction coordinator
// uses when assembling a destination snapshot.
type zoneLister interface {
	ZonesInArea(areaID string) []proto.ZoneInfo
}
