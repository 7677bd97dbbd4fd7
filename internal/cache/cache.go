package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"riftvale/server/internal/world"
)

// Key layout shared with every other shard process. Values are msgpack; the
// cache is a lookaside layer, never the system of record.
const (
	areaRosterKeyFmt  = "area:%s:actors"
	areaGridKeyFmt    = "area:%s"
	areaChatKeyFmt    = "area:%s:chat"
	actorStateKeyFmt  = "actor:%s:state"
	actorNameKeyFmt   = "actorname:%s"
	connectedKeyFmt   = "connected:%s"
	chatHistoryLength = 100
	snapshotTTL       = 24 * time.Hour
)

// Client wraps the shared Redis instance with the shard's key conventions.
type Client struct {
	rdb *redis.Client
}

// New wraps an established Redis client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// AddAreaMember inserts the actor id into the area roster set.
func (c *Client) AddAreaMember(ctx context.Context, areaID, actorID string) error {
	return c.rdb.SAdd(ctx, fmt.Sprintf(areaRosterKeyFmt, areaID), actorID).Err()
}

// RemoveAreaMember drops the actor id from the area roster set.
func (c *Client) RemoveAreaMember(ctx context.Context, areaID, actorID string) error {
	return c.rdb.SRem(ctx, fmt.Sprintf(areaRosterKeyFmt, areaID), actorID).Err()
}

// AreaMembers lists the actor ids currently rostered in the area.
func (c *Client) AreaMembers(ctx context.Context, areaID string) ([]string, error) {
	return c.rdb.SMembers(ctx, fmt.Sprintf(areaRosterKeyFmt, areaID)).Result()
}

// SetNameLookup records the name→id entry used by social features.
func (c *Client) SetNameLookup(ctx context.Context, name, actorID string) error {
	if name == "" {
		return nil
	}
	return c.rdb.Set(ctx, fmt.Sprintf(actorNameKeyFmt, name), actorID, 0).Err()
}

// ActorIDByName resolves a character name to its actor id.
func (c *Client) ActorIDByName(ctx context.Context, name string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf(actorNameKeyFmt, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// MarkConnected stamps the user's connection marker with the session id.
func (c *Client) MarkConnected(ctx context.Context, userID, sessionID string) error {
	return c.rdb.Set(ctx, fmt.Sprintf(connectedKeyFmt, userID), sessionID, 0).Err()
}

// ClearConnected removes the user's connection marker.
func (c *Client) ClearConnected(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(connectedKeyFmt, userID)).Err()
}

// SetActorSnapshot stores the persisted actor view under actor:<id>:state.
func (c *Client) SetActorSnapshot(ctx context.Context, snap world.Snapshot) error {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode actor snapshot: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf(actorStateKeyFmt, snap.ID), data, snapshotTTL).Err()
}

// ActorSnapshot reads a cached actor snapshot; a miss is not an error.
func (c *Client) ActorSnapshot(ctx context.Context, actorID string) (world.Snapshot, bool, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf(actorStateKeyFmt, actorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return world.Snapshot{}, false, nil
	}
	if err != nil {
		return world.Snapshot{}, false, err
	}
	var snap world.Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return world.Snapshot{}, false, fmt.Errorf("cache: decode actor snapshot: %w", err)
	}
	return snap, true, nil
}

// SetArea stores a merged area grid under area:<id>.
func (c *Client) SetArea(ctx context.Context, area *world.Area) error {
	data, err := msgpack.Marshal(area)
	if err != nil {
		return fmt.Errorf("cache: encode area grid: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf(areaGridKeyFmt, area.ID), data, 0).Err()
}

// Area reads a cached merged area grid; a miss falls back to storage.
func (c *Client) Area(ctx context.Context, areaID string) (*world.Area, bool) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf(areaGridKeyFmt, areaID)).Bytes()
	if err != nil {
		return nil, false
	}
	var area world.Area
	if err := msgpack.Unmarshal(data, &area); err != nil {
		return nil, false
	}
	return &area, true
}

// AppendChat pushes a chat line onto the area's rolling list, trimming it to
// the retained history length.
func (c *Client) AppendChat(ctx context.Context, areaID, line string) error {
	key := fmt.Sprintf(areaChatKeyFmt, areaID)
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, -chatHistoryLength, -1)
	_, err := pipe.Exec(ctx)
	return err
}
