package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"riftvale/server/internal/proto"
)

// broadcastParallelism bounds how many socket writes one broadcast fans out
// to at a time.
const broadcastParallelism = 32

// Registry owns the session↔identity mapping and the per-area rooms. It is
// the only component that touches sockets outside the read loop.
type Registry struct {
	mu       deadlock.RWMutex
	sessions map[string]*Session
	byUser   map[string]*Session
	byActor  map[string]*Session
	rooms    map[string]map[string]*Session
	log      *zap.Logger
}

// NewRegistry builds an empty session registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
		byActor:  make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		log:      log,
	}
}

// Register wraps a freshly upgraded connection in an anonymous session.
func (r *Registry) Register(conn Conn) *Session {
	sess := &Session{ID: uuid.NewString(), conn: conn}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// EvictUser invalidates and closes any existing session for the user, sending
// the replaced notice first. It returns the evicted session so the caller can
// run its disconnect cleanup before the new join proceeds.
func (r *Registry) EvictUser(userID string) *Session {
	r.mu.Lock()
	old := r.byUser[userID]
	r.mu.Unlock()
	if old == nil {
		return nil
	}
	old.Invalidate()
	old.notifyAndClose(proto.ConnectionReplaced{Type: proto.EvtReplaced})
	return old
}

// Bind attaches the identity to the session and places it in its area room.
func (r *Registry) Bind(sess *Session, userID, actorID, areaID string, x, y int) {
	if sess == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.UserID = userID
	sess.ActorID = actorID
	sess.AreaID = areaID
	sess.LastX = x
	sess.LastY = y
	r.byUser[userID] = sess
	r.byActor[actorID] = sess
	r.joinRoomLocked(sess, areaID)
}

// MoveRoom relocates a session between area rooms on teleport.
func (r *Registry) MoveRoom(sess *Session, fromAreaID, toAreaID string, x, y int) {
	if sess == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if room := r.rooms[fromAreaID]; room != nil {
		delete(room, sess.ID)
		if len(room) == 0 {
			delete(r.rooms, fromAreaID)
		}
	}
	sess.AreaID = toAreaID
	sess.LastX = x
	sess.LastY = y
	r.joinRoomLocked(sess, toAreaID)
}

// MoveActorRoom relocates the actor's session between area rooms, resolving
// the session first. A missing session means the actor already disconnected.
func (r *Registry) MoveActorRoom(actorID, fromAreaID, toAreaID string, x, y int) {
	sess, ok := r.SessionByActor(actorID)
	if !ok {
		return
	}
	r.MoveRoom(sess, fromAreaID, toAreaID, x, y)
}

// UpdatePosition records the last known position on the session.
func (r *Registry) UpdatePosition(sess *Session, x, y int) {
	if sess == nil {
		return
	}
	r.mu.Lock()
	sess.LastX = x
	sess.LastY = y
	r.mu.Unlock()
}

// UpdateActorPosition refreshes the last known position on the actor's
// session. A missing session means the actor already disconnected.
func (r *Registry) UpdateActorPosition(actorID string, x, y int) {
	sess, ok := r.SessionByActor(actorID)
	if !ok {
		return
	}
	r.UpdatePosition(sess, x, y)
}

// Unregister removes a session from every map. Safe to call more than once;
// an already replaced identity mapping is left alone.
func (r *Registry) Unregister(sess *Session) {
	if sess == nil {
		return
	}
	sess.Invalidate()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sess.ID)
	if current := r.byUser[sess.UserID]; current == sess {
		delete(r.byUser, sess.UserID)
	}
	if current := r.byActor[sess.ActorID]; current == sess {
		delete(r.byActor, sess.ActorID)
	}
	if room := r.rooms[sess.AreaID]; room != nil {
		delete(room, sess.ID)
		if len(room) == 0 {
			delete(r.rooms, sess.AreaID)
		}
	}
}

// SessionByActor resolves the live session for an actor id.
func (r *Registry) SessionByActor(actorID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byActor[actorID]
	return sess, ok
}

// SessionByUser resolves the live session for a user id.
func (r *Registry) SessionByUser(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byUser[userID]
	return sess, ok
}

// BroadcastArea sends one event to every session in the area room. The
// payload is marshalled once; writes fan out on a bounded wait group and
// failed or stale sessions are skipped.
func (r *Registry) BroadcastArea(areaID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("broadcast marshal failed", zap.String("area", areaID), zap.Error(err))
		return
	}

	r.mu.RLock()
	room := r.rooms[areaID]
	targets := make([]*Session, 0, len(room))
	for _, sess := range room {
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	swg := sizedwaitgroup.New(broadcastParallelism)
	for _, sess := range targets {
		swg.Add()
		go func(s *Session) {
			defer swg.Done()
			if err := s.sendRaw(data); err != nil && !s.Stale() {
				r.log.Warn("broadcast write failed",
					zap.String("session", s.ID), zap.String("area", areaID), zap.Error(err))
			}
		}(sess)
	}
	swg.Wait()
}

// SendActor sends one event to the actor's session, reporting delivery.
func (r *Registry) SendActor(actorID string, payload any) bool {
	sess, ok := r.SessionByActor(actorID)
	if !ok || sess.Stale() {
		return false
	}
	if err := sess.Send(payload); err != nil {
		return false
	}
	return true
}

func (r *Registry) joinRoomLocked(sess *Session, areaID string) {
	room := r.rooms[areaID]
	if room == nil {
		room = make(map[string]*Session)
		r.rooms[areaID] = room
	}
	room[sess.ID] = sess
}
