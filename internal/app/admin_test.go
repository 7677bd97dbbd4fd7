package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"riftvale/server/internal/world"
)

type fakeAdminCache struct {
	rosters   map[string][]string
	names     map[string]string
	snapshots map[string]world.Snapshot
	err       error
}

func (f *fakeAdminCache) AreaMembers(_ context.Context, areaID string) ([]string, error) {
	return f.rosters[areaID], f.err
}

func (f *fakeAdminCache) ActorIDByName(_ context.Context, name string) (string, bool, error) {
	id, ok := f.names[name]
	return id, ok, f.err
}

func (f *fakeAdminCache) ActorSnapshot(_ context.Context, actorID string) (world.Snapshot, bool, error) {
	snap, ok := f.snapshots[actorID]
	return snap, ok, f.err
}

func TestAdminAreaRoster(t *testing.T) {
	h := newAdminHandler(&fakeAdminCache{
		rosters: map[string][]string{"field": {"a1", "a2"}},
	}, nil)

	rec := httptest.NewRecorder()
	h.serveArea(rec, httptest.NewRequest(http.MethodGet, "/admin/area?id=field", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp areaRosterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "field", resp.AreaID)
	require.Equal(t, []string{"a1", "a2"}, resp.Actors)

	rec = httptest.NewRecorder()
	h.serveArea(rec, httptest.NewRequest(http.MethodGet, "/admin/area", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminActorLookup(t *testing.T) {
	snap := world.Snapshot{ID: "a1", Name: "hero", AreaID: "field", HP: 42}
	h := newAdminHandler(&fakeAdminCache{
		names:     map[string]string{"hero": "a1"},
		snapshots: map[string]world.Snapshot{"a1": snap},
	}, nil)

	for _, query := range []string{"id=a1", "name=hero"} {
		rec := httptest.NewRecorder()
		h.serveActor(rec, httptest.NewRequest(http.MethodGet, "/admin/actor?"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, query)

		var got world.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, snap.ID, got.ID)
		require.Equal(t, snap.HP, got.HP)
	}

	rec := httptest.NewRecorder()
	h.serveActor(rec, httptest.NewRequest(http.MethodGet, "/admin/actor?name=nobody", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCacheFailure(t *testing.T) {
	h := newAdminHandler(&fakeAdminCache{err: errors.New("redis down")}, nil)

	rec := httptest.NewRecorder()
	h.serveArea(rec, httptest.NewRequest(http.MethodGet, "/admin/area?id=field", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
