package snapshotdb

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/keiro"
)

type position struct{ X, Y float32 }
type velocity struct{ X, Y float32 }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func populatedWorld(t *testing.T) *keiro.World {
	t.Helper()
	w, err := keiro.NewWorld("archive")
	require.NoError(t, err)
	t.Cleanup(w.Dispose)

	reg := w.Registry().Components
	pos := keiro.ComponentID[position](reg)
	vel := keiro.ComponentID[velocity](reg)

	cb := w.NewCommandBuffer()
	_, err = cb.CreateEntity(keiro.NewArchetype(pos, vel))
	require.NoError(t, err)
	_, err = cb.CreateEntity(keiro.NewArchetype(pos))
	require.NoError(t, err)
	_, err = cb.CreateEntity(keiro.NewArchetype())
	require.NoError(t, err)
	require.NoError(t, w.Playback(cb))
	require.NoError(t, w.Update(16*time.Millisecond))
	return w
}

// go test -run ^TestSaveLoadRoundTrip$ ./snapshotdb -count 1
func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := populatedWorld(t)

	snap := w.Snapshot()
	require.Len(t, snap.Entities, 3)

	id, err := s.Save(ctx, snap)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, snap.World, got.World)
	require.Equal(t, snap.Frame, got.Frame)
	require.Equal(t, snap.Elapsed, got.Elapsed)
	require.Equal(t, snap.Entities, got.Entities)
	require.Empty(t, got.Entities[2].Components)
}

// go test -run ^TestListAndDelete$ ./snapshotdb -count 1
func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w := populatedWorld(t)

	first, err := s.Save(ctx, w.Snapshot())
	require.NoError(t, err)
	require.NoError(t, w.Update(16*time.Millisecond))
	second, err := s.Save(ctx, w.Snapshot())
	require.NoError(t, err)

	list, err := s.List(ctx, "archive")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second, list[0].ID)
	require.Equal(t, 3, list[0].Entities)

	other, err := s.List(ctx, "elsewhere")
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, s.Delete(ctx, first))
	_, err = s.Load(ctx, first)
	require.True(t, eris.Is(err, ErrNotFound))
	require.True(t, eris.Is(s.Delete(ctx, first), ErrNotFound))

	list, err = s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

// go test -run ^TestReopenKeepsArchive$ ./snapshotdb -count 1
func TestReopenKeepsArchive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(path)
	require.NoError(t, err)
	w := populatedWorld(t)
	id, err := s.Save(ctx, w.Snapshot())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Entities, 3)

	want := reflect.TypeFor[position]()
	require.Contains(t, got.Entities[0].Components, want.PkgPath()+"."+want.Name())
}
