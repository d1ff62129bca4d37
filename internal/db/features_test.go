package db

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FeatureStore {
	t.Helper()
	conn, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store, err := NewFeatureStore(context.Background(), conn)
	require.NoError(t, err)
	return store
}

func collection(ids ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range ids {
		f := geojson.NewFeature(orb.Point{float64(i), 1})
		f.ID = id
		f.Properties["name"] = id
		fc.Append(f)
	}
	return fc
}

func TestFeatureStore_StoreReplacesTile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tile := maptile.New(1, 2, 3)

	require.NoError(t, store.StoreFeatures(ctx, "roads", tile, collection("a", "b")))
	require.NoError(t, store.StoreFeatures(ctx, "roads", tile, collection("c")))
	require.NoError(t, store.StoreFeatures(ctx, "roads", maptile.New(0, 0, 3), collection("d")))

	n, err := store.Count(ctx, "roads")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	features, err := store.Features(ctx, "roads")
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "d", features[0].ID)
	assert.Equal(t, "c", features[1].ID)
	assert.Equal(t, tile, features[1].Tile)
	assert.Equal(t, "Point", features[1].GeomType)
	assert.Equal(t, "POINT(0 1)", features[1].Geometry)
	assert.Equal(t, "c", features[1].Properties["name"])
}

func TestFeatureStore_DeleteLayer(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.StoreFeatures(ctx, "roads", maptile.New(0, 0, 0), collection("a")))
	require.NoError(t, store.StoreFeatures(ctx, "rivers", maptile.New(0, 0, 0), collection("b")))

	require.NoError(t, store.DeleteLayer(ctx, "roads"))

	n, err := store.Count(ctx, "roads")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.Count(ctx, "rivers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_FileBacked(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{DataDir: dir, DBName: "test"})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.FileExists(t, dir+"/duckdb/test.duckdb")
}
