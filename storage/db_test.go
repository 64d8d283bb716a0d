package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBGetMissing(t *testing.T) {
	db := NewMemDB()
	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))
	ok, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDBBatchAppliesAllOps(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("stale"), []byte("x")))

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("stale"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Write())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	_, err = db.Get([]byte("stale"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, db.Len())
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)

	batch := db1.NewBatch()
	batch.Put([]byte("key"), []byte("value"))
	require.NoError(t, batch.Write())
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	_, err = db2.Get([]byte("other"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	parent := NewMemDB()
	require.NoError(t, parent.Put([]byte("keep"), []byte("old")))
	require.NoError(t, parent.Put([]byte("drop"), []byte("gone")))

	ov := NewOverlay(parent)
	require.NoError(t, ov.Put([]byte("keep"), []byte("new")))
	require.NoError(t, ov.Delete([]byte("drop")))

	got, err := ov.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
	_, err = ov.Get([]byte("drop"))
	require.ErrorIs(t, err, ErrNotFound)

	// parent untouched until commit
	got, err = parent.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)
	require.Equal(t, 2, ov.Dirty())

	require.NoError(t, ov.Commit())
	got, err = parent.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
	ok, err := parent.Has([]byte("drop"))
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, ov.Put([]byte("late"), []byte("x")))
}

func TestOverlayDiscardLeavesParent(t *testing.T) {
	parent := NewMemDB()
	ov := NewOverlay(parent)
	require.NoError(t, ov.Put([]byte("k"), []byte("v")))
	ov.Discard()

	ok, err := parent.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Error(t, ov.Commit())
}

func TestOverlayBatchWritesIntoOverlay(t *testing.T) {
	parent := NewMemDB()
	ov := NewOverlay(parent)
	batch := ov.NewBatch()
	batch.Put([]byte("k"), []byte("v"))
	require.NoError(t, batch.Write())

	ok, err := ov.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = parent.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBoltDBBatchAndReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(BackendBolt, dir)
	require.NoError(t, err)

	require.NoError(t, db1.Put([]byte("gone"), []byte("soon")))
	batch := db1.NewBatch()
	batch.Put([]byte("key"), []byte("value"))
	batch.Delete([]byte("gone"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())
	require.Equal(t, 0, batch.Len())
	db1.Close()

	db2, err := Open(BackendBolt, dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	ok, err := db2.Has([]byte("gone"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = db2.Get([]byte("gone"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayCommitsIntoBolt(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	overlay := NewOverlay(db)
	require.NoError(t, overlay.Put([]byte("a"), []byte("1")))
	require.NoError(t, overlay.Put([]byte("b"), []byte("2")))
	require.NoError(t, overlay.Commit())

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := db.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb", t.TempDir())
	require.Error(t, err)
}
