package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncer "mirrorsync/internal/sync"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(i int) *CycleRecord {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &CycleRecord{
		ID:        string(rune('a' + i)),
		StartedAt: base.Add(time.Duration(i) * time.Minute).UnixNano(),
		Created:   i,
	}
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)

	// 乱序写入，读取时仍按时间倒序
	for _, i := range []int{2, 0, 3, 1} {
		require.NoError(t, db.Record(record(i)))
	}

	recs, err := db.Recent(0)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for i, rec := range recs {
		assert.Equal(t, 3-i, rec.Created)
	}

	recs, err = db.Recent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "d", recs[0].ID)
	assert.Equal(t, "c", recs[1].ID)
}

func TestRecentEmpty(t *testing.T) {
	db := openTestDB(t)
	recs, err := db.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	for i := range 5 {
		require.NoError(t, db.Record(record(i)))
	}

	removed, err := db.Prune(0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = db.Prune(10)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = db.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	recs, err := db.Recent(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "e", recs[0].ID)
	assert.Equal(t, "d", recs[1].ID)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(record(1)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	recs, err := db.Recent(0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, record(1).StartTime(), recs[0].StartTime())
}

func TestOpenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestNewCycleRecord(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := &syncer.Outcome{
		CycleID:     "0f8a2c1e-0000-0000-0000-000000000000",
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		Created:     2,
		Updated:     1,
		Deleted:     3,
		Skipped:     4,
		BytesCopied: 2048,
		Errors:      []*syncer.ErrorRecord{{Path: "a", Op: "copy", Kind: syncer.ErrCopyFailed}},
	}

	rec := NewCycleRecord(out, nil)
	assert.Equal(t, out.CycleID, rec.ID)
	assert.Equal(t, started, rec.StartTime().UTC())
	assert.Equal(t, 1500*time.Millisecond, rec.Elapsed())
	assert.Equal(t, 1, rec.ErrorCount)
	assert.Empty(t, rec.Aborted)
	assert.True(t, rec.Failed())

	rec = NewCycleRecord(&syncer.Outcome{StartedAt: started}, errors.New("source root missing"))
	assert.Equal(t, "source root missing", rec.Aborted)
	assert.True(t, rec.Failed())

	rec = NewCycleRecord(&syncer.Outcome{StartedAt: started}, nil)
	assert.False(t, rec.Failed())
}

func TestHistoryRecordsAndPrunes(t *testing.T) {
	db := openTestDB(t)
	h := &History{DB: db, Keep: 2}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		out := &syncer.Outcome{CycleID: string(rune('a' + i)), StartedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, h.Record(out, nil))
	}
	require.NoError(t, h.Record(&syncer.Outcome{CycleID: "x", StartedAt: base.Add(time.Minute)}, syncer.ErrSourceMissing))

	recs, err := db.Recent(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "x", recs[0].ID)
	assert.Equal(t, syncer.ErrSourceMissing.Error(), recs[0].Aborted)
	assert.Equal(t, "c", recs[1].ID)
}
