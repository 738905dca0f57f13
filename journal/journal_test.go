package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfviz.dev/core/log"
	"nfviz.dev/core/status"
)

func sampleChanges() []status.Change {
	at := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	entry := status.LogEntry{Timestamp: "10:00:00", Message: "Enabling Batch API", Kind: status.LogInfo}
	return []status.Change{
		{Seq: 1, Step: "enable-apis", Kind: status.ChangeStatus, Status: status.StatusRunning, At: at},
		{Seq: 2, Step: "enable-apis", Kind: status.ChangeLog, Entry: &entry, At: at},
		{Seq: 3, Step: "create-bucket", Kind: status.ChangeURL, URL: "gs://demo-bucket", At: at},
		{Seq: 4, Step: "enable-apis", Kind: status.ChangeStatus, Status: status.StatusComplete, At: at},
	}
}

// exerciseJournal runs the behaviour every journal must share.
func exerciseJournal(t *testing.T, j status.Journal) {
	t.Helper()
	ctx := context.Background()

	empty, err := j.Since(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	changes := sampleChanges()
	require.NoError(t, j.Append(ctx, changes[:2]...))
	require.NoError(t, j.Append(ctx, changes[2:]...))

	all, err := j.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, c := range all {
		assert.Equal(t, uint64(i+1), c.Seq)
	}
	assert.Equal(t, "Enabling Batch API", all[1].Entry.Message)
	assert.Equal(t, "gs://demo-bucket", all[2].URL)
	assert.True(t, all[0].At.Equal(changes[0].At))

	tail, err := j.Since(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Seq)
}

func TestMemoryJournal(t *testing.T) {
	exerciseJournal(t, status.NewMemoryJournal())
}

func TestSQLiteJournal(t *testing.T) {
	j, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	exerciseJournal(t, j)
}

func TestSQLiteCustomTable(t *testing.T) {
	j, err := NewSQLite(":memory:", WithTableName("viz_changes"))
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, "viz_changes", j.tableName)
	exerciseJournal(t, j)
}

func TestSQLiteInvalidPath(t *testing.T) {
	_, err := NewSQLite("/invalid/path/to/nfviz.db")
	assert.Error(t, err)
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfviz.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	s := status.NewStore(context.Background(), status.WithJournal(j), status.WithLogger(log.Discard()))
	s.SetStatus("write-config", status.StatusRunning)
	s.Log("write-config", status.LogSuccess, "Written to: nextflow.config")
	s.Close()
	require.NoError(t, j.Close())

	j, err = NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()
	s = status.NewStore(context.Background(), status.WithJournal(j), status.WithLogger(log.Discard()))
	defer s.Close()

	snap := s.Snapshot()
	assert.Equal(t, status.StatusRunning, snap.Status("write-config"))
	require.Len(t, snap.Logs("write-config"), 1)
	assert.Equal(t, "Written to: nextflow.config", snap.Logs("write-config")[0].Message)
}

func TestRedisJournal(t *testing.T) {
	addr := os.Getenv("NFVIZ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NFVIZ_TEST_REDIS_ADDR not set")
	}

	key := "nfviz:test:" + t.Name()
	j := NewRedis(addr, key)
	defer j.Close()
	require.NoError(t, j.Ping(context.Background()))
	j.rdb.Del(context.Background(), key)
	defer j.rdb.Del(context.Background(), key)

	exerciseJournal(t, j)
}

func TestOpen(t *testing.T) {
	j, closer, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &status.MemoryJournal{}, j)
	assert.NoError(t, closer.Close())

	j, closer, err = Open(context.Background(), Config{
		Provider:   ProviderSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, j)
	assert.NoError(t, closer.Close())

	_, _, err = Open(context.Background(), Config{Provider: "etcd"})
	assert.Error(t, err)
}
