package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfviz.dev/core/log"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 30, 9, 15, 0, 0, time.Local)
	return func() time.Time { return t0 }
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard()), WithClock(fixedClock())}, opts...)
	s := NewStore(context.Background(), opts...)
	t.Cleanup(s.Close)
	return s
}

func TestSetStatusPreservesLogs(t *testing.T) {
	s := newTestStore(t, WithSteps("a"))

	s.Log("a", LogInfo, "first")
	s.SetStatus("a", StatusRunning)
	s.Log("a", LogSuccess, "second")
	s.SetStatus("a", StatusComplete)

	snap := s.Snapshot()
	assert.Equal(t, StatusComplete, snap.Status("a"))
	require.Len(t, snap.Logs("a"), 2)
	assert.Equal(t, "first", snap.Logs("a")[0].Message)
	assert.Equal(t, "second", snap.Logs("a")[1].Message)
	assert.Equal(t, "09:15:00", snap.Logs("a")[0].Timestamp)
}

func TestUnknownStepsAreCreated(t *testing.T) {
	s := newTestStore(t)

	s.SetStatus("ghost", StatusRunning)
	s.Log("phantom", LogError, "boom")

	snap := s.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status("ghost"))
	assert.Empty(t, snap.Logs("ghost"))
	assert.Equal(t, StatusPending, snap.Status("phantom"))
	assert.Len(t, snap.Logs("phantom"), 1)
}

func TestSeededStepsProduceNoChanges(t *testing.T) {
	s := newTestStore(t, WithSteps("a", "b"))

	snap := s.Snapshot()
	assert.Equal(t, uint64(0), snap.Seq)
	assert.Equal(t, []string{"a", "b"}, snap.IDs())

	changes, err := s.Changes(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := newTestStore(t)
	s.Log("a", LogInfo, "one")

	snap := s.Snapshot()
	snap.Steps["a"].Logs[0].Message = "tampered"
	s.Log("a", LogInfo, "two")

	assert.Len(t, snap.Logs("a"), 1)
	fresh := s.Snapshot()
	assert.Equal(t, "one", fresh.Logs("a")[0].Message)
	assert.Len(t, fresh.Logs("a"), 2)
}

// latest write wins: a late "running" regresses a completed step
func TestLateRunningAfterComplete(t *testing.T) {
	s := newTestStore(t)

	s.SetStatus("a", StatusComplete)
	s.SetStatus("a", StatusRunning)

	assert.Equal(t, StatusRunning, s.Snapshot().Status("a"))
}

func TestRepeatedStatusIsNotAChange(t *testing.T) {
	s := newTestStore(t, WithSteps("a"))

	s.SetStatus("a", StatusPending)
	s.SetStatus("a", StatusRunning)
	s.SetStatus("a", StatusRunning)

	changes, err := s.Changes(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusRunning, changes[0].Status)

	// an unknown step is still created by its first status
	s.SetStatus("ghost", StatusPending)
	assert.Contains(t, s.Snapshot().IDs(), "ghost")
	assert.Equal(t, uint64(2), s.Snapshot().Seq)
}

func TestUpdateIsAtomic(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(tx *Tx) {
				n := tx.LogCount("counter")
				tx.Log("counter", LogInfo, fmt.Sprintf("%d:%d", i, n))
			})
		}()
	}
	wg.Wait()

	logs := s.Snapshot().Logs("counter")
	require.Len(t, logs, 20)
	for n, e := range logs {
		assert.True(t, strings.HasSuffix(e.Message, fmt.Sprintf(":%d", n)), e.Message)
	}
}

func TestLogsAreMonotonic(t *testing.T) {
	s := newTestStore(t)

	var prev []LogEntry
	for i := range 10 {
		s.Log("a", LogInfo, fmt.Sprintf("line %d", i))
		cur := s.Snapshot().Logs("a")
		require.Len(t, cur, len(prev)+1)
		assert.Equal(t, prev, cur[:len(prev)])
		prev = cur
	}
}

func TestChangesFollowMutationOrder(t *testing.T) {
	s := newTestStore(t)

	s.SetStatus("a", StatusRunning)
	s.Log("a", LogInfo, "hi")
	s.SetURL("a", "https://console.example/bucket")
	s.SetStatus("a", StatusComplete)

	changes, err := s.Changes(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, changes, 4)
	for i, c := range changes {
		assert.Equal(t, uint64(i+1), c.Seq)
	}
	assert.Equal(t, ChangeStatus, changes[0].Kind)
	assert.Equal(t, ChangeLog, changes[1].Kind)
	assert.Equal(t, "hi", changes[1].Entry.Message)
	assert.Equal(t, ChangeURL, changes[2].Kind)
	assert.Equal(t, StatusComplete, changes[3].Status)

	tail, err := s.Changes(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Seq)

	assert.Equal(t, "https://console.example/bucket", s.Snapshot().Steps["a"].URL)
}

func TestFollow(t *testing.T) {
	s := newTestStore(t)
	s.Log("a", LogInfo, "backlog")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Change, 10)
	errc := make(chan error, 1)
	go func() {
		errc <- s.Follow(ctx, 0, func(c Change) error {
			got <- c
			if c.Seq == 3 {
				return errStop
			}
			return nil
		})
	}()

	first := <-got
	assert.Equal(t, "backlog", first.Entry.Message)

	s.SetStatus("a", StatusRunning)
	s.SetStatus("a", StatusComplete)

	assert.ErrorIs(t, <-errc, errStop)
	assert.Equal(t, uint64(2), (<-got).Seq)
	assert.Equal(t, uint64(3), (<-got).Seq)
}

var errStop = fmt.Errorf("stop")

func TestReplayFromJournal(t *testing.T) {
	j := NewMemoryJournal()

	first := NewStore(context.Background(), WithJournal(j), WithLogger(log.Discard()))
	first.SetStatus("a", StatusRunning)
	first.Log("a", LogInfo, "persisted")
	first.Close()

	second := newTestStore(t, WithJournal(j))
	snap := second.Snapshot()
	assert.Equal(t, uint64(2), snap.Seq)
	assert.Equal(t, StatusRunning, snap.Status("a"))
	assert.Len(t, snap.Logs("a"), 1)

	second.SetStatus("a", StatusComplete)
	assert.Equal(t, uint64(3), second.Snapshot().Seq)
}

func TestClosedStoreDropsMutations(t *testing.T) {
	s := NewStore(context.Background(), WithLogger(log.Discard()))
	s.SetStatus("a", StatusRunning)
	s.Close()
	s.Close()

	s.SetStatus("a", StatusError)
	assert.Equal(t, StatusRunning, s.Snapshot().Status("a"))
}
