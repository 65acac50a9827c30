package eventstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

// setupTestStore creates an event store over an in-memory database.
func setupTestStore(t testing.TB) *Store {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	s := NewStore(database, zerolog.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addEvent(t testing.TB, s *Store, id, block uint64) {
	inserted, err := s.AddIfAbsent(context.Background(), &store.AuditEvent{
		RequestID:        id,
		Requestor:        "0xrequestor",
		ContractURI:      fmt.Sprintf("https://example.com/%d.sol", id),
		Price:            "1000",
		AssignedBlockNbr: block,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestAddIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	addEvent(t, s, 1, 10)

	t.Run("second insert is a no-op", func(t *testing.T) {
		inserted, err := s.AddIfAbsent(ctx, &store.AuditEvent{
			RequestID:        1,
			ContractURI:      "https://example.com/other.sol",
			AssignedBlockNbr: 99,
			Status:           store.StatusDone,
		})
		require.NoError(t, err)
		assert.False(t, inserted)

		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/1.sol", ev.ContractURI)
		assert.Equal(t, uint64(10), ev.AssignedBlockNbr)
		assert.Equal(t, store.StatusAssigned, ev.Status)

		counts, err := s.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[store.StatusAssigned])
	})

	t.Run("status and kind are defaulted", func(t *testing.T) {
		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, store.KindAudit, ev.Kind)
		assert.Equal(t, "assigned", ev.StatusInfo)
	})

	t.Run("police checks keep their kind", func(t *testing.T) {
		_, err := s.AddIfAbsent(ctx, &store.AuditEvent{RequestID: 2, Kind: store.KindPoliceCheck, AssignedBlockNbr: 11})
		require.NoError(t, err)
		ev, err := s.GetByRequestID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, store.KindPoliceCheck, ev.Kind)
	})
}

func TestGetByRequestID_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetByRequestID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryByStatus(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	for id := uint64(3); id >= 1; id-- {
		addEvent(t, s, id, 100+id)
	}
	applied, err := s.Transition(ctx, 2, store.StatusToBeSubmitted, "audited")
	require.NoError(t, err)
	require.True(t, applied)

	assigned, err := s.QueryByStatus(ctx, store.StatusAssigned)
	require.NoError(t, err)
	require.Len(t, assigned, 2)
	assert.Equal(t, uint64(1), assigned[0].RequestID)
	assert.Equal(t, uint64(3), assigned[1].RequestID)

	pending, err := s.QueryByStatus(ctx, store.StatusToBeSubmitted)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "audited", pending[0].StatusInfo)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("applies payload fields", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 10)

		applied, err := s.Transition(ctx, 1, store.StatusToBeSubmitted, "report ready",
			WithReport(4, `{"status":"success"}`, "2007ab"),
			WithAuditURI("gs://reports/1.json", "deadbeef"))
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = s.Transition(ctx, 1, store.StatusSubmitted, "submitted", WithSubmission("0xabc", 20))
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = s.Transition(ctx, 1, store.StatusSubmitted, "resubmitted", WithSubmission("0xdef", 40))
		require.NoError(t, err)
		require.True(t, applied)

		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, store.StatusSubmitted, ev.Status)
		assert.Equal(t, "resubmitted", ev.StatusInfo)
		assert.Equal(t, uint8(4), ev.AuditState)
		assert.Equal(t, "2007ab", ev.CompressedReport)
		assert.Equal(t, "gs://reports/1.json", ev.AuditURI)
		assert.Equal(t, "0xdef", ev.TxHash)
		assert.Equal(t, uint64(40), ev.SubmissionBlockNbr)
		assert.Equal(t, 2, ev.SubmissionAttempts)
	})

	t.Run("rank decrease is ignored", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 10)
		_, err := s.Transition(ctx, 1, store.StatusSubmitted, "submitted")
		require.NoError(t, err)

		applied, err := s.Transition(ctx, 1, store.StatusToBeSubmitted, "late write")
		require.NoError(t, err)
		assert.False(t, applied)

		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, store.StatusSubmitted, ev.Status)
		assert.Equal(t, "submitted", ev.StatusInfo)
	})

	t.Run("error is absorbing", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 10)
		applied, err := s.Transition(ctx, 1, store.StatusError, "compile failed")
		require.NoError(t, err)
		require.True(t, applied)

		for _, to := range []store.Status{store.StatusAssigned, store.StatusDone, store.StatusError} {
			applied, err := s.Transition(ctx, 1, to, "ignored")
			require.NoError(t, err)
			assert.False(t, applied)
		}
		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "compile failed", ev.StatusInfo)
	})

	t.Run("unknown event", func(t *testing.T) {
		s := setupTestStore(t)
		applied, err := s.Transition(ctx, 9, store.StatusDone, "done")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, applied)
	})
}

func TestTransition_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	for id := uint64(1); id <= 20; id++ {
		addEvent(t, s, id, id)
	}

	var wg sync.WaitGroup
	for _, to := range []store.Status{store.StatusToBeSubmitted, store.StatusSubmitted, store.StatusDone} {
		for id := uint64(1); id <= 20; id++ {
			wg.Add(1)
			go func(id uint64, to store.Status) {
				defer wg.Done()
				_, err := s.Transition(ctx, id, to, string(to))
				assert.NoError(t, err)
			}(id, to)
		}
	}
	wg.Wait()

	done, err := s.QueryByStatus(ctx, store.StatusDone)
	require.NoError(t, err)
	assert.Len(t, done, 20)
}

func TestLatestBlockNumber(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, found, err := s.LatestBlockNumber(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	addEvent(t, s, 1, 120)
	addEvent(t, s, 2, 95)

	block, found, err := s.LatestBlockNumber(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(120), block)
}

func TestTimeoutStale(t *testing.T) {
	ctx := context.Background()

	t.Run("restart sweep", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 10)
		addEvent(t, s, 2, 92)

		n, err := s.TimeoutStale(ctx, 100, 10, "timed out before restart")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ev, err := s.GetByRequestID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, store.StatusError, ev.Status)
		assert.Equal(t, "timed out before restart", ev.StatusInfo)

		ev, err = s.GetByRequestID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, store.StatusAssigned, ev.Status)
	})

	t.Run("boundary block is not stale", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 90)
		n, err := s.TimeoutStale(ctx, 100, 10, "stale")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("terminal events are exempt", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 1)
		_, err := s.Transition(ctx, 1, store.StatusDone, "done")
		require.NoError(t, err)

		n, err := s.TimeoutStale(ctx, 1000, 10, "stale")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("restricted statuses", func(t *testing.T) {
		s := setupTestStore(t)
		addEvent(t, s, 1, 1)
		addEvent(t, s, 2, 1)
		_, err := s.Transition(ctx, 2, store.StatusSubmitted, "submitted")
		require.NoError(t, err)

		n, err := s.TimeoutStale(ctx, 1000, 10, "stale", store.StatusAssigned, store.StatusToBeSubmitted)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.TimeoutStale(ctx, 1000, 10, "stale", store.StatusDone)
		assert.Error(t, err)
	})
}

func TestClose(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	s := NewStore(database, zerolog.Nop())
	addEvent(t, s, 1, 1)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.AddIfAbsent(context.Background(), &store.AuditEvent{RequestID: 2})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransition_MonotonicProperty(t *testing.T) {
	statuses := []store.Status{
		store.StatusAssigned, store.StatusToBeSubmitted, store.StatusSubmitted, store.StatusDone, store.StatusError,
	}

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s := setupTestStore(t)
		addEvent(t, s, 1, 1)

		current := store.StatusAssigned
		steps := rapid.SliceOfN(rapid.SampledFrom(statuses), 1, 12).Draw(rt, "steps")
		for _, to := range steps {
			applied, err := s.Transition(ctx, 1, to, "step")
			require.NoError(rt, err)
			require.Equal(rt, store.CanTransition(current, to), applied)

			ev, err := s.GetByRequestID(ctx, 1)
			require.NoError(rt, err)
			if current == store.StatusError || current == store.StatusDone {
				require.Equal(rt, current, ev.Status)
			}
			if before, ok := current.Rank(); ok {
				if after, ok := ev.Status.Rank(); ok {
					require.GreaterOrEqual(rt, after, before)
				}
			}
			current = ev.Status
		}
	})
}
