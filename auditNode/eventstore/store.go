// Package eventstore is the durable record of every audit event. Reads go straight to
// the database; every mutation is funneled through one writer goroutine so that at most
// one write runs at any instant regardless of how many workers issue them.
package eventstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

const writeQueueSize = 64

var (
	// ErrNotFound is returned when no event exists for a request id.
	ErrNotFound = errors.New("audit event not found")

	// ErrClosed is returned for writes issued after Close.
	ErrClosed = errors.New("event store closed")

	errRejected = errors.New("transition rejected")
)

type writeRequest struct {
	fn     func(tx *gorm.DB) error
	result chan error
}

// Store provides access to audit events.
type Store struct {
	database *db.DB
	db       *gorm.DB
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	writes chan writeRequest
	done   chan struct{}
}

// NewStore creates an event store over database and starts its writer.
func NewStore(database *db.DB, logger zerolog.Logger) *Store {
	s := &Store{
		database: database,
		db:       database.Client(),
		logger:   logger.With().Str("component", "event_store").Logger(),
		writes:   make(chan writeRequest, writeQueueSize),
		done:     make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Store) writer() {
	defer close(s.done)
	for req := range s.writes {
		req.result <- req.fn(s.db)
	}
}

// write queues fn for the writer and waits for its result.
func (s *Store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	req := writeRequest{fn: fn, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.writes <- req:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	// Once queued the write runs to completion; waiting for it keeps callers ordered.
	return <-req.result
}

// AddIfAbsent inserts ev in the Assigned state. An existing row for the same request id
// is left untouched; inserted reports which case applied.
func (s *Store) AddIfAbsent(ctx context.Context, ev *store.AuditEvent) (inserted bool, err error) {
	row := *ev
	row.Status = store.StatusAssigned
	if row.Kind == "" {
		row.Kind = store.KindAudit
	}
	if row.StatusInfo == "" {
		row.StatusInfo = "assigned"
	}

	err = s.write(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to add event %d", ev.RequestID)
	}

	if inserted {
		s.logger.Info().
			Uint64("request_id", ev.RequestID).
			Str("kind", string(row.Kind)).
			Uint64("assigned_block_nbr", ev.AssignedBlockNbr).
			Msg("stored new audit event")
	}
	return inserted, nil
}

// QueryByStatus returns every event currently in status, oldest request first.
func (s *Store) QueryByStatus(ctx context.Context, status store.Status) ([]store.AuditEvent, error) {
	var events []store.AuditEvent
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("request_id ASC").
		Find(&events).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to query events with status %s", status)
	}
	return events, nil
}

// Recent returns up to limit events, most recently updated first.
func (s *Store) Recent(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	var events []store.AuditEvent
	query := s.db.WithContext(ctx).Order("updated_at DESC, request_id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query recent events")
	}
	return events, nil
}

// GetByRequestID returns the event for id or ErrNotFound.
func (s *Store) GetByRequestID(ctx context.Context, id uint64) (*store.AuditEvent, error) {
	var ev store.AuditEvent
	err := s.db.WithContext(ctx).Where("request_id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get event %d", id)
	}
	return &ev, nil
}

// LatestBlockNumber returns the highest assigned block seen. found is false when the
// store holds no events.
func (s *Store) LatestBlockNumber(ctx context.Context) (block uint64, found bool, err error) {
	var row struct {
		Count  int64
		Latest uint64
	}
	if err := s.db.WithContext(ctx).
		Model(&store.AuditEvent{}).
		Select("COUNT(*) AS count, COALESCE(MAX(assigned_block_nbr), 0) AS latest").
		Scan(&row).Error; err != nil {
		return 0, false, errors.Wrap(err, "failed to read latest block number")
	}
	return row.Latest, row.Count > 0, nil
}

// Transition moves the event to status `to`, records info as its status_info and applies
// the given fields, all in one transaction. Writes that would lower the status rank, or that
// target an event already in Done or Error, are not applied and return applied=false
// with a nil error.
func (s *Store) Transition(ctx context.Context, id uint64, to store.Status, info string, fields ...Field) (applied bool, err error) {
	var from store.Status
	err = s.write(ctx, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ev store.AuditEvent
			if err := tx.Select("request_id", "status").Where("request_id = ?", id).First(&ev).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			from = ev.Status
			if !store.CanTransition(from, to) {
				return errRejected
			}

			update := map[string]any{"status": to, "status_info": info}
			for _, f := range fields {
				f(update)
			}
			return tx.Model(&store.AuditEvent{}).Where("request_id = ?", id).Updates(update).Error
		})
	})

	switch {
	case errors.Is(err, errRejected):
		s.logger.Debug().
			Uint64("request_id", id).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("transition rejected")
		return false, nil
	case errors.Is(err, ErrNotFound):
		return false, ErrNotFound
	case err != nil:
		return false, errors.Wrapf(err, "failed to transition event %d to %s", id, to)
	}

	s.logger.Info().
		Uint64("request_id", id).
		Str("from", string(from)).
		Str("status", string(to)).
		Str("status_info", info).
		Msg("event transitioned")
	return true, nil
}

// TimeoutStale moves every event in one of statuses whose assignment is older than
// limit blocks at currentBlock to Error. It returns the number of events moved.
func (s *Store) TimeoutStale(ctx context.Context, currentBlock, limit uint64, info string, statuses ...store.Status) (int64, error) {
	if len(statuses) == 0 {
		statuses = []store.Status{store.StatusAssigned, store.StatusToBeSubmitted, store.StatusSubmitted}
	}
	for _, st := range statuses {
		if !st.Pending() {
			return 0, errors.Errorf("status %s is not subject to timeouts", st)
		}
	}

	var affected int64
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&store.AuditEvent{}).
			Where("status IN ? AND assigned_block_nbr + ? < ?", statuses, limit, currentBlock).
			Updates(map[string]any{"status": store.StatusError, "status_info": info})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to time out stale events")
	}
	if affected > 0 {
		s.logger.Warn().
			Int64("count", affected).
			Uint64("current_block", currentBlock).
			Uint64("limit_blocks", limit).
			Msg("timed out stale events")
	}
	return affected, nil
}

// CountByStatus returns the number of events per status.
func (s *Store) CountByStatus(ctx context.Context) (map[store.Status]int64, error) {
	var rows []struct {
		Status store.Status
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&store.AuditEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count events by status")
	}
	counts := make(map[store.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Close drains queued writes, stops the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()

	<-s.done
	return s.database.Close()
}
