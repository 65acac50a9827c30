package api

import (
	"context"

	"github.com/pushchain/push-audit-node/auditNode/store"
)

// EventReader is the read side of the event store the API serves.
type EventReader interface {
	GetByRequestID(ctx context.Context, id uint64) (*store.AuditEvent, error)
	QueryByStatus(ctx context.Context, status store.Status) ([]store.AuditEvent, error)
	Recent(ctx context.Context, limit int) ([]store.AuditEvent, error)
}

// HealthChecker reports whether the node is healthy.
type HealthChecker interface {
	Healthy() error
}
