// Package store contains the GORM-backed SQLite models of the audit node.
//
// Database Structure (database file: audit_events.db):
//
//	databases/
//	└── audit_events.db
//	    ├── audit_events
//	    └── audit_event_statuses
package store

import (
	"time"
)

// EventKind discriminates normal audits from police checks.
type EventKind string

const (
	KindAudit       EventKind = "Audit"
	KindPoliceCheck EventKind = "PoliceCheck"
)

// Status is the lifecycle state of an audit event.
type Status string

const (
	StatusAssigned      Status = "AS"
	StatusToBeSubmitted Status = "TS"
	StatusSubmitted     Status = "SB"
	StatusDone          Status = "DN"
	StatusError         Status = "ER"
)

// Statuses lists every status with its display name, in rank order with Error last.
var Statuses = []AuditEventStatus{
	{Code: StatusAssigned, Name: "Assigned"},
	{Code: StatusToBeSubmitted, Name: "ToBeSubmitted"},
	{Code: StatusSubmitted, Name: "Submitted"},
	{Code: StatusDone, Name: "Done"},
	{Code: StatusError, Name: "Error"},
}

// Rank returns the position of s in the lifecycle order. Error and unknown statuses have no rank.
func (s Status) Rank() (int, bool) {
	switch s {
	case StatusAssigned:
		return 0, true
	case StatusToBeSubmitted:
		return 1, true
	case StatusSubmitted:
		return 2, true
	case StatusDone:
		return 3, true
	}
	return 0, false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ranked := s.Rank()
	return ranked || s == StatusError
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Pending reports whether events in s are still subject to the timeout policy.
func (s Status) Pending() bool {
	return s.Valid() && !s.Terminal()
}

// CanTransition reports whether an event in from may move to to.
// Same-rank writes are allowed so a submission can be retried in place.
func CanTransition(from, to Status) bool {
	if !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	fromRank, ok := from.Rank()
	if !ok {
		return false
	}
	toRank, _ := to.Rank()
	return toRank >= fromRank
}

// AuditEvent tracks one audit request or police check through its lifecycle.
// Table name: "audit_events"
type AuditEvent struct {
	RequestID          uint64    `gorm:"primaryKey;autoIncrement:false" json:"request_id"`
	Kind               EventKind `gorm:"not null;default:'Audit'" json:"kind"`
	Requestor          string    `json:"requestor"`
	ContractURI        string    `gorm:"type:text" json:"contract_uri"`
	Price              string    `json:"price"`                                    // Decimal wei
	AssignedBlockNbr   uint64    `gorm:"index;not null" json:"assigned_block_nbr"` // Block at which the node was assigned
	Status             Status    `gorm:"index;not null;size:2" json:"status"`
	StatusInfo         string    `gorm:"type:text" json:"status_info"` // Overwritten on every transition
	AuditURI           string    `gorm:"type:text" json:"audit_uri,omitempty"`
	AuditHash          string    `json:"audit_hash,omitempty"`
	AuditState         uint8     `json:"audit_state,omitempty"`
	FullReport         string    `gorm:"type:text" json:"full_report,omitempty"`
	CompressedReport   string    `gorm:"type:text" json:"compressed_report,omitempty"` // Lowercase hex
	TxHash             string    `json:"tx_hash,omitempty"`
	SubmissionBlockNbr uint64    `json:"submission_block_nbr,omitempty"`
	SubmissionAttempts int       `gorm:"not null;default:0" json:"submission_attempts"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for AuditEvent.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// AuditEventStatus is the fixed lookup table of status codes.
type AuditEventStatus struct {
	Code Status `gorm:"primaryKey;size:2"`
	Name string `gorm:"not null"`
}

// TableName specifies the table name for AuditEventStatus.
func (AuditEventStatus) TableName() string {
	return "audit_event_statuses"
}
