package eventstore

import (
	"gorm.io/gorm"
)

// Field sets one or more payload columns as part of a transition.
type Field func(update map[string]any)

// WithReport attaches the analysis result.
func WithReport(auditState uint8, fullReport, compressedReport string) Field {
	return func(u map[string]any) {
		u["audit_state"] = auditState
		u["full_report"] = fullReport
		u["compressed_report"] = compressedReport
	}
}

// WithAuditURI records where the full report was uploaded and its hash.
func WithAuditURI(uri, hash string) Field {
	return func(u map[string]any) {
		u["audit_uri"] = uri
		u["audit_hash"] = hash
	}
}

// WithSubmission records a submission attempt and increments the attempt counter.
func WithSubmission(txHash string, block uint64) Field {
	return func(u map[string]any) {
		u["tx_hash"] = txHash
		u["submission_block_nbr"] = block
		u["submission_attempts"] = gorm.Expr("submission_attempts + 1")
	}
}
