package txmanager

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Outcome classifies the end state of a transaction attempt.
type Outcome int

const (
	// OutcomeOK means the transaction was broadcast, and mined and confirmed when a receipt was requested.
	OutcomeOK Outcome = iota
	// OutcomeDuplicate means the ledger already knows the transaction; it may still land.
	OutcomeDuplicate
	// OutcomeNotConfirmed means no receipt arrived in time or the transaction left the canonical chain.
	OutcomeNotConfirmed
	// OutcomeTransient means every broadcast attempt hit a provider or nonce failure that may
	// clear up; the caller should try again later.
	OutcomeTransient
	// OutcomeFatal means the transaction could not be broadcast.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNotConfirmed:
		return "not_confirmed"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Result is the outcome of Manager.Transact.
type Result struct {
	Outcome Outcome
	TxHash  common.Hash
	Receipt *types.Receipt
	Err     error
}

// OK reports whether the transaction went through.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Reverted reports whether a receipt was obtained and shows an execution failure.
func (r Result) Reverted() bool {
	return r.Receipt != nil && r.Receipt.Status == types.ReceiptStatusFailed
}
