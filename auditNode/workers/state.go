package workers

import (
	"math/big"
	"sync/atomic"
)

// State is the shared mutable state of the pipeline. The head is written by Poll and the
// gas price by ComputeGasPrice; every other worker only reads.
type State struct {
	head     atomic.Uint64
	gasPrice atomic.Pointer[big.Int]
}

// NewState creates the shared state with an initial gas price, which may be nil.
func NewState(initialGasPrice *big.Int) *State {
	s := &State{}
	if initialGasPrice != nil {
		s.gasPrice.Store(new(big.Int).Set(initialGasPrice))
	}
	return s
}

// Head returns the latest block observed by Poll, zero before the first observation.
func (s *State) Head() uint64 { return s.head.Load() }

// SetHead records a newly observed block. Older blocks are ignored.
func (s *State) SetHead(block uint64) {
	for {
		cur := s.head.Load()
		if block <= cur || s.head.CompareAndSwap(cur, block) {
			return
		}
	}
}

// GasPrice returns the current gas price, or nil if none was computed yet.
// It has the shape of txmanager.GasPriceFunc.
func (s *State) GasPrice() *big.Int {
	p := s.gasPrice.Load()
	if p == nil {
		return nil
	}
	return new(big.Int).Set(p)
}

// SetGasPrice replaces the gas price.
func (s *State) SetGasPrice(p *big.Int) {
	if p == nil {
		return
	}
	s.gasPrice.Store(new(big.Int).Set(p))
}
