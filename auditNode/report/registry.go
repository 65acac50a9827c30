package report

import (
	"fmt"
)

// statusRegistry is fixed: the 2-bit status code is an index into it.
var statusRegistry = []Status{StatusSuccess, StatusError, StatusTimeout}

// Registry maps analyzer names and vulnerability types to their compressed codes.
// Entry order is part of the on-chain format and must match every other consumer.
type Registry struct {
	analyzers     []string
	analyzerCodes map[string]uint64
	vulnTypes     []string
	vulnTypeCodes map[string]uint64
}

// NewRegistry builds a registry; analyzers must fit 5 bits and vulnerability types 8 bits.
func NewRegistry(analyzers, vulnerabilityTypes []string) (*Registry, error) {
	analyzerCodes, err := index("analyzer", analyzers, analyzerBits)
	if err != nil {
		return nil, err
	}
	vulnCodes, err := index("vulnerability type", vulnerabilityTypes, vulnTypeBits)
	if err != nil {
		return nil, err
	}
	return &Registry{
		analyzers:     append([]string(nil), analyzers...),
		analyzerCodes: analyzerCodes,
		vulnTypes:     append([]string(nil), vulnerabilityTypes...),
		vulnTypeCodes: vulnCodes,
	}, nil
}

func index(kind string, names []string, width uint) (map[string]uint64, error) {
	if len(names) > 1<<width {
		return nil, fmt.Errorf("%d %s entries do not fit %d bits", len(names), kind, width)
	}
	codes := make(map[string]uint64, len(names))
	for i, n := range names {
		if _, dup := codes[n]; dup {
			return nil, fmt.Errorf("duplicate %s %q", kind, n)
		}
		codes[n] = uint64(i)
	}
	return codes, nil
}

func (r *Registry) analyzerCode(name string) (uint64, bool) {
	c, ok := r.analyzerCodes[name]
	return c, ok
}

func (r *Registry) analyzerName(code uint64) (string, bool) {
	if code >= uint64(len(r.analyzers)) {
		return "", false
	}
	return r.analyzers[code], true
}

func (r *Registry) vulnTypeCode(name string) (uint64, bool) {
	c, ok := r.vulnTypeCodes[name]
	return c, ok
}

func (r *Registry) vulnTypeName(code uint64) (string, bool) {
	if code >= uint64(len(r.vulnTypes)) {
		return "", false
	}
	return r.vulnTypes[code], true
}

func statusCode(s Status) (uint64, bool) {
	for i, st := range statusRegistry {
		if st == s {
			return uint64(i), true
		}
	}
	return 0, false
}

func statusName(code uint64) (Status, bool) {
	if code >= uint64(len(statusRegistry)) {
		return "", false
	}
	return statusRegistry[code], true
}
