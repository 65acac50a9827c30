package report

// PoliceSimilarityThreshold is the minimum share of the police findings an auditor
// report must contain to be judged correct.
const PoliceSimilarityThreshold = 0.6

// Finding is a vulnerability reduced to its type and first line.
type Finding struct {
	Type      string
	StartLine int
}

// VulnerabilitySet is the set of findings across every analyzer of a report.
type VulnerabilitySet map[Finding]struct{}

// NewVulnerabilitySet collects the findings of r.
func NewVulnerabilitySet(r *Report) VulnerabilitySet {
	set := make(VulnerabilitySet)
	if r == nil {
		return set
	}
	for _, ar := range r.AnalyzersReports {
		for _, v := range ar.PotentialVulnerabilities {
			for _, inst := range v.Instances {
				set[Finding{Type: v.Type, StartLine: inst.StartLine}] = struct{}{}
			}
		}
	}
	return set
}

// Intersect returns the number of findings present in both sets.
func (s VulnerabilitySet) Intersect(other VulnerabilitySet) int {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for f := range small {
		if _, ok := large[f]; ok {
			n++
		}
	}
	return n
}

// Similarity returns |s ∩ other| / |s|. An empty s is fully covered by anything.
func (s VulnerabilitySet) Similarity(other VulnerabilitySet) float64 {
	if len(s) == 0 {
		return 1
	}
	return float64(s.Intersect(other)) / float64(len(s))
}

// Verdict is the result of comparing an auditor report with a police report.
type Verdict struct {
	Correct    bool
	Similarity float64
	Reason     string
}

// VerifyAgainst decides whether the auditor's compressed report agrees with the
// police report closely enough to be accepted.
func (c *Codec) VerifyAgainst(police *Report, auditorCompressed []byte) Verdict {
	auditor, err := c.DecodeBytes(auditorCompressed)
	if err != nil {
		return Verdict{Reason: "auditor report does not decode: " + err.Error()}
	}
	return Compare(police, auditor)
}

// Compare applies the police rules to two decoded reports.
func Compare(police, auditor *Report) Verdict {
	if normalizeHash(police.ContractHash) != normalizeHash(auditor.ContractHash) {
		return Verdict{Reason: "contract hash differs"}
	}
	if police.Status != auditor.Status {
		return Verdict{Reason: "status differs"}
	}
	policeSet := NewVulnerabilitySet(police)
	sim := policeSet.Similarity(NewVulnerabilitySet(auditor))
	if len(policeSet) == 0 {
		return Verdict{Correct: true, Similarity: sim, Reason: "no police findings"}
	}
	if sim >= PoliceSimilarityThreshold {
		return Verdict{Correct: true, Similarity: sim}
	}
	return Verdict{Similarity: sim, Reason: "too few police findings reported"}
}
