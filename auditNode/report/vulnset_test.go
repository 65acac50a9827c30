package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportWithFindings(findings ...Finding) *Report {
	r := &Report{
		ContractHash: testHash,
		Version:      "2.0.1",
		AuditState:   AuditStateSuccess,
		Status:       StatusSuccess,
		AnalyzersReports: []AnalyzerReport{
			{Analyzer: AnalyzerInfo{Name: "mythril"}, Status: StatusSuccess},
			{Analyzer: AnalyzerInfo{Name: "securify"}, Status: StatusSuccess},
		},
	}
	for i, f := range findings {
		ar := &r.AnalyzersReports[i%2]
		ar.PotentialVulnerabilities = append(ar.PotentialVulnerabilities, Vulnerability{
			Type:      f.Type,
			Instances: []Instance{{StartLine: f.StartLine, EndLine: f.StartLine + 3}},
		})
	}
	return r
}

func TestVulnerabilitySet(t *testing.T) {
	r := reportWithFindings(
		Finding{"reentrancy", 10},
		Finding{"reentrancy", 10},
		Finding{"reentrancy", 11},
		Finding{"tx_origin", 10},
	)
	set := NewVulnerabilitySet(r)
	assert.Len(t, set, 3)

	other := NewVulnerabilitySet(reportWithFindings(Finding{"reentrancy", 10}, Finding{"other", 1}))
	assert.Equal(t, 1, set.Intersect(other))
	assert.InDelta(t, 1.0/3.0, set.Similarity(other), 1e-9)
	assert.Equal(t, 1.0, VulnerabilitySet{}.Similarity(other))
}

func TestCompare(t *testing.T) {
	five := []Finding{
		{"reentrancy", 10}, {"reentrancy", 20}, {"tx_origin", 5}, {"locked_ether", 1}, {"other", 99},
	}

	t.Run("empty police set is correct", func(t *testing.T) {
		v := Compare(reportWithFindings(), reportWithFindings(five...))
		assert.True(t, v.Correct)
	})

	t.Run("identical reports are correct", func(t *testing.T) {
		v := Compare(reportWithFindings(five...), reportWithFindings(five...))
		assert.True(t, v.Correct)
		assert.Equal(t, 1.0, v.Similarity)
	})

	t.Run("exactly sixty percent is correct", func(t *testing.T) {
		v := Compare(reportWithFindings(five...), reportWithFindings(five[:3]...))
		assert.True(t, v.Correct)
	})

	t.Run("below sixty percent is incorrect", func(t *testing.T) {
		v := Compare(reportWithFindings(five...), reportWithFindings(five[:2]...))
		assert.False(t, v.Correct)
		assert.InDelta(t, 0.4, v.Similarity, 1e-9)
	})

	t.Run("hash mismatch is incorrect", func(t *testing.T) {
		auditor := reportWithFindings(five...)
		auditor.ContractHash = "cd" + testHash[2:]
		assert.False(t, Compare(reportWithFindings(five...), auditor).Correct)
	})

	t.Run("status mismatch is incorrect", func(t *testing.T) {
		auditor := reportWithFindings(five...)
		auditor.Status = StatusError
		assert.False(t, Compare(reportWithFindings(five...), auditor).Correct)
	})

	t.Run("status mismatch beats empty police set", func(t *testing.T) {
		auditor := reportWithFindings()
		auditor.Status = StatusError
		assert.False(t, Compare(reportWithFindings(), auditor).Correct)
	})
}

func TestVerifyAgainst(t *testing.T) {
	codec := newTestCodec(t)
	police := reportWithFindings(Finding{"reentrancy", 10}, Finding{"tx_origin", 4})

	compressed, err := codec.CompressBytes(police)
	require.NoError(t, err)
	assert.True(t, codec.VerifyAgainst(police, compressed).Correct)

	v := codec.VerifyAgainst(police, []byte{0x01})
	assert.False(t, v.Correct)
	assert.Contains(t, v.Reason, "does not decode")
}
