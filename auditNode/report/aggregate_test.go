package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportsWithStatuses(statuses ...Status) []AnalyzerReport {
	out := make([]AnalyzerReport, len(statuses))
	for i, s := range statuses {
		out[i] = AnalyzerReport{Analyzer: AnalyzerInfo{Name: testAnalyzers[i]}, Status: s}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all timeout", []Status{StatusTimeout, StatusTimeout, StatusTimeout}, StatusError},
		{"timeout tolerated", []Status{StatusTimeout, StatusSuccess, StatusSuccess}, StatusSuccess},
		{"error wins", []Status{StatusTimeout, StatusError, StatusSuccess}, StatusError},
		{"all success", []Status{StatusSuccess, StatusSuccess, StatusSuccess}, StatusSuccess},
		{"no analyzers", nil, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, status := Aggregate(reportsWithStatuses(tt.statuses...))
			assert.Equal(t, tt.want, status)
			if tt.want == StatusSuccess {
				assert.Equal(t, AuditStateSuccess, state)
			} else {
				assert.Equal(t, AuditStateError, state)
			}
		})
	}
}

func TestPatchMissing(t *testing.T) {
	reports := []AnalyzerReport{
		{Analyzer: AnalyzerInfo{Name: "mythril"}, Status: StatusSuccess},
		{Analyzer: AnalyzerInfo{Name: "securify"}},
		{Status: StatusSuccess},
	}

	assert.Equal(t, 2, PatchMissing(reports, []string{"mythril", "securify", "oyente"}))
	assert.Equal(t, StatusSuccess, reports[0].Status)
	assert.Equal(t, StatusError, reports[1].Status)
	assert.Equal(t, StatusError, reports[2].Status)
	assert.Equal(t, "oyente", reports[2].Analyzer.Name)
	assert.NotEmpty(t, reports[1].Errors)

	_, status := Aggregate(reports)
	assert.Equal(t, StatusError, status)
}

func TestPatchMissingKeepsReportEncodable(t *testing.T) {
	reg, err := NewRegistry([]string{"oyente", "mythril"}, []string{"reentrancy"})
	require.NoError(t, err)

	reports := []AnalyzerReport{
		{Analyzer: AnalyzerInfo{Name: "oyente"}, Status: StatusSuccess},
		{Status: StatusSuccess},
	}
	PatchMissing(reports, []string{"oyente", "mythril"})

	state, status := Aggregate(reports)
	_, err = NewCodec(reg).CompressBytes(&Report{
		ContractHash:     strings.Repeat("ab", 32),
		Version:          "2.0.1",
		AuditState:       state,
		Status:           status,
		AnalyzersReports: reports,
	})
	require.NoError(t, err)
	assert.Equal(t, AuditStateError, state)
}
