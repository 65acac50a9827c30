package report

// PatchMissing marks every analyzer report lacking a status or analyzer name as an error.
// names[i] is the configured analyzer that produced reports[i]; a missing name is taken
// from it so the report still fits the analyzer registry.
// It returns the number of reports patched; a non-zero count indicates a bug upstream.
func PatchMissing(reports []AnalyzerReport, names []string) int {
	patched := 0
	for i := range reports {
		ar := &reports[i]
		if ar.Status != "" && ar.Analyzer.Name != "" {
			continue
		}
		if ar.Analyzer.Name == "" && i < len(names) {
			ar.Analyzer.Name = names[i]
		}
		ar.Status = StatusError
		ar.Errors = append(ar.Errors, "analyzer report is missing its status or analyzer identity")
		patched++
	}
	return patched
}

// Aggregate computes the overall audit result. The audit succeeds iff at least one
// analyzer succeeded and none reported an error; timeouts alone are tolerated.
func Aggregate(reports []AnalyzerReport) (AuditState, Status) {
	successes := 0
	for _, ar := range reports {
		switch ar.Status {
		case StatusSuccess:
			successes++
		case StatusTimeout:
		default:
			return AuditStateError, StatusError
		}
	}
	if successes == 0 {
		return AuditStateError, StatusError
	}
	return AuditStateSuccess, StatusSuccess
}
