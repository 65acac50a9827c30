// Package report holds the audit report document produced by the node, the deterministic
// bit-packed encoding stored on-chain, and the comparisons run over decoded reports.
package report

// AuditState is the on-chain audit result code.
type AuditState uint8

const (
	AuditStateSuccess AuditState = 4
	AuditStateError   AuditState = 5
)

// Status is the outcome of a whole audit or of a single analyzer run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Instance is one location of a potential vulnerability.
// An EndLine of zero means the instance covers StartLine only.
type Instance struct {
	RefID     int `json:"ref_id,omitempty"`
	StartLine int `json:"start_line" validate:"gte=0"`
	EndLine   int `json:"end_line,omitempty" validate:"gte=0"`
}

// Vulnerability groups the instances of one vulnerability type.
type Vulnerability struct {
	Type        string     `json:"type" validate:"required"`
	File        string     `json:"file,omitempty"`
	Description string     `json:"description,omitempty"`
	Instances   []Instance `json:"instances" validate:"dive"`
}

// AnalyzerInfo identifies the analyzer that produced a sub-report.
type AnalyzerInfo struct {
	Name                   string            `json:"name" validate:"required"`
	Version                string            `json:"version,omitempty"`
	VulnerabilitiesChecked map[string]string `json:"vulnerabilities_checked,omitempty"`
	Command                string            `json:"command,omitempty"`
	Experimental           bool              `json:"experimental,omitempty"`
}

// AnalyzerReport is the result of running one analyzer over a contract.
type AnalyzerReport struct {
	Analyzer                 AnalyzerInfo    `json:"analyzer"`
	Status                   Status          `json:"status" validate:"required,oneof=success error timeout"`
	PotentialVulnerabilities []Vulnerability `json:"potential_vulnerabilities,omitempty" validate:"dive"`
	Errors                   []string        `json:"errors,omitempty"`
	Warnings                 []string        `json:"warnings,omitempty"`
	StartTime                int64           `json:"start_time,omitempty"`
	EndTime                  int64           `json:"end_time,omitempty"`
}

// Report is the full audit report. Only the fields covered by the compressed layout
// (version, audit state, status, contract hash and the analyzer findings) survive on-chain.
type Report struct {
	Timestamp           int64            `json:"timestamp,omitempty"`
	ContractURI         string           `json:"contract_uri,omitempty"`
	ContractHash        string           `json:"contract_hash"`
	Requestor           string           `json:"requestor,omitempty"`
	Auditor             string           `json:"auditor,omitempty"`
	RequestID           uint64           `json:"request_id,omitempty"`
	Version             string           `json:"version"`
	AuditState          AuditState       `json:"audit_state"`
	Status              Status           `json:"status"`
	AnalyzersReports    []AnalyzerReport `json:"analyzers_reports"`
	CompilationErrors   []string         `json:"compilation_errors,omitempty"`
	CompilationWarnings []string         `json:"compilation_warnings,omitempty"`
}

// endLine resolves the implicit single-line form.
func (i Instance) endLine() int {
	if i.EndLine == 0 {
		return i.StartLine
	}
	return i.EndLine
}

// Canonical returns the projection of r onto the fields the compressed layout carries,
// in the shape Decode produces: every instance has an explicit end line, identical
// (type, start, end) records within one analyzer collapse to their first occurrence,
// and consecutive records of the same type are grouped under one Vulnerability.
func (r *Report) Canonical() *Report {
	out := &Report{
		ContractHash:     normalizeHash(r.ContractHash),
		Version:          r.Version,
		AuditState:       r.AuditState,
		Status:           r.Status,
		AnalyzersReports: make([]AnalyzerReport, 0, len(r.AnalyzersReports)),
	}
	for _, ar := range r.AnalyzersReports {
		out.AnalyzersReports = append(out.AnalyzersReports, AnalyzerReport{
			Analyzer: AnalyzerInfo{
				Name:         ar.Analyzer.Name,
				Experimental: ar.Analyzer.Experimental,
			},
			Status:                   ar.Status,
			PotentialVulnerabilities: groupRecords(flattenRecords(ar.PotentialVulnerabilities)),
		})
	}
	return out
}

// record is one flattened vulnerability instance.
type record struct {
	vulnType  string
	startLine int
	endLine   int
}

func flattenRecords(vulns []Vulnerability) []record {
	var records []record
	seen := make(map[record]struct{})
	for _, v := range vulns {
		for _, inst := range v.Instances {
			rec := record{vulnType: v.Type, startLine: inst.StartLine, endLine: inst.endLine()}
			if _, dup := seen[rec]; dup {
				continue
			}
			seen[rec] = struct{}{}
			records = append(records, rec)
		}
	}
	return records
}

func groupRecords(records []record) []Vulnerability {
	var vulns []Vulnerability
	for _, rec := range records {
		inst := Instance{StartLine: rec.startLine, EndLine: rec.endLine}
		if n := len(vulns); n > 0 && vulns[n-1].Type == rec.vulnType {
			vulns[n-1].Instances = append(vulns[n-1].Instances, inst)
			continue
		}
		vulns = append(vulns, Vulnerability{Type: rec.vulnType, Instances: []Instance{inst}})
	}
	return vulns
}
