package report

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
)

// Field widths of the compressed layout, in bits.
const (
	majorBits        = 4
	minorBits        = 4
	patchBits        = 6
	auditStateBits   = 1
	statusFlagBits   = 1
	hashBits         = 256
	analyzerBits     = 5
	statusBits       = 2
	experimentalBits = 1
	countBits        = 16
	vulnTypeBits     = 8
	lineFlagBits     = 1
	startLineBits    = 15
	lineDeltaBits    = 8

	blockHeaderBits = analyzerBits + statusBits + experimentalBits + countBits
	contractHashLen = hashBits / 4
)

// ErrFormat is the cause of every encoding and decoding failure.
var ErrFormat = errors.New("report format error")

func formatError(format string, args ...any) error {
	return nodeerrors.NewNodeError(nodeerrors.ErrCodeFormat, "report_codec", fmt.Sprintf(format, args...), ErrFormat)
}

// Codec compresses reports to the on-chain layout and back.
type Codec struct {
	registry *Registry
}

// NewCodec creates a codec over the given registry.
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

// Compress encodes r into its compressed form as lowercase hex without a 0x prefix.
func (c *Codec) Compress(r *Report) (string, error) {
	b, err := c.CompressBytes(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CompressBytes encodes r into its compressed form.
func (c *Codec) CompressBytes(r *Report) ([]byte, error) {
	if r == nil {
		return nil, formatError("report is nil")
	}
	major, minor, patch, err := parseVersion(r.Version)
	if err != nil {
		return nil, err
	}

	w := &bitWriter{}
	w.write(major, majorBits)
	w.write(minor, minorBits)
	w.write(patch, patchBits)

	switch r.AuditState {
	case AuditStateSuccess:
		w.write(1, auditStateBits)
	case AuditStateError:
		w.write(0, auditStateBits)
	default:
		return nil, formatError("audit state %d is neither success nor error", r.AuditState)
	}
	switch r.Status {
	case StatusSuccess:
		w.write(1, statusFlagBits)
	case StatusError:
		w.write(0, statusFlagBits)
	default:
		return nil, formatError("report status %q is neither success nor error", r.Status)
	}

	hash, err := hex.DecodeString(normalizeHash(r.ContractHash))
	if err != nil || len(hash) != hashBits/8 {
		return nil, formatError("contract hash must be %d hex characters", contractHashLen)
	}
	for _, b := range hash {
		w.write(uint64(b), 8)
	}

	for i := range r.AnalyzersReports {
		if err := c.writeAnalyzerReport(w, &r.AnalyzersReports[i]); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func (c *Codec) writeAnalyzerReport(w *bitWriter, ar *AnalyzerReport) error {
	code, ok := c.registry.analyzerCode(ar.Analyzer.Name)
	if !ok {
		return formatError("analyzer %q is not registered", ar.Analyzer.Name)
	}
	status, ok := statusCode(ar.Status)
	if !ok {
		return formatError("analyzer %s status %q is not registered", ar.Analyzer.Name, ar.Status)
	}

	records := flattenRecords(ar.PotentialVulnerabilities)
	if len(records) >= 1<<countBits {
		return formatError("analyzer %s reports %d vulnerabilities, more than %d bits can count",
			ar.Analyzer.Name, len(records), countBits)
	}

	w.write(code, analyzerBits)
	w.write(status, statusBits)
	if ar.Analyzer.Experimental {
		w.write(1, experimentalBits)
	} else {
		w.write(0, experimentalBits)
	}
	w.write(uint64(len(records)), countBits)

	for _, rec := range records {
		if err := c.writeRecord(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writeRecord(w *bitWriter, rec record) error {
	typeCode, ok := c.registry.vulnTypeCode(rec.vulnType)
	if !ok {
		return formatError("vulnerability type %q is not registered", rec.vulnType)
	}
	if rec.startLine < 0 || rec.startLine >= 1<<startLineBits {
		return formatError("start line %d does not fit %d bits", rec.startLine, startLineBits)
	}
	delta := rec.endLine - rec.startLine
	if delta < 0 {
		return formatError("end line %d precedes start line %d", rec.endLine, rec.startLine)
	}
	if delta >= 1<<lineDeltaBits {
		return formatError("line span %d does not fit %d bits", delta, lineDeltaBits)
	}

	w.write(typeCode, vulnTypeBits)
	if delta == 0 {
		w.write(0, lineFlagBits)
		w.write(uint64(rec.startLine), startLineBits)
		return nil
	}
	w.write(1, lineFlagBits)
	w.write(uint64(rec.startLine), startLineBits)
	w.write(uint64(delta), lineDeltaBits)
	return nil
}

// Decode parses a hex compressed report, with or without a 0x prefix.
func (c *Codec) Decode(compressed string) (*Report, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(compressed), "0x"))
	if err != nil {
		return nil, formatError("compressed report is not hex: %v", err)
	}
	return c.DecodeBytes(raw)
}

// DecodeBytes parses a compressed report.
func (c *Codec) DecodeBytes(raw []byte) (*Report, error) {
	r := &bitReader{buf: raw}
	if r.remaining() < majorBits+minorBits+patchBits+auditStateBits+statusFlagBits+hashBits {
		return nil, formatError("compressed report is %d bits, shorter than its header", r.remaining())
	}

	major, _ := r.read(majorBits)
	minor, _ := r.read(minorBits)
	patch, _ := r.read(patchBits)
	stateBit, _ := r.read(auditStateBits)
	statusBit, _ := r.read(statusFlagBits)

	out := &Report{
		Version:          fmt.Sprintf("%d.%d.%d", major, minor, patch),
		AuditState:       AuditStateError,
		Status:           StatusError,
		AnalyzersReports: []AnalyzerReport{},
	}
	if stateBit == 1 {
		out.AuditState = AuditStateSuccess
	}
	if statusBit == 1 {
		out.Status = StatusSuccess
	}

	hash := make([]byte, hashBits/8)
	for i := range hash {
		b, _ := r.read(8)
		hash[i] = byte(b)
	}
	out.ContractHash = hex.EncodeToString(hash)

	for r.remaining() >= blockHeaderBits {
		ar, err := c.readAnalyzerReport(r)
		if err != nil {
			return nil, err
		}
		out.AnalyzersReports = append(out.AnalyzersReports, *ar)
	}

	// Whatever is left is byte padding from the writer.
	if r.remaining() >= 8 {
		return nil, formatError("%d trailing bits do not form an analyzer block", r.remaining())
	}
	if pad, _ := r.read(uint(r.remaining())); pad != 0 {
		return nil, formatError("non-zero padding bits")
	}
	return out, nil
}

func (c *Codec) readAnalyzerReport(r *bitReader) (*AnalyzerReport, error) {
	code, _ := r.read(analyzerBits)
	status, _ := r.read(statusBits)
	experimental, _ := r.read(experimentalBits)
	count, _ := r.read(countBits)

	name, ok := c.registry.analyzerName(code)
	if !ok {
		return nil, formatError("analyzer code %d is not registered", code)
	}
	st, ok := statusName(status)
	if !ok {
		return nil, formatError("status code %d is not registered", status)
	}

	records := make([]record, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := c.readRecord(r)
		if err != nil {
			return nil, errors.Wrapf(err, "analyzer %s vulnerability %d", name, i)
		}
		records = append(records, rec)
	}

	return &AnalyzerReport{
		Analyzer:                 AnalyzerInfo{Name: name, Experimental: experimental == 1},
		Status:                   st,
		PotentialVulnerabilities: groupRecords(records),
	}, nil
}

func (c *Codec) readRecord(r *bitReader) (record, error) {
	typeCode, ok1 := r.read(vulnTypeBits)
	spans, ok2 := r.read(lineFlagBits)
	start, ok3 := r.read(startLineBits)
	if !ok1 || !ok2 || !ok3 {
		return record{}, formatError("truncated vulnerability record")
	}
	end := start
	if spans == 1 {
		delta, ok := r.read(lineDeltaBits)
		if !ok {
			return record{}, formatError("truncated vulnerability record")
		}
		end = start + delta
	}
	vulnType, ok := c.registry.vulnTypeName(typeCode)
	if !ok {
		return record{}, formatError("vulnerability type code %d is not registered", typeCode)
	}
	return record{vulnType: vulnType, startLine: int(start), endLine: int(end)}, nil
}

func parseVersion(version string) (major, minor, patch uint64, err error) {
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return 0, 0, 0, formatError("version %q is not major.minor.patch", version)
	}
	widths := []uint{majorBits, minorBits, patchBits}
	values := make([]uint64, 3)
	for i, p := range parts {
		v, perr := strconv.ParseUint(p, 10, 64)
		if perr != nil {
			return 0, 0, 0, formatError("version %q has a non-numeric component", version)
		}
		if v >= 1<<widths[i] {
			return 0, 0, 0, formatError("version component %d of %q does not fit %d bits", v, version, widths[i])
		}
		values[i] = v
	}
	return values[0], values[1], values[2], nil
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "0x"))
}
