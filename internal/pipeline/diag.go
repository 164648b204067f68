package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// maxParsedDiagnostics caps how many structured entries are extracted from a
// compiler run. The verbatim diagnostic text is carried separately and is not
// limited by this.
const maxParsedDiagnostics = 50

// Diagnostic is one structured entry parsed from the compiler's stderr.
// The file path is deliberately dropped: it points into the per-run
// workspace and means nothing to the caller.
type Diagnostic struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"` // error, warning, note
	Message  string `json:"message"`
}

// gccDiagLine matches "<path>:<line>:<col>: <severity>: <message>" as emitted
// by g++ and clang++. Lines that don't match (carets, source excerpts,
// "In function ..." context) are skipped.
var gccDiagLine = regexp.MustCompile(`^([^:\s][^:]*):(\d+):(\d+):\s+(fatal error|error|warning|note):\s+(.*)$`)

// ParseDiagnostics extracts up to max structured diagnostics from raw
// compiler stderr. It never fails; unparseable input yields nil.
func ParseDiagnostics(stderr string, max int) []Diagnostic {
	if stderr == "" || max <= 0 {
		return nil
	}

	var out []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		m := gccDiagLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		lineNo, _ := strconv.Atoi(m[2])
		colNo, _ := strconv.Atoi(m[3])
		severity := m[4]
		if severity == "fatal error" {
			severity = "error"
		}

		out = append(out, Diagnostic{
			Line:     lineNo,
			Column:   colNo,
			Severity: severity,
			Message:  m[5],
		})
		if len(out) >= max {
			break
		}
	}
	return out
}
