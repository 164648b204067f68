package monitor

import (
	"regexp"
	"strings"
)

// AbuseDetector flags snippet source and program output that suggest the
// service is being used as an attack host or a mining mule rather than a
// playground. Findings are observational only: the run proceeds unchanged,
// and the rlimit hardening bounds whatever the program actually does. The
// patterns feed logs and metrics so operators can spot abuse early.
type AbuseDetector struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious source construct to match.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
}

// Severity levels for detected findings.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Finding is one matched suspicious pattern.
type Finding struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

// NewAbuseDetector creates a detector with the default pattern set.
func NewAbuseDetector() *AbuseDetector {
	return &AbuseDetector{
		patterns: defaultPatterns(),
	}
}

// ScanSource checks submitted source line by line for suspicious constructs.
func (d *AbuseDetector) ScanSource(source string) []Finding {
	var findings []Finding

	for i, line := range strings.Split(source, "\n") {
		for _, p := range d.patterns {
			if p.Regex.MatchString(line) {
				findings = append(findings, Finding{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				})
			}
		}
	}

	return findings
}

// ScanOutput checks captured program output for signs the snippet reached
// things it has no business reaching.
func (d *AbuseDetector) ScanOutput(output string) []Finding {
	outputPatterns := []struct {
		name   string
		substr string
		sev    Severity
	}{
		{"passwd_dump", "root:x:0:0", SeverityCritical},
		{"private_key_dump", "PRIVATE KEY-----", SeverityCritical},
		{"kernel_leak", "Linux version", SeverityHigh},
		{"env_dump", "AWS_SECRET_ACCESS_KEY", SeverityCritical},
	}

	var findings []Finding
	for _, p := range outputPatterns {
		if strings.Contains(output, p.substr) {
			findings = append(findings, Finding{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "suspicious content in program output",
			})
		}
	}

	return findings
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "process_spawn",
			Description: "Spawning subprocesses from the snippet",
			Regex:       regexp.MustCompile(`\b(system|popen|exec[lv][pe]?|posix_spawn|fork|vfork)\s*\(`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "ptrace_attempt",
			Description: "Using ptrace for debugging or injection",
			Regex:       regexp.MustCompile(`\bptrace\s*\(|process_vm_(readv|writev)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "raw_network",
			Description: "Opening network sockets from the snippet",
			Regex:       regexp.MustCompile(`#\s*include\s*<(sys/socket\.h|netinet/|arpa/inet\.h|curl/)`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "metadata_service",
			Description: "Reaching for a cloud metadata service",
			Regex:       regexp.MustCompile(`169\.254\.169\.254|metadata\.google|metadata\.aws`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "sensitive_path",
			Description: "Touching credential or process-introspection paths",
			Regex:       regexp.MustCompile(`/etc/(passwd|shadow)|/proc/self/|\.ssh/`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "inline_asm",
			Description: "Inline assembly in submitted source",
			Regex:       regexp.MustCompile(`\b__asm__\b|\basm\s+volatile\b`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "crypto_miner",
			Description: "Cryptocurrency mining strings",
			Regex:       regexp.MustCompile(`(?i)(stratum\+tcp|xmrig|cryptonight|hashrate)`),
			Severity:    SeverityMedium,
		},
	}
}
