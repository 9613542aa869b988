package bundle

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/kingrea/agentpack/internal/errors"
)

// Severity classifies a validation issue.
type Severity string

const (
	// Blocking issues make a bundle invalid.
	Blocking Severity = "blocking"
	// Advisory issues are reported only.
	Advisory Severity = "advisory"
)

// ParseSeverity accepts "blocking"/"advisory" and the aliases "error"/"warning".
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "blocking", "error":
		return Blocking, nil
	case "advisory", "warning", "warn":
		return Advisory, nil
	}
	return "", fmt.Errorf("bundle: unknown severity %q", raw)
}

// IssueKind names the check that produced an issue.
type IssueKind string

const (
	IssueBundleSize         IssueKind = "bundle-size"
	IssueSectionSize        IssueKind = "section-size"
	IssueDelimiterCollision IssueKind = "delimiter-collision"
)

// Issue is one validation finding.
type Issue struct {
	Kind     IssueKind
	Severity Severity
	// Section is empty for bundle-wide issues.
	Section string
	Size    int
	Limit   int
	Message string
}

// Thresholds are measured in characters. A zero limit disables the check.
type Thresholds struct {
	MaxBundleSize   int
	MaxSectionSize  int
	BundleSeverity  Severity
	SectionSeverity Severity
}

// DefaultThresholds returns disabled limits with the default severities.
func DefaultThresholds() Thresholds {
	return Thresholds{BundleSeverity: Blocking, SectionSeverity: Advisory}
}

// Result is the outcome of Validate.
type Result struct {
	Target    string
	Valid     bool
	TotalSize int
	Issues    []Issue
}

// Blocking returns the blocking issues.
func (r Result) Blocking() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == Blocking {
			out = append(out, issue)
		}
	}
	return out
}

// Err returns a SizeLimitError for the first blocking size issue, or an
// error describing the first other blocking issue. It is nil for valid
// results.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	for _, issue := range r.Blocking() {
		switch issue.Kind {
		case IssueBundleSize, IssueSectionSize:
			return apperrors.NewSizeLimitError(r.Target, issue.Size, issue.Limit)
		default:
			return fmt.Errorf("bundle: %s: %s", r.Target, issue.Message)
		}
	}
	return nil
}

// Validate measures b against th. It never modifies b.
func Validate(b *Bundle, th Thresholds) Result {
	if th.BundleSeverity == "" {
		th.BundleSeverity = Blocking
	}
	if th.SectionSeverity == "" {
		th.SectionSeverity = Advisory
	}
	result := Result{Target: b.Metadata.Target(), TotalSize: utf8.RuneCountInString(b.Render())}
	if th.MaxBundleSize > 0 && result.TotalSize > th.MaxBundleSize {
		result.Issues = append(result.Issues, Issue{
			Kind:     IssueBundleSize,
			Severity: th.BundleSeverity,
			Size:     result.TotalSize,
			Limit:    th.MaxBundleSize,
			Message:  fmt.Sprintf("bundle is %d characters, limit %d", result.TotalSize, th.MaxBundleSize),
		})
	}
	for _, s := range b.Sections {
		if s.Kind == KindPreamble {
			continue
		}
		size := utf8.RuneCountInString(s.Content)
		if th.MaxSectionSize > 0 && size > th.MaxSectionSize {
			result.Issues = append(result.Issues, Issue{
				Kind:     IssueSectionSize,
				Severity: th.SectionSeverity,
				Section:  s.Identifier,
				Size:     size,
				Limit:    th.MaxSectionSize,
				Message:  fmt.Sprintf("section %s is %d characters, limit %d", s.Identifier, size, th.MaxSectionSize),
			})
		}
		if line, ok := delimiterLine(s.Content); ok {
			result.Issues = append(result.Issues, Issue{
				Kind:     IssueDelimiterCollision,
				Severity: Advisory,
				Section:  s.Identifier,
				Message:  fmt.Sprintf("section %s contains a delimiter-like line %q", s.Identifier, line),
			})
		}
	}
	result.Valid = len(result.Blocking()) == 0
	return result
}

func delimiterLine(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, delimiterFill+" START: ") || strings.HasPrefix(trimmed, delimiterFill+" END: ") {
			return trimmed, true
		}
	}
	return "", false
}
