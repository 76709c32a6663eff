package policy

import (
	"fmt"
	"strings"
)

// DiagnosticKind classifies why a section failed validation.
type DiagnosticKind string

const (
	KindUnknownKey      DiagnosticKind = "unknown_key"
	KindMissingKeys     DiagnosticKind = "missing_keys"
	KindInvalidValue    DiagnosticKind = "invalid_value"
	KindDuplicateServer DiagnosticKind = "duplicate_server"
	KindOrphanKeys      DiagnosticKind = "orphan_keys"
	KindSyntax          DiagnosticKind = "syntax"
)

// Diagnostic describes the first problem found in a section.
type Diagnostic struct {
	Section string
	Kind    DiagnosticKind
	Keys    []string
	Value   string
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case KindUnknownKey:
		return fmt.Sprintf("Unknown key: %s in section %s", strings.Join(d.Keys, ", "), d.Section)
	case KindMissingKeys:
		return fmt.Sprintf("Missing keys: %s in section %s", strings.Join(d.Keys, ", "), d.Section)
	case KindInvalidValue:
		return fmt.Sprintf("Invalid value %q for %s in section %s", d.Value, strings.Join(d.Keys, ", "), d.Section)
	case KindDuplicateServer:
		return fmt.Sprintf("Duplicate serverid %s in section %s (already used by %s)", d.Value, d.Section, strings.Join(d.Keys, ", "))
	case KindOrphanKeys:
		return fmt.Sprintf("Keys outside of any section: %s", strings.Join(d.Keys, ", "))
	default:
		return fmt.Sprintf("Unreadable config: %s", d.Value)
	}
}

// ValidationError is returned when the policy file must not be used.
type ValidationError struct {
	Diagnostic Diagnostic
}

func (e *ValidationError) Error() string {
	return "invalid server config: " + e.Diagnostic.String()
}

// SectionResult is the outcome for one section. Diagnostic is nil on success.
type SectionResult struct {
	Section    string
	Diagnostic *Diagnostic
}

// OK reports whether the section validated.
func (r SectionResult) OK() bool { return r.Diagnostic == nil }

// Report collects per-section results in file order, up to and including
// the first failure.
type Report struct {
	Results []SectionResult
}

// Lines renders the report the way the validate command prints it.
func (r *Report) Lines() []string {
	if r == nil {
		return nil
	}
	lines := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.OK() {
			lines = append(lines, res.Section+" config is valid!")
			continue
		}
		lines = append(lines, res.Diagnostic.String())
	}
	return lines
}

func (r *Report) fail(d Diagnostic) error {
	r.Results = append(r.Results, SectionResult{Section: d.Section, Diagnostic: &d})
	return &ValidationError{Diagnostic: d}
}
