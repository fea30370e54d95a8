// internal/output/markdown.go
package output

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxListedWarnings bounds the warnings listed in markdown.
const MaxListedWarnings = 20

// MarkdownFormatter outputs a Summary as human-readable Markdown.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format renders the Summary as Markdown.
func (f *MarkdownFormatter) Format(s *Summary) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# worldforge %s\n\n", s.Command)
	if s.Snapshot != "" {
		fmt.Fprintf(&b, "Snapshot: `%s`\n\n", s.Snapshot)
	}

	if s.Error != "" {
		b.WriteString("## Error\n\n")
		if s.ErrorKind != "" {
			fmt.Fprintf(&b, "**%s**: ", s.ErrorKind)
		}
		b.WriteString(s.Error)
		b.WriteString("\n\n")
	}

	if len(s.Counts) > 0 {
		b.WriteString("## Entities\n\n| Category | Count |\n|---|---|\n")
		keys := make([]string, 0, len(s.Counts))
		for k := range s.Counts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %d |\n", k, s.Counts[k])
		}
		b.WriteString("\n")
	}

	if s.Verdict != "" {
		b.WriteString("## Cross-validation\n\n")
		fmt.Fprintf(&b, "- Verdict: **%s**\n", s.Verdict)
		fmt.Fprintf(&b, "- Agreement: %.2f\n", s.Agreement)
		fmt.Fprintf(&b, "- Reinforced findings: %d\n", s.Reinforced)
		if s.LLM != nil {
			fmt.Fprintf(&b, "- Model calls: %d (cache hits %d)\n", s.LLM.Calls, s.LLM.Hits)
		}
		b.WriteString("\n")
	}

	if len(s.Stages) > 0 {
		b.WriteString("## Stages\n\n")
		for i, st := range s.Stages {
			fmt.Fprintf(&b, "%d. **%s** (%s)", i+1, st.Name, st.Status)
			if st.Written > 0 || st.Skipped > 0 {
				fmt.Fprintf(&b, " written %d, unchanged %d", st.Written, st.Skipped)
			}
			if st.Detail != "" {
				fmt.Fprintf(&b, ": %s", st.Detail)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings (%d)\n\n", len(s.Warnings))
		for _, w := range s.Warnings[:min(len(s.Warnings), MaxListedWarnings)] {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		if extra := len(s.Warnings) - MaxListedWarnings; extra > 0 {
			fmt.Fprintf(&b, "- ... and %d more\n", extra)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	if s.Manifest != "" {
		fmt.Fprintf(&b, "Manifest: `%s`\n\n", s.Manifest)
	}
	status := "complete"
	switch {
	case s.Error != "":
		status = "failed"
	case s.Partial:
		status = "partial"
	}
	d := time.Duration(s.DurationMs) * time.Millisecond
	fmt.Fprintf(&b, "*Run %s in %s*\n", status, d.Round(100*time.Millisecond))

	return []byte(b.String()), nil
}
