// internal/output/formatter.go
package output

// Summary is the single report printed when a run exits.
type Summary struct {
	Command    string         `json:"command"`
	Snapshot   string         `json:"snapshot"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Counts     map[string]int `json:"counts"`
	Verdict    string         `json:"verdict,omitempty"`
	Agreement  float64        `json:"agreement_rate"`
	Reinforced int            `json:"reinforced"`
	Manifest   string         `json:"manifest,omitempty"`
	Partial    bool           `json:"partial"`
	Stages     []StageLog     `json:"stages,omitempty"`
	LLM        *LLMStats      `json:"llm,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// StageLog records one pipeline stage.
type StageLog struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Written int    `json:"written,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
}

// Stage statuses.
const (
	StageOK      = "ok"
	StagePartial = "partial"
	StageSkipped = "skipped"
	StageFailed  = "failed"
)

// LLMStats aggregates model traffic of a run.
type LLMStats struct {
	Calls  int `json:"calls"`
	Hits   int `json:"cache_hits"`
	Misses int `json:"cache_misses"`
}

// Formatter formats a Summary into output bytes.
type Formatter interface {
	Format(s *Summary) ([]byte, error)
}

// ForName returns the formatter registered under name. Unknown names fall
// back to markdown.
func ForName(name string) Formatter {
	switch name {
	case "json":
		return NewJSONFormatter()
	default:
		return NewMarkdownFormatter()
	}
}
