// Package llm is the pipeline's only path to a remote text model. Callers
// build a Request, and Cached turns it into a validated, cached response:
// identical requests never reach the network twice.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Request is one structured completion request. Every field takes part in
// the request hash.
type Request struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	System      string  `json:"system"`
	User        string  `json:"user"`
	// SchemaName and Schema request structured JSON output.
	SchemaName string `json:"schema_name,omitempty"`
	Schema     any    `json:"schema,omitempty"`
}

// Hash is the hex sha256 of the canonical JSON encoding of r.
func (r Request) Hash() string {
	b, err := json.Marshal(r)
	if err != nil {
		// Schema is produced by jsonschema and always marshals; fall back
		// to the textual fields if a caller passes something exotic.
		b = []byte(r.Model + "\x00" + r.System + "\x00" + r.User + "\x00" + r.SchemaName)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Completer sends a request and returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
