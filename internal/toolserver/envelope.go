package toolserver

import "time"

// Envelope is the common response shape every ACID pipeline phase
// (analyze/prepare/code/verify/document/manage) returns, so a caller can
// chain phases without per-phase result parsing.
type Envelope struct {
	OK         bool     `json:"ok" jsonschema:"whether the phase completed without a domain error"`
	Data       any      `json:"data,omitempty" jsonschema:"phase-specific result payload"`
	Warnings   []string `json:"warnings,omitempty" jsonschema:"non-fatal issues encountered during the phase"`
	DurationMs int64    `json:"duration_ms" jsonschema:"wall-clock time the phase took"`
	Next       string   `json:"next,omitempty" jsonschema:"hint for the next pipeline phase to call"`
}

func newEnvelope(start time.Time, data any, warnings []string, next string) Envelope {
	return Envelope{
		OK:         true,
		Data:       data,
		Warnings:   warnings,
		DurationMs: time.Since(start).Milliseconds(),
		Next:       next,
	}
}

func failEnvelope(start time.Time, err error) Envelope {
	return Envelope{
		OK:         false,
		Data:       toToolError(err),
		DurationMs: time.Since(start).Milliseconds(),
	}
}
