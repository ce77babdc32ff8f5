// Package transport defines the request and response shapes of the sync
// HTTP surface.
package transport

import "strings"

// SyncRequest carries the query parameters of a sync start request. The
// original callers send everything in the query string, so binding uses form
// tags.
type SyncRequest struct {
	Days     int    `form:"days" validate:"omitempty,min=1,max=31"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	Sources  string `form:"sources"`
	// Async defaults to true; "false" runs the reconciliation inline and
	// returns its result instead of a job admission.
	Async string `form:"async" validate:"omitempty,oneof=true false"`
	Force bool   `form:"force"`
	// MaxMS overrides the watchdog timeout, in milliseconds.
	MaxMS int `form:"max_ms" validate:"omitempty,min=1"`
}

// SourceTags splits the comma-separated source selection.
func (r SyncRequest) SourceTags() []string {
	if strings.TrimSpace(r.Sources) == "" {
		return nil
	}
	parts := strings.Split(r.Sources, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// IsAsync reports whether the request wants the non-blocking job path.
func (r SyncRequest) IsAsync() bool {
	return r.Async != "false"
}
