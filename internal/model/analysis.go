package model

import "strings"

// Priority is the customer priority extracted from a thread. The three
// values mirror the tracker's customer priority labels.
type Priority string

const (
	PriorityNiceToHave   Priority = "nice_to_have"
	PriorityMustHaveSoon Priority = "must_have_soon"
	PriorityMustHaveNow  Priority = "must_have_now"
)

// ParsePriority maps a raw string onto the priority enum. Anything outside
// the three known values reports false, which callers treat as "absent".
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.TrimSpace(s)) {
	case PriorityNiceToHave:
		return PriorityNiceToHave, true
	case PriorityMustHaveSoon:
		return PriorityMustHaveSoon, true
	case PriorityMustHaveNow:
		return PriorityMustHaveNow, true
	}
	return "", false
}

// Label returns the human-readable form shown in modals.
func (p Priority) Label() string {
	return strings.ReplaceAll(string(p), "_", " ")
}

// AnalysisResult is the structured extraction produced by the LLM step.
// Any field may be empty; absence means "use fallback", never failure.
// The JSON tags match the output schema the model is prompted with.
type AnalysisResult struct {
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description,omitempty"`
	Preview          string   `json:"preview,omitempty"`
	CustomerPriority Priority `json:"customerPriority,omitempty"`
	CustomerName     string   `json:"customerName,omitempty"`
}
