package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/featureforge/slack-linear-bot/internal/model"
)

// ErrMalformedResponse indicates the model's output contained no parsable
// JSON object even after prose-stripping recovery.
var ErrMalformedResponse = errors.New("no parsable JSON object in model response")

// ExtractAnalysis parses a raw model completion into an AnalysisResult.
// It first tries the whole text as JSON, then falls back to the substring
// between the first '{' and the last '}' — this recovers from explanatory
// prose around the payload and trailing commentary after a complete object.
// A parsed object with no recognizable fields is a valid, all-absent result.
func ExtractAnalysis(raw string) (*model.AnalysisResult, error) {
	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err == nil {
		return sanitize(&result), nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedResponse
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return sanitize(&result), nil
}

// sanitize normalizes whitespace and discards priority values outside the
// enum; an unknown priority is absence, not an error.
func sanitize(result *model.AnalysisResult) *model.AnalysisResult {
	result.Title = strings.TrimSpace(result.Title)
	result.Preview = strings.TrimSpace(result.Preview)
	result.CustomerName = strings.TrimSpace(result.CustomerName)

	if priority, ok := model.ParsePriority(string(result.CustomerPriority)); ok {
		result.CustomerPriority = priority
	} else {
		result.CustomerPriority = ""
	}
	return result
}
