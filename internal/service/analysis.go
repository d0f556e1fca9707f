// Package service implements the thread-to-ticket pipeline: conversation
// retrieval, LLM analysis, and ticket finalization.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/llm"
	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/internal/transcript"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
	"github.com/featureforge/slack-linear-bot/pkg/metrics"
)

var tracer = otel.Tracer("github.com/featureforge/slack-linear-bot/internal/service")

// analysisMaxTokens bounds the completion budget for one thread analysis.
// Deliberately a constant, not per-request configuration.
const analysisMaxTokens = 2000

// FailureReason categorizes why an analysis failed, driving the message the
// user sees. Each reason maps to a distinct degraded UI so operators can
// self-diagnose without log access.
type FailureReason string

const (
	ReasonAuthError         FailureReason = "auth_error"
	ReasonRateLimited       FailureReason = "rate_limited"
	ReasonOverloaded        FailureReason = "overloaded"
	ReasonTransientAPIError FailureReason = "transient_api_error"
	ReasonMalformedResponse FailureReason = "malformed_response"
)

// AnalysisError is a classified analysis failure.
type AnalysisError struct {
	Reason FailureReason
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("thread analysis failed (%s): %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// AnalysisService drives transcript building, the LLM call, and response
// extraction.
type AnalysisService struct {
	llmClient llm.Client
	logger    *logger.Logger
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(llmClient llm.Client, log *logger.Logger) *AnalysisService {
	return &AnalysisService{
		llmClient: llmClient,
		logger:    log,
	}
}

// AnalyzeThread extracts a feature-request draft from a conversation. On
// failure the returned error is always an *AnalysisError.
func (s *AnalysisService) AnalyzeThread(ctx context.Context, messages []model.ConversationMessage) (*model.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analysis.AnalyzeThread")
	defer span.End()
	span.SetAttributes(attribute.Int("messages", len(messages)))

	prompt := buildPrompt(transcript.Build(messages))

	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: analysisMaxTokens,
	})
	if err != nil {
		reason := classifyProviderError(err)
		s.logger.Warn("LLM completion failed",
			zap.String("provider", s.llmClient.Name()),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		metrics.AnalysesTotal.WithLabelValues(string(reason)).Inc()
		metrics.RecordLLMRequest(s.llmClient.Name(), "error", 0, 0, 0)
		return nil, &AnalysisError{Reason: reason, Err: err}
	}

	metrics.RecordLLMRequest(s.llmClient.Name(), "success",
		float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)

	result, err := ExtractAnalysis(resp.Content)
	if err != nil {
		s.logger.Warn("model response was not parsable",
			zap.String("provider", s.llmClient.Name()),
			zap.Int("response_len", len(resp.Content)),
			zap.Error(err),
		)
		metrics.AnalysesTotal.WithLabelValues(string(ReasonMalformedResponse)).Inc()
		return nil, &AnalysisError{Reason: ReasonMalformedResponse, Err: err}
	}

	metrics.AnalysesTotal.WithLabelValues("analyzed").Inc()
	s.logger.Info("thread analyzed",
		zap.String("title", result.Title),
		zap.String("customer", result.CustomerName),
		zap.String("priority", string(result.CustomerPriority)),
	)
	return result, nil
}

// classifyProviderError maps an LLM failure onto the user-facing taxonomy.
// The typed StatusError from the provider boundary is authoritative; the
// message-substring checks cover providers that only expose error strings.
func classifyProviderError(err error) FailureReason {
	status := 0
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}

	msg := strings.ToLower(err.Error())
	switch {
	case status == 401 || strings.Contains(msg, "401") || strings.Contains(msg, "authentication"):
		return ReasonAuthError
	case status == 429 || strings.Contains(msg, "429"):
		return ReasonRateLimited
	case status == 529 || strings.Contains(msg, "529") || strings.Contains(msg, "overloaded"):
		return ReasonOverloaded
	}
	return ReasonTransientAPIError
}

// buildPrompt fills the fixed analysis instruction with the transcript. The
// output schema mirrors model.AnalysisResult's JSON tags.
func buildPrompt(threadText string) string {
	return fmt.Sprintf(`Analyze this Slack thread and create a feature request for an issue tracker.

Thread:
%s

Parse out whether this request is tied to a particular customer and what that
customer's name is. Also judge the customer's priority: one of
- Nice to have,
- Must have soon, or
- Must have now (Blocker)

Write the feature request description in this format:

## Problem Statement
What problem is the customer trying to solve? Detail everything you can learn about the use case.

## Justification
Why is it important to the customer? Is it blocking a rollout? Is it just annoying ergonomics?

## Suggested Solution
If there's a clear thing that needs to be done, add it, otherwise leave this blank.

Please return ONLY a valid JSON object (no additional text) with:
{
  "title": "A concise title for the issue",
  "description": "The full feature request in markdown",
  "preview": "A 2-3 sentence summary for the confirmation dialog",
  "customerPriority": "nice_to_have" | "must_have_soon" | "must_have_now",
  "customerName": "The name of the customer mentioned in the thread, or null if no specific customer is mentioned"
}`, threadText)
}
