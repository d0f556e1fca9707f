package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featureforge/slack-linear-bot/internal/llm"
	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
)

type fakeLLM struct {
	resp    *llm.CompletionResponse
	err     error
	lastReq *llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func TestAnalyzeThreadSuccess(t *testing.T) {
	client := &fakeLLM{
		resp: &llm.CompletionResponse{
			Content: `{
				"title": "Add bulk export",
				"description": "## Problem Statement\nNo bulk export.",
				"preview": "Acme wants to export all records at once.",
				"customerPriority": "must_have_now",
				"customerName": "Acme"
			}`,
		},
	}
	svc := NewAnalysisService(client, logger.NewNop())

	messages := []model.ConversationMessage{
		{User: "U1", Ts: "1700000000.000000", Text: "Acme needs bulk export before their rollout"},
	}
	result, err := svc.AnalyzeThread(context.Background(), messages)
	require.NoError(t, err)

	assert.Equal(t, "Add bulk export", result.Title)
	assert.Equal(t, "Acme", result.CustomerName)
	assert.Equal(t, model.PriorityMustHaveNow, result.CustomerPriority)

	// The prompt must carry the rendered conversation.
	require.NotNil(t, client.lastReq)
	require.Len(t, client.lastReq.Messages, 1)
	assert.Contains(t, client.lastReq.Messages[0].Content, "Acme needs bulk export before their rollout")
	assert.Equal(t, analysisMaxTokens, client.lastReq.MaxTokens)
}

func TestAnalyzeThreadClassifiesProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{
			name: "typed 401",
			err:  &llm.StatusError{StatusCode: 401, Message: "invalid x-api-key"},
			want: ReasonAuthError,
		},
		{
			name: "typed 429",
			err:  &llm.StatusError{StatusCode: 429, Message: "rate limit exceeded"},
			want: ReasonRateLimited,
		},
		{
			name: "typed 529",
			err:  &llm.StatusError{StatusCode: 529, Message: "overloaded"},
			want: ReasonOverloaded,
		},
		{
			name: "authentication in message",
			err:  errors.New("request failed: authentication error"),
			want: ReasonAuthError,
		},
		{
			name: "overloaded in message",
			err:  errors.New("upstream Overloaded, retry later"),
			want: ReasonOverloaded,
		},
		{
			name: "unclassified",
			err:  errors.New("connection reset by peer"),
			want: ReasonTransientAPIError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAnalysisService(&fakeLLM{err: tt.err}, logger.NewNop())

			_, err := svc.AnalyzeThread(context.Background(), []model.ConversationMessage{
				{User: "U1", Ts: "1.0", Text: "hello"},
			})
			require.Error(t, err)

			var analysisErr *AnalysisError
			require.True(t, errors.As(err, &analysisErr))
			assert.Equal(t, tt.want, analysisErr.Reason)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

func TestAnalyzeThreadMalformedResponse(t *testing.T) {
	client := &fakeLLM{
		resp: &llm.CompletionResponse{Content: "Sorry, I cannot produce JSON today."},
	}
	svc := NewAnalysisService(client, logger.NewNop())

	_, err := svc.AnalyzeThread(context.Background(), []model.ConversationMessage{
		{User: "U1", Ts: "1.0", Text: "hello"},
	})
	require.Error(t, err)

	var analysisErr *AnalysisError
	require.True(t, errors.As(err, &analysisErr))
	assert.Equal(t, ReasonMalformedResponse, analysisErr.Reason)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestClassifyProviderErrorPrefersTypedStatus(t *testing.T) {
	// A typed status wins even when the message would match another bucket.
	err := &llm.StatusError{StatusCode: 401, Message: "too many requests"}
	assert.Equal(t, ReasonAuthError, classifyProviderError(err))
}
