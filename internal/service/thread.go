package service

import (
	"context"
	"errors"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
	"github.com/featureforge/slack-linear-bot/pkg/metrics"
)

// ErrNoContext is returned when every retrieval strategy failed and not even
// the anchor message could be recovered. Callers skip analysis entirely and
// fall straight through to manual entry.
var ErrNoContext = errors.New("no conversation context available")

const (
	threadFetchLimit  = 100
	historyFetchLimit = 50
)

// ConversationAPI is the slice of the Slack client the retriever needs,
// narrowed for test injection.
type ConversationAPI interface {
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// ThreadService fetches the fullest available conversation context for a
// message, degrading through history and single-message fallbacks.
type ThreadService struct {
	api    ConversationAPI
	logger *logger.Logger
}

// NewThreadService creates a new thread service.
func NewThreadService(api ConversationAPI, log *logger.Logger) *ThreadService {
	return &ThreadService{
		api:    api,
		logger: log,
	}
}

// FetchConversation resolves the conversation around ref. Ordered attempts,
// first success wins:
//  1. direct thread-replies fetch on the anchor timestamp
//  2. channel history page ending at the anchor, locating the anchor in it
//  3. if the located anchor belongs to a thread, replies fetch on its root
//  4. the single best-known message (anchor, else newest history message)
//  5. nothing recoverable: ErrNoContext
//
// The result is non-empty on every nil-error return.
func (s *ThreadService) FetchConversation(ctx context.Context, ref model.ThreadRef) ([]model.ConversationMessage, error) {
	msgs, err := s.fetchReplies(ctx, ref.ChannelID, ref.MessageTs)
	if err == nil && len(msgs) > 0 {
		metrics.ThreadFetchesTotal.WithLabelValues("thread").Inc()
		return msgs, nil
	}
	s.logger.Warn("direct thread fetch failed, trying channel history",
		zap.String("channel", ref.ChannelID),
		zap.String("message_ts", ref.MessageTs),
		zap.Error(err),
	)

	history, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Latest:    ref.MessageTs,
		Limit:     historyFetchLimit,
		Inclusive: true,
	})
	if err != nil || history == nil || len(history.Messages) == 0 {
		s.logger.Error("all conversation fetch strategies failed",
			zap.String("channel", ref.ChannelID),
			zap.String("message_ts", ref.MessageTs),
			zap.Error(err),
		)
		metrics.ThreadFetchesTotal.WithLabelValues("none").Inc()
		return nil, ErrNoContext
	}

	anchor := findByTimestamp(history.Messages, ref.MessageTs)
	if anchor != nil && anchor.ThreadTimestamp != "" && anchor.ThreadTimestamp != anchor.Timestamp {
		// The anchor is a reply inside a thread; retry with the root.
		msgs, err := s.fetchReplies(ctx, ref.ChannelID, anchor.ThreadTimestamp)
		if err == nil && len(msgs) > 0 {
			metrics.ThreadFetchesTotal.WithLabelValues("history_thread").Inc()
			return msgs, nil
		}
		s.logger.Warn("thread-root fetch failed, using the anchor message alone",
			zap.String("thread_ts", anchor.ThreadTimestamp),
			zap.Error(err),
		)
		metrics.ThreadFetchesTotal.WithLabelValues("single").Inc()
		return []model.ConversationMessage{toConversationMessage(*anchor)}, nil
	}

	if anchor == nil {
		anchor = &history.Messages[0]
	}
	metrics.ThreadFetchesTotal.WithLabelValues("single").Inc()
	return []model.ConversationMessage{toConversationMessage(*anchor)}, nil
}

func (s *ThreadService) fetchReplies(ctx context.Context, channelID, ts string) ([]model.ConversationMessage, error) {
	replies, _, _, err := s.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: ts,
		Limit:     threadFetchLimit,
		Inclusive: true,
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]model.ConversationMessage, 0, len(replies))
	for _, reply := range replies {
		msgs = append(msgs, toConversationMessage(reply))
	}
	return msgs, nil
}

func findByTimestamp(messages []slack.Message, ts string) *slack.Message {
	for i := range messages {
		if messages[i].Timestamp == ts {
			return &messages[i]
		}
	}
	return nil
}

func toConversationMessage(m slack.Message) model.ConversationMessage {
	return model.ConversationMessage{
		User: m.User,
		Ts:   m.Timestamp,
		Text: m.Text,
	}
}
