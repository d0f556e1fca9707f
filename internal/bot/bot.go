// Package bot wires the Slack Socket Mode event loop to the thread-to-ticket
// pipeline: shortcuts open modals, analysis updates them asynchronously, and
// view submissions finalize tickets.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/internal/service"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
)

// Shortcut callback ids, as configured in the Slack app manifest.
const (
	shortcutCreateFeatureRequest = "create_feature_request"
	shortcutManualTicket         = "create_feature_request_manual"
)

// NewSlackClient builds the Slack API client for Socket Mode.
func NewSlackClient(botToken, appToken string, debug bool) (*slack.Client, error) {
	if botToken == "" {
		return nil, errors.New("Slack bot token is required")
	}
	if appToken == "" {
		return nil, errors.New("Slack app token is required for Socket Mode")
	}
	if !strings.HasPrefix(appToken, "xapp-") {
		return nil, errors.New("Slack app token must start with xapp-")
	}

	return slack.New(
		botToken,
		slack.OptionDebug(debug),
		slack.OptionAppLevelToken(appToken),
	), nil
}

// SlackAPI is the slice of the Slack Web API the bot calls outside the
// socket loop, narrowed for test injection.
type SlackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	UpdateViewContext(ctx context.Context, view slack.ModalViewRequest, externalID, hash, viewID string) (*slack.ViewResponse, error)
	GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

// Bot dispatches Socket Mode events into the pipeline services.
type Bot struct {
	api      SlackAPI
	socket   *socketmode.Client
	threads  *service.ThreadService
	analyses *service.AnalysisService
	tickets  *service.TicketService
	teamID   string
	logger   *logger.Logger

	connected atomic.Bool
}

// New creates a new bot around an already-configured Slack client.
func New(
	client *slack.Client,
	threads *service.ThreadService,
	analyses *service.AnalysisService,
	tickets *service.TicketService,
	teamID string,
	log *logger.Logger,
) *Bot {
	return &Bot{
		api:      client,
		socket:   socketmode.New(client),
		threads:  threads,
		analyses: analyses,
		tickets:  tickets,
		teamID:   teamID,
		logger:   log,
	}
}

// Connected reports whether the Socket Mode connection is established.
// Feeds the /ready endpoint.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run starts the event loop. Blocks until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	if authResp, err := b.api.AuthTestContext(ctx); err != nil {
		b.logger.Warn("Slack auth test failed", zap.Error(err))
	} else {
		b.logger.Info("Slack authenticated",
			zap.String("bot_user_id", authResp.UserID),
			zap.String("team", authResp.Team),
		)
	}

	go func() {
		for evt := range b.socket.Events {
			b.handleEvent(evt)
		}
	}()

	return b.socket.RunContext(ctx)
}

func (b *Bot) handleEvent(evt socketmode.Event) {
	defer b.recoverPanic("event")

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("connecting to Slack Socket Mode")

	case socketmode.EventTypeConnected:
		b.connected.Store(true)
		b.logger.Info("connected to Slack Socket Mode")

	case socketmode.EventTypeConnectionError:
		b.connected.Store(false)
		b.logger.Error("Socket Mode connection error", zap.Any("data", evt.Data))

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		b.socket.Ack(*evt.Request)
		b.handleInteraction(callback)
	}
}

func (b *Bot) handleInteraction(callback slack.InteractionCallback) {
	switch callback.Type {
	case slack.InteractionTypeMessageAction:
		if callback.CallbackID == shortcutCreateFeatureRequest {
			b.handleThreadShortcut(callback)
		}

	case slack.InteractionTypeShortcut:
		if callback.CallbackID == shortcutManualTicket {
			b.handleManualShortcut(callback)
		}

	case slack.InteractionTypeViewSubmission:
		if callback.View.CallbackID == callbackDraft {
			go b.handleSubmission(context.Background(), callback)
		}
		// The loading and error modals have no submit action; a closed
		// draft is simply abandoned.
	}
}

// handleThreadShortcut opens the loading modal immediately (trigger ids
// expire in 3 seconds) and analyzes the thread in the background.
func (b *Bot) handleThreadShortcut(callback slack.InteractionCallback) {
	meta := model.DraftContext{
		ChannelID:    callback.Channel.ID,
		MessageTs:    callback.Message.Timestamp,
		UserID:       callback.User.ID,
		OriginalText: callback.Message.Text,
	}
	log := b.logger.WithRequest(meta.ChannelID, meta.MessageTs, meta.UserID)

	encoded, err := meta.Encode()
	if err != nil {
		log.Error("encoding draft context failed", zap.Error(err))
		return
	}

	resp, err := b.api.OpenView(callback.TriggerID, newLoadingModal(encoded))
	if err != nil {
		log.Error("opening loading modal failed", zap.Error(err))
		return
	}

	go b.analyzeAndUpdate(context.Background(), meta, resp.ID)
}

// handleManualShortcut is the global-shortcut entry point: same form shape,
// no retrieval or analysis.
func (b *Bot) handleManualShortcut(callback slack.InteractionCallback) {
	meta := model.DraftContext{UserID: callback.User.ID}
	log := b.logger.WithRequest("", "", meta.UserID)

	encoded, err := meta.Encode()
	if err != nil {
		log.Error("encoding draft context failed", zap.Error(err))
		return
	}

	view := newManualModal(encoded, manualEntryHeader, b.teamID, true)
	if _, err := b.api.OpenView(callback.TriggerID, view); err != nil {
		log.Error("opening manual modal failed", zap.Error(err))
	}
}

// analyzeAndUpdate runs retrieval and analysis, then swaps the loading
// modal for whichever surface the outcome calls for.
func (b *Bot) analyzeAndUpdate(ctx context.Context, meta model.DraftContext, viewID string) {
	defer b.recoverPanic("analyze")
	log := b.logger.WithRequest(meta.ChannelID, meta.MessageTs, meta.UserID)

	messages, err := b.threads.FetchConversation(ctx, meta.ThreadRef())
	if err != nil {
		// Context is unrecoverable: skip the LLM entirely and let the
		// user type the request in.
		log.Warn("no conversation context, falling back to manual entry", zap.Error(err))
		b.updateView(ctx, viewID, b.degradedModal(meta, noContextHeader), log)
		return
	}

	result, err := b.analyses.AnalyzeThread(ctx, messages)
	if err != nil {
		reason := service.ReasonTransientAPIError
		var analysisErr *service.AnalysisError
		if errors.As(err, &analysisErr) {
			reason = analysisErr.Reason
		}
		if submitAllowed(reason) {
			b.updateView(ctx, viewID, b.degradedModal(meta, failureHeader(reason)), log)
		} else {
			b.updateView(ctx, viewID, newErrorModal(failureHeader(reason)), log)
		}
		return
	}

	meta.Analysis = result
	encoded, err := meta.Encode()
	if err != nil {
		log.Error("encoding draft context failed", zap.Error(err))
		b.updateView(ctx, viewID, newErrorModal(failureHeader(service.ReasonTransientAPIError)), log)
		return
	}
	b.updateView(ctx, viewID, newAnalyzedModal(encoded, result, b.teamID), log)
}

// degradedModal builds the manual-entry fallback for a thread-shortcut
// draft. The originating-message context is kept so a submitted ticket
// still links back to the conversation.
func (b *Bot) degradedModal(meta model.DraftContext, header string) slack.ModalViewRequest {
	encoded, err := meta.Encode()
	if err != nil {
		encoded = ""
	}
	return newManualModal(encoded, header, b.teamID, false)
}

func (b *Bot) updateView(ctx context.Context, viewID string, view slack.ModalViewRequest, log *logger.Logger) {
	if _, err := b.api.UpdateViewContext(ctx, view, "", "", viewID); err != nil {
		log.Error("updating modal failed", zap.Error(err))
	}
}

func (b *Bot) recoverPanic(op string) {
	if r := recover(); r != nil {
		b.logger.Error("recovered panic in handler",
			zap.String("op", op),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}

// submitAllowed reports whether a failed analysis still gets a functioning
// manual form. Malformed or unclassified API failures disable submission
// so a confused resubmit can never produce a garbage ticket.
func submitAllowed(reason service.FailureReason) bool {
	switch reason {
	case service.ReasonAuthError, service.ReasonRateLimited, service.ReasonOverloaded:
		return true
	}
	return false
}

// failureHeader maps a failure reason to the message shown in the modal.
func failureHeader(reason service.FailureReason) string {
	switch reason {
	case service.ReasonAuthError:
		return ":closed_lock_with_key: *Authentication error*\n\nThe AI service rejected the configured API key. Check the ANTHROPIC_API_KEY / OPENAI_API_KEY environment variables.\n\nYou can still enter the feature request manually:"
	case service.ReasonRateLimited:
		return ":hourglass: *Rate limited*\n\nToo many requests to the AI service. Try again in a few moments, or enter the details manually:"
	case service.ReasonOverloaded:
		return ":fire: *Service overloaded*\n\nThe AI service is temporarily overloaded. Try again in a few moments, or enter the details manually:"
	case service.ReasonMalformedResponse:
		return ":warning: *Analysis failed*\n\nThe AI service returned a response that could not be understood. Please close this dialog and try again."
	}
	return ":x: *AI service error*\n\nUnable to reach the AI service. Please close this dialog and try again later."
}

const (
	noContextHeader   = ":warning: *Unable to access the thread*\n\nPlease enter the feature request details manually:"
	manualEntryHeader = "Enter the details of the feature request:"
)
