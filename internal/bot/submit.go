package bot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/internal/service"
)

// handleSubmission runs on every submitted draft modal: merge the form state
// over the stored analysis, validate, finalize, and report back. The view is
// already acked and closed by the time this runs, so all user feedback goes
// through messages.
func (b *Bot) handleSubmission(ctx context.Context, callback slack.InteractionCallback) {
	defer b.recoverPanic("submission")

	userID := callback.User.ID

	meta, err := model.DecodeDraftContext(callback.View.PrivateMetadata)
	if err != nil {
		b.logger.Error("decoding draft context failed", zap.Error(err))
		b.notifyUser(ctx, model.DraftContext{}, userID,
			":x: Something went wrong processing your submission. Please try again.")
		return
	}
	log := b.logger.WithRequest(meta.ChannelID, meta.MessageTs, userID)

	values := callback.View.State.Values
	title := inputValue(values, blockTitle, actionTitle)
	teamID := selectedValue(values, blockTeam, actionTeamSelect)
	description := inputValue(values, blockDescription, actionDescription)
	customerName := inputValue(values, blockCustomer, actionCustomer)
	priorityRaw := selectedValue(values, blockPriority, actionPriority)

	// Fields the form did not collect fall back to the analysis draft.
	if meta.Analysis != nil {
		if title == "" {
			title = meta.Analysis.Title
		}
		if description == "" {
			description = meta.Analysis.Description
		}
		if customerName == "" {
			customerName = meta.Analysis.CustomerName
		}
		if priorityRaw == "" {
			priorityRaw = string(meta.Analysis.CustomerPriority)
		}
	}
	if teamID == "" {
		teamID = b.teamID
	}
	priority, _ := model.ParsePriority(priorityRaw)

	if err := service.ValidateDraft(title, description); err != nil {
		log.Warn("draft rejected", zap.Error(err))
		b.notifyUser(ctx, meta, userID,
			":x: Cannot create the issue: the draft is missing a title or description. Please try again when the AI service is available, or use the manual shortcut.")
		return
	}

	var permalink string
	if meta.ChannelID != "" && meta.MessageTs != "" {
		permalink, err = b.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
			Channel: meta.ChannelID,
			Ts:      meta.MessageTs,
		})
		if err != nil {
			log.Warn("fetching permalink failed", zap.Error(err))
			permalink = ""
		}
	}

	result, err := b.tickets.Finalize(ctx, service.FinalizeInput{
		Draft: model.TicketRequest{
			TeamID:      teamID,
			Title:       title,
			Description: description,
		},
		Priority:     priority,
		CustomerName: customerName,
		OriginalText: meta.OriginalText,
		Permalink:    permalink,
	})
	if err != nil {
		log.Error("finalizing ticket failed", zap.Error(err))
		b.notifyUser(ctx, meta, userID,
			fmt.Sprintf(":x: Error creating the feature request: %v", err))
		return
	}

	log.Info("feature request created",
		zap.String("issue", result.Issue.Identifier),
		zap.Strings("warnings", result.Warnings),
	)

	b.confirm(ctx, meta, userID, buildConfirmation(result.Issue, title, result.Warnings))
}

// buildConfirmation renders the success message, appending one line per
// soft linking failure.
func buildConfirmation(issue *model.Issue, title string, warnings []string) string {
	text := fmt.Sprintf(":white_check_mark: Created <%s|%s>: %s", issue.URL, issue.Identifier, title)
	for _, warning := range warnings {
		text += fmt.Sprintf("\n:warning: %s", warning)
	}
	return text
}

// confirm posts the success message into the originating thread when there
// is one, otherwise as a DM to the submitter.
func (b *Bot) confirm(ctx context.Context, meta model.DraftContext, userID, text string) {
	if meta.ChannelID != "" && meta.MessageTs != "" {
		_, _, err := b.api.PostMessageContext(ctx, meta.ChannelID,
			slack.MsgOptionText(text, false),
			slack.MsgOptionTS(meta.MessageTs),
		)
		if err == nil {
			return
		}
		b.logger.Warn("posting thread confirmation failed, sending DM", zap.Error(err))
	}
	if _, _, err := b.api.PostMessageContext(ctx, userID, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("sending confirmation DM failed", zap.Error(err))
	}
}

// notifyUser delivers an error to the submitter: ephemerally in the channel
// when known, otherwise by DM.
func (b *Bot) notifyUser(ctx context.Context, meta model.DraftContext, userID, text string) {
	if meta.ChannelID != "" {
		_, err := b.api.PostEphemeralContext(ctx, meta.ChannelID, userID,
			slack.MsgOptionText(text, false))
		if err == nil {
			return
		}
		b.logger.Warn("posting ephemeral message failed, sending DM", zap.Error(err))
	}
	if _, _, err := b.api.PostMessageContext(ctx, userID, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("sending error DM failed", zap.Error(err))
	}
}

func inputValue(values map[string]map[string]slack.BlockAction, blockID, actionID string) string {
	if block, ok := values[blockID]; ok {
		if action, ok := block[actionID]; ok {
			return action.Value
		}
	}
	return ""
}

func selectedValue(values map[string]map[string]slack.BlockAction, blockID, actionID string) string {
	if block, ok := values[blockID]; ok {
		if action, ok := block[actionID]; ok {
			return action.SelectedOption.Value
		}
	}
	return ""
}
