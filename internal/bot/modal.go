package bot

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/featureforge/slack-linear-bot/internal/model"
)

// View callback ids. Only callbackDraft produces a submission.
const (
	callbackLoading = "feature_request_loading"
	callbackDraft   = "feature_request_modal"
	callbackError   = "feature_request_error"
)

// Block and action ids read back out of view submission state.
const (
	blockTitle        = "title_block"
	actionTitle       = "title_input"
	blockTeam         = "team_block"
	actionTeamSelect  = "team_select"
	blockDescription  = "description_block"
	actionDescription = "description_input"
	blockCustomer     = "customer_block"
	actionCustomer    = "customer_input"
	blockPriority     = "priority_block"
	actionPriority    = "priority_select"
)

const modalTitle = "Create Feature Request"

// newLoadingModal is shown instantly on the shortcut so the trigger id does
// not expire while analysis runs. It has no submit button.
func newLoadingModal(metadata string) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackLoading,
		PrivateMetadata: metadata,
		Title:           plainText(modalTitle),
		Close:           plainText("Cancel"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			markdownSection(":hourglass_flowing_sand: *Analyzing thread...*"),
			markdownSection("Reading the conversation and drafting a feature request. This usually takes a few seconds."),
		}},
	}
}

// newAnalyzedModal presents the AI draft for review. Title is editable
// inline; description, customer and priority ride along in the metadata and
// are summarized in the preview section.
func newAnalyzedModal(metadata string, analysis *model.AnalysisResult, teamID string) slack.ModalViewRequest {
	titleInput := slack.NewPlainTextInputBlockElement(plainText("Issue title"), actionTitle)
	titleInput.InitialValue = analysis.Title

	blocks := []slack.Block{
		markdownSection(":white_check_mark: *Analysis complete.* Review the draft below."),
		slack.NewInputBlock(blockTitle, plainText("Title"), nil, titleInput),
		teamSelectBlock(teamID),
		markdownSection(fmt.Sprintf("*Preview:*\n%s", analysis.Preview)),
	}
	if analysis.CustomerName != "" {
		line := fmt.Sprintf("*Customer:* %s", analysis.CustomerName)
		if analysis.CustomerPriority != "" {
			line += fmt.Sprintf("\n*Customer priority:* %s", analysis.CustomerPriority.Label())
		}
		blocks = append(blocks, markdownSection(line))
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackDraft,
		PrivateMetadata: metadata,
		Title:           plainText(modalTitle),
		Submit:          plainText("Create"),
		Close:           plainText("Cancel"),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// newManualModal is the hand-entry form, used both for the global shortcut
// and as the degraded surface when retrieval or analysis failed in a
// recoverable way. withCustomerFields adds the optional customer name and
// priority inputs used by the standalone entry point.
func newManualModal(metadata, header, teamID string, withCustomerFields bool) slack.ModalViewRequest {
	descInput := slack.NewPlainTextInputBlockElement(plainText("Describe the feature request"), actionDescription)
	descInput.Multiline = true

	blocks := []slack.Block{
		markdownSection(header),
		slack.NewInputBlock(blockTitle, plainText("Title"), nil,
			slack.NewPlainTextInputBlockElement(plainText("Issue title"), actionTitle)),
		teamSelectBlock(teamID),
		slack.NewInputBlock(blockDescription, plainText("Description"), nil, descInput),
	}

	if withCustomerFields {
		customerBlock := slack.NewInputBlock(blockCustomer, plainText("Customer"), nil,
			slack.NewPlainTextInputBlockElement(plainText("Customer name (optional)"), actionCustomer))
		customerBlock.Optional = true

		priorityBlock := slack.NewInputBlock(blockPriority, plainText("Customer priority"), nil, prioritySelect())
		priorityBlock.Optional = true

		blocks = append(blocks, customerBlock, priorityBlock)
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackDraft,
		PrivateMetadata: metadata,
		Title:           plainText(modalTitle),
		Submit:          plainText("Create"),
		Close:           plainText("Cancel"),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// newErrorModal is terminal: no submit button, no retained state. The user
// closes it and retries from the shortcut.
func newErrorModal(message string) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: callbackError,
		Title:      plainText(modalTitle),
		Close:      plainText("Close"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			markdownSection(message),
		}},
	}
}

// teamSelectBlock renders the destination team. A single team is configured
// today, so the select has one pre-chosen option.
func teamSelectBlock(teamID string) *slack.InputBlock {
	option := slack.NewOptionBlockObject(teamID, plainText("Feature Requests (FEAT)"), nil)
	sel := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Select a team"), actionTeamSelect, option)
	sel.InitialOption = option
	return slack.NewInputBlock(blockTeam, plainText("Linear Team"), nil, sel)
}

func prioritySelect() *slack.SelectBlockElement {
	return slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		plainText("How urgent is this for the customer?"),
		actionPriority,
		slack.NewOptionBlockObject(string(model.PriorityNiceToHave), plainText("Nice to have"), nil),
		slack.NewOptionBlockObject(string(model.PriorityMustHaveSoon), plainText("Must have soon"), nil),
		slack.NewOptionBlockObject(string(model.PriorityMustHaveNow), plainText("Must have now (Blocker)"), nil),
	)
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}
