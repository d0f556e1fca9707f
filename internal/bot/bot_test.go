package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featureforge/slack-linear-bot/internal/linear"
	"github.com/featureforge/slack-linear-bot/internal/llm"
	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/internal/service"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
)

type postedMessage struct {
	channel  string
	text     string
	threadTs string
}

func applyMsgOptions(channel string, options ...slack.MsgOption) postedMessage {
	_, values, _ := slack.UnsafeApplyMsgOptions("xoxb-test", channel, "https://slack.com/api/", options...)
	return postedMessage{channel: channel, text: values.Get("text"), threadTs: values.Get("thread_ts")}
}

type fakeSlackAPI struct {
	permalink    string
	permalinkErr error

	opened     []slack.ModalViewRequest
	updated    []slack.ModalViewRequest
	updatedIDs []string
	posts      []postedMessage
	ephemerals []postedMessage
}

func (f *fakeSlackAPI) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: "B1", Team: "acme"}, nil
}

func (f *fakeSlackAPI) OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.opened = append(f.opened, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeSlackAPI) UpdateViewContext(ctx context.Context, view slack.ModalViewRequest, externalID, hash, viewID string) (*slack.ViewResponse, error) {
	f.updated = append(f.updated, view)
	f.updatedIDs = append(f.updatedIDs, viewID)
	return &slack.ViewResponse{}, nil
}

func (f *fakeSlackAPI) GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error) {
	if f.permalinkErr != nil {
		return "", f.permalinkErr
	}
	return f.permalink, nil
}

func (f *fakeSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posts = append(f.posts, applyMsgOptions(channelID, options...))
	return channelID, "1.0", nil
}

func (f *fakeSlackAPI) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.ephemerals = append(f.ephemerals, applyMsgOptions(channelID, options...))
	return "1.0", nil
}

type fakeConversations struct {
	replies    []slack.Message
	repliesErr error
}

func (f *fakeConversations) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	return f.replies, false, "", f.repliesErr
}

func (f *fakeConversations) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	return nil, errors.New("channel_not_found")
}

type fakeLLM struct {
	resp *llm.CompletionResponse
	err  error
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeLLM) Name() string { return "fake" }

type fakeTracker struct {
	issue         *model.Issue
	searchResults []model.Customer

	createIssueCalls []model.TicketRequest
	needCalls        []string
	linkCalls        []string
}

func (f *fakeTracker) CreateIssue(ctx context.Context, req model.TicketRequest) (*model.Issue, error) {
	f.createIssueCalls = append(f.createIssueCalls, req)
	return f.issue, nil
}

func (f *fakeTracker) SearchCustomers(ctx context.Context, name string) ([]model.Customer, error) {
	return f.searchResults, nil
}

func (f *fakeTracker) CreateCustomer(ctx context.Context, name string) (*model.Customer, error) {
	return &model.Customer{ID: "cust-new", Name: name}, nil
}

func (f *fakeTracker) CreateCustomerNeed(ctx context.Context, issueID, customerID, body string) error {
	f.needCalls = append(f.needCalls, customerID)
	return nil
}

func (f *fakeTracker) LinkSlackThread(ctx context.Context, issueID, url string) (string, error) {
	f.linkCalls = append(f.linkCalls, url)
	return "att-1", nil
}

func newTestBot(api SlackAPI, conv service.ConversationAPI, llmClient llm.Client, tracker service.TrackerAPI, labels *linear.PriorityLabels) *Bot {
	log := logger.NewNop()
	return &Bot{
		api:      api,
		threads:  service.NewThreadService(conv, log),
		analyses: service.NewAnalysisService(llmClient, log),
		tickets:  service.NewTicketService(tracker, labels, log),
		teamID:   "team-1",
		logger:   log,
	}
}

func submissionCallback(view slack.ModalViewRequest, values map[string]map[string]slack.BlockAction, userID string) slack.InteractionCallback {
	return slack.InteractionCallback{
		Type: slack.InteractionTypeViewSubmission,
		User: slack.User{ID: userID},
		View: slack.View{
			CallbackID:      view.CallbackID,
			PrivateMetadata: view.PrivateMetadata,
			State:           &slack.ViewState{Values: values},
		},
	}
}

func threadReplies() []slack.Message {
	return []slack.Message{
		{Msg: slack.Msg{User: "U1", Timestamp: "200.000", Text: "we need bulk export before the Acme rollout"}},
		{Msg: slack.Msg{User: "U2", Timestamp: "201.000", Text: "one record at a time is killing them"}},
		{Msg: slack.Msg{User: "U1", Timestamp: "202.000", Text: "they want it within the quarter"}},
	}
}

// Full happy path: a 3-message thread is analyzed, the draft modal is
// confirmed unchanged, and the ticket lands with the priority label, the
// opaquely-carried description, and a threaded confirmation.
func TestThreadShortcutAnalyzedFlow(t *testing.T) {
	const description = "## Problem Statement\nRecords can only be exported one at a time."

	api := &fakeSlackAPI{permalink: "https://acme.slack.com/archives/C1/p200000"}
	conv := &fakeConversations{replies: threadReplies()}
	llmClient := &fakeLLM{resp: &llm.CompletionResponse{Content: `{
		"title": "Add bulk export",
		"description": "## Problem Statement\nRecords can only be exported one at a time.",
		"preview": "Acme wants to export all records at once.",
		"customerPriority": "must_have_soon",
		"customerName": "Acme"
	}`}}
	tracker := &fakeTracker{
		issue:         &model.Issue{ID: "iss-1", Identifier: "FEAT-42", URL: "https://linear.app/feat/issue/FEAT-42"},
		searchResults: []model.Customer{{ID: "cust-1", Name: "Acme"}},
	}
	labels := linear.NewPriorityLabels(map[model.Priority]string{
		model.PriorityMustHaveSoon: "label-soon",
	})
	b := newTestBot(api, conv, llmClient, tracker, labels)

	meta := model.DraftContext{
		ChannelID:    "C1",
		MessageTs:    "200.000",
		UserID:       "U7",
		OriginalText: "we need bulk export before the Acme rollout",
	}
	b.analyzeAndUpdate(context.Background(), meta, "V1")

	require.Len(t, api.updated, 1)
	assert.Equal(t, []string{"V1"}, api.updatedIDs)
	draft := api.updated[0]
	assert.Equal(t, callbackDraft, draft.CallbackID)
	require.NotNil(t, draft.Submit)

	title := findInputBlock(draft, blockTitle)
	element, ok := title.Element.(*slack.PlainTextInputBlockElement)
	require.True(t, ok)
	assert.Equal(t, "Add bulk export", element.InitialValue)

	// Confirm unchanged: the form echoes the prefilled title back.
	cb := submissionCallback(draft, map[string]map[string]slack.BlockAction{
		blockTitle: {actionTitle: {Value: "Add bulk export"}},
		blockTeam:  {actionTeamSelect: {SelectedOption: slack.OptionBlockObject{Value: "team-1"}}},
	}, "U7")
	b.handleSubmission(context.Background(), cb)

	require.Len(t, tracker.createIssueCalls, 1)
	created := tracker.createIssueCalls[0]
	assert.Equal(t, "team-1", created.TeamID)
	assert.Equal(t, "Add bulk export", created.Title)
	assert.Equal(t, description, created.Description)
	assert.Equal(t, []string{"label-soon"}, created.LabelIDs)

	assert.Equal(t, []string{"cust-1"}, tracker.needCalls)
	assert.Equal(t, []string{api.permalink}, tracker.linkCalls)

	require.Len(t, api.posts, 1)
	assert.Equal(t, "C1", api.posts[0].channel)
	assert.Equal(t, "200.000", api.posts[0].threadTs)
	assert.Contains(t, api.posts[0].text, "FEAT-42")
	assert.Empty(t, api.ephemerals)
}

// A 429 from the provider degrades to the manual form, and that form's
// submission still produces a ticket.
func TestRateLimitedFlowManualSubmitWorks(t *testing.T) {
	api := &fakeSlackAPI{permalink: "https://acme.slack.com/archives/C1/p200000"}
	conv := &fakeConversations{replies: threadReplies()}
	llmClient := &fakeLLM{err: &llm.StatusError{StatusCode: 429, Message: "rate limit exceeded"}}
	tracker := &fakeTracker{
		issue: &model.Issue{ID: "iss-7", Identifier: "FEAT-7", URL: "https://linear.app/feat/issue/FEAT-7"},
	}
	b := newTestBot(api, conv, llmClient, tracker, linear.NewPriorityLabels(nil))

	meta := model.DraftContext{ChannelID: "C1", MessageTs: "200.000", UserID: "U7", OriginalText: "original"}
	b.analyzeAndUpdate(context.Background(), meta, "V1")

	require.Len(t, api.updated, 1)
	manual := api.updated[0]
	require.NotNil(t, manual.Submit)
	assert.Equal(t, callbackDraft, manual.CallbackID)

	header, ok := manual.Blocks.BlockSet[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, header.Text.Text, "Rate limited")

	cb := submissionCallback(manual, map[string]map[string]slack.BlockAction{
		blockTitle:       {actionTitle: {Value: "Bulk export for Acme"}},
		blockTeam:        {actionTeamSelect: {SelectedOption: slack.OptionBlockObject{Value: "team-1"}}},
		blockDescription: {actionDescription: {Value: "They need to export everything at once."}},
	}, "U7")
	b.handleSubmission(context.Background(), cb)

	require.Len(t, tracker.createIssueCalls, 1)
	assert.Equal(t, "Bulk export for Acme", tracker.createIssueCalls[0].Title)
	assert.Equal(t, "They need to export everything at once.", tracker.createIssueCalls[0].Description)

	require.Len(t, api.posts, 1)
	assert.Contains(t, api.posts[0].text, "FEAT-7")
}

// A transient failure gets the terminal error modal, never a submittable
// form.
func TestTransientFailureShowsErrorModal(t *testing.T) {
	api := &fakeSlackAPI{}
	conv := &fakeConversations{replies: threadReplies()}
	llmClient := &fakeLLM{err: errors.New("connection reset by peer")}
	b := newTestBot(api, conv, llmClient, &fakeTracker{}, linear.NewPriorityLabels(nil))

	meta := model.DraftContext{ChannelID: "C1", MessageTs: "200.000", UserID: "U7"}
	b.analyzeAndUpdate(context.Background(), meta, "V1")

	require.Len(t, api.updated, 1)
	assert.Equal(t, callbackError, api.updated[0].CallbackID)
	assert.Nil(t, api.updated[0].Submit)
}

// Unrecoverable retrieval skips the LLM entirely and goes straight to the
// manual form.
func TestNoContextGoesStraightToManualEntry(t *testing.T) {
	api := &fakeSlackAPI{}
	conv := &fakeConversations{repliesErr: errors.New("channel_not_found")}
	llmClient := &fakeLLM{resp: &llm.CompletionResponse{Content: "{}"}}
	b := newTestBot(api, conv, llmClient, &fakeTracker{}, linear.NewPriorityLabels(nil))

	meta := model.DraftContext{ChannelID: "C1", MessageTs: "200.000", UserID: "U7"}
	b.analyzeAndUpdate(context.Background(), meta, "V1")

	require.Len(t, api.updated, 1)
	manual := api.updated[0]
	assert.Equal(t, callbackDraft, manual.CallbackID)
	require.NotNil(t, manual.Submit)

	header, ok := manual.Blocks.BlockSet[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, header.Text.Text, "Unable to access the thread")
}

// An incomplete draft is rejected with an ephemeral message and no ticket.
func TestSubmissionValidationFailureIsEphemeral(t *testing.T) {
	api := &fakeSlackAPI{}
	tracker := &fakeTracker{}
	b := newTestBot(api, &fakeConversations{}, &fakeLLM{}, tracker, linear.NewPriorityLabels(nil))

	meta := model.DraftContext{ChannelID: "C1", MessageTs: "200.000", UserID: "U7"}
	encoded, err := meta.Encode()
	require.NoError(t, err)

	cb := submissionCallback(slack.ModalViewRequest{
		CallbackID:      callbackDraft,
		PrivateMetadata: encoded,
	}, map[string]map[string]slack.BlockAction{
		blockTitle: {actionTitle: {Value: "A title with no description"}},
	}, "U7")
	b.handleSubmission(context.Background(), cb)

	assert.Empty(t, tracker.createIssueCalls)
	require.Len(t, api.ephemerals, 1)
	assert.Equal(t, "C1", api.ephemerals[0].channel)
	assert.Empty(t, api.posts)
}

// A permalink failure degrades to an unlinked ticket, not an error.
func TestSubmissionPermalinkFailureStillCreates(t *testing.T) {
	api := &fakeSlackAPI{permalinkErr: errors.New("message_not_found")}
	tracker := &fakeTracker{
		issue: &model.Issue{ID: "iss-9", Identifier: "FEAT-9", URL: "https://linear.app/feat/issue/FEAT-9"},
	}
	b := newTestBot(api, &fakeConversations{}, &fakeLLM{}, tracker, linear.NewPriorityLabels(nil))

	meta := model.DraftContext{ChannelID: "C1", MessageTs: "200.000", UserID: "U7"}
	encoded, err := meta.Encode()
	require.NoError(t, err)

	cb := submissionCallback(slack.ModalViewRequest{
		CallbackID:      callbackDraft,
		PrivateMetadata: encoded,
	}, map[string]map[string]slack.BlockAction{
		blockTitle:       {actionTitle: {Value: "Bulk export"}},
		blockTeam:        {actionTeamSelect: {SelectedOption: slack.OptionBlockObject{Value: "team-1"}}},
		blockDescription: {actionDescription: {Value: "A real description."}},
	}, "U7")
	b.handleSubmission(context.Background(), cb)

	require.Len(t, tracker.createIssueCalls, 1)
	assert.Empty(t, tracker.linkCalls)
	require.Len(t, api.posts, 1)
	assert.Contains(t, api.posts[0].text, "FEAT-9")
}
