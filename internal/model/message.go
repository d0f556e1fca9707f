// Package model defines the domain types shared across the bot's services.
package model

import "encoding/json"

// ConversationMessage is a single message pulled from a Slack conversation.
// The Ts field keeps Slack's native timestamp format (fractional epoch
// seconds as a string) so it can be passed back to the Slack API unchanged.
type ConversationMessage struct {
	User string `json:"user"`
	Ts   string `json:"ts"`
	Text string `json:"text"`
}

// ThreadRef addresses the message a shortcut was invoked on.
type ThreadRef struct {
	ChannelID string `json:"channel"`
	MessageTs string `json:"message_ts"`
}

// DraftContext is the working state of one in-flight feature request. It
// rides the modal's private_metadata as JSON across the loading → analyzed →
// submitted transitions; nothing is persisted server-side.
type DraftContext struct {
	ChannelID    string          `json:"channel,omitempty"`
	MessageTs    string          `json:"message_ts,omitempty"`
	UserID       string          `json:"user,omitempty"`
	OriginalText string          `json:"original_text,omitempty"`
	Analysis     *AnalysisResult `json:"analysis,omitempty"`
}

// ThreadRef returns the originating conversation reference. It is zero for
// the manual entry path, which has no originating message.
func (d DraftContext) ThreadRef() ThreadRef {
	return ThreadRef{ChannelID: d.ChannelID, MessageTs: d.MessageTs}
}

// Encode serializes the context for the modal's private_metadata field.
func (d DraftContext) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeDraftContext restores a context from private_metadata.
func DecodeDraftContext(s string) (DraftContext, error) {
	var d DraftContext
	err := json.Unmarshal([]byte(s), &d)
	return d, err
}
