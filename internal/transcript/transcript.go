// Package transcript renders a conversation into the text block fed to the
// LLM prompt.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/featureforge/slack-linear-bot/internal/model"
)

// unknownAuthor is used when Slack gives no user id for a message (bot
// messages, some system messages).
const unknownAuthor = "Unknown"

// Build renders messages as one `[timestamp] author: body` line each,
// joined by a blank line. Pure; empty input yields an empty string.
func Build(messages []model.ConversationMessage) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		author := msg.User
		if author == "" {
			author = unknownAuthor
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", formatTimestamp(msg.Ts), author, msg.Text))
	}
	return strings.Join(lines, "\n\n")
}

// formatTimestamp converts a Slack ts (fractional epoch seconds) to an
// ISO-8601 UTC string with millisecond precision. An unparsable ts is
// passed through verbatim rather than dropped.
func formatTimestamp(ts string) string {
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return ts
	}
	return time.UnixMilli(int64(secs * 1000)).UTC().Format("2006-01-02T15:04:05.000Z")
}
