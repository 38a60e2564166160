package collaborators

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotify is the default Notify adapter: manual-review and
// completion alerts land in a configured Slack channel.
type SlackNotify struct {
	client  *slack.Client
	channel string
}

func NewSlackNotify(token, channel string) *SlackNotify {
	return &SlackNotify{client: slack.New(token), channel: channel}
}

func (s *SlackNotify) Send(ctx context.Context, kind NotifyEventKind, recipients []string, payload map[string]string) (SendResult, error) {
	text := formatMessage(kind, payload)
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return SendResult{Failed: []ChannelFailure{{Channel: "slack", Error: err.Error()}}}, err
	}
	return SendResult{Sent: []ChannelReceipt{{Channel: "slack", ID: s.channel}}}, nil
}

func formatMessage(kind NotifyEventKind, payload map[string]string) string {
	msg := fmt.Sprintf("[%s]", kind)
	for k, v := range payload {
		msg += fmt.Sprintf(" %s=%s", k, v)
	}
	return msg
}
