package types

import (
	"github.com/slack-go/slack"
)

type SlackNotification interface {
	GetHeader() *slack.TextBlockObject
	GetTextBlockObjects() []*slack.TextBlockObject
}
