package types

type Event interface {
	GetMessageData() (map[string]interface{}, error)
	GetChannelName() string
}
