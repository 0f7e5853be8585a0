package discord

import "context"

// Client is the slice of the Discord API the notifier needs.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessage(ctx context.Context, channelID, content string) error
	ResolveChannelName(ctx context.Context, channelID string) (string, error)
}
