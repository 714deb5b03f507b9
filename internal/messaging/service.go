// Package messaging provides the channel gateway abstraction and its Telegram
// implementation.
package messaging

import (
	"context"

	"github.com/groundworkhq/campaigner/internal/models"
)

// Service is the pluggable channel gateway. Sub-channels are platform
// sub-threads; subChannelID zero addresses the general channel.
type Service interface {
	// BotID identifies the bot account, used to key conversation contexts.
	BotID() int64

	// SendMessage delivers text to a channel or one of its sub-channels.
	SendMessage(ctx context.Context, channelID int64, subChannelID int, text string) error

	// SendFile uploads a document to a channel or sub-channel.
	SendFile(ctx context.Context, channelID int64, subChannelID int, data []byte, fileName string) error

	// CreateSubChannel creates a named sub-thread and returns its identifier.
	CreateSubChannel(ctx context.Context, channelID int64, name string) (int, error)

	// Updates returns the stream of inbound user events.
	Updates() <-chan models.Inbound

	// Start begins background polling for events.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the updates channel.
	Stop()
}
