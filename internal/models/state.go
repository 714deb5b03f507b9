// Package models defines state management structures for campaigner flows.
package models

import "time"

// ConversationContext identifies one ongoing dialogue. SubChannelID is zero in
// the general channel. At most one flow owns a context at a time.
type ConversationContext struct {
	BotID        int64 `json:"bot_id"`
	UserID       int64 `json:"user_id"`
	ChannelID    int64 `json:"channel_id"`
	SubChannelID int   `json:"sub_channel_id"`
}

// ConversationState is the (label, data bag) pair owned by a context. Label
// encodes both the owning flow and the state within it; Data accumulates
// partially validated field values between turns.
type ConversationState struct {
	Context      ConversationContext `json:"context"`
	FlowType     string              `json:"flow_type"`
	CurrentState string              `json:"current_state"`
	Data         map[string]string   `json:"data,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
