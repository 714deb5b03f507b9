// Package flow provides the conversation state manager.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// StateManager is the conversation state store contract. All operations are
// keyed by the full conversation context tuple so sub-channel dialogues do not
// collide with the same user's general-channel dialogue.
type StateManager interface {
	// Get returns the active state for a context, or nil when none exists.
	Get(ctx context.Context, conv models.ConversationContext) (*models.ConversationState, error)

	// Set replaces the context's state with the given label and data bag.
	Set(ctx context.Context, conv models.ConversationContext, flow FlowType, state StateType, data map[string]string) error

	// SetState moves the label, preserving the existing data bag.
	SetState(ctx context.Context, conv models.ConversationContext, flow FlowType, state StateType) error

	// UpdateData merges partial data into the existing bag. When no state
	// exists it creates one holding the data; this recovers what it can of a
	// flow whose state record was lost, accepting last-write-wins.
	UpdateData(ctx context.Context, conv models.ConversationContext, partial map[string]string) error

	// Clear removes the context's state.
	Clear(ctx context.Context, conv models.ConversationContext) error
}

// StoreBasedStateManager implements StateManager over a store.Store.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStateManager creates a StateManager backed by a store.
func NewStateManager(st store.Store) *StoreBasedStateManager {
	return &StoreBasedStateManager{store: st}
}

func (sm *StoreBasedStateManager) Get(ctx context.Context, conv models.ConversationContext) (*models.ConversationState, error) {
	state, err := sm.store.GetConvState(conv)
	if err != nil {
		slog.Error("StateManager Get failed", "error", err, "userID", conv.UserID)
		return nil, err
	}
	return state, nil
}

func (sm *StoreBasedStateManager) Set(ctx context.Context, conv models.ConversationContext, flow FlowType, state StateType, data map[string]string) error {
	now := time.Now()
	record := models.ConversationState{
		Context:      conv,
		FlowType:     string(flow),
		CurrentState: string(state),
		Data:         data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := sm.store.SaveConvState(record); err != nil {
		slog.Error("StateManager Set failed", "error", err, "userID", conv.UserID, "flow", flow, "state", state)
		return err
	}
	slog.Debug("StateManager Set", "userID", conv.UserID, "flow", flow, "state", state)
	return nil
}

func (sm *StoreBasedStateManager) SetState(ctx context.Context, conv models.ConversationContext, flow FlowType, state StateType) error {
	existing, err := sm.store.GetConvState(conv)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		existing = &models.ConversationState{Context: conv, CreatedAt: now}
	}
	existing.FlowType = string(flow)
	existing.CurrentState = string(state)
	existing.UpdatedAt = now
	if err := sm.store.SaveConvState(*existing); err != nil {
		slog.Error("StateManager SetState failed", "error", err, "userID", conv.UserID, "flow", flow, "state", state)
		return err
	}
	slog.Debug("StateManager SetState", "userID", conv.UserID, "flow", flow, "state", state)
	return nil
}

func (sm *StoreBasedStateManager) UpdateData(ctx context.Context, conv models.ConversationContext, partial map[string]string) error {
	existing, err := sm.store.GetConvState(conv)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		existing = &models.ConversationState{
			Context:   conv,
			Data:      make(map[string]string, len(partial)),
			CreatedAt: now,
		}
	}
	if existing.Data == nil {
		existing.Data = make(map[string]string, len(partial))
	}
	for k, v := range partial {
		existing.Data[k] = v
	}
	existing.UpdatedAt = now
	if err := sm.store.SaveConvState(*existing); err != nil {
		slog.Error("StateManager UpdateData failed", "error", err, "userID", conv.UserID)
		return err
	}
	return nil
}

func (sm *StoreBasedStateManager) Clear(ctx context.Context, conv models.ConversationContext) error {
	if err := sm.store.DeleteConvState(conv); err != nil {
		slog.Error("StateManager Clear failed", "error", err, "userID", conv.UserID)
		return err
	}
	slog.Debug("StateManager Clear", "userID", conv.UserID)
	return nil
}
