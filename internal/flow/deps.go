package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groundworkhq/campaigner/internal/export"
	"github.com/groundworkhq/campaigner/internal/genai"
	"github.com/groundworkhq/campaigner/internal/messaging"
	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// Shared user-facing replies.
const (
	msgNotUnderstood = "Не понял запрос. Уточните, что нужно сделать: кампания, контент-план, шаблон, сегмент или загрузка базы."
	msgGeneralOnly   = "Эта команда доступна только в общем канале."
	msgTransient     = "Сервис временно недоступен, попробуйте повторить запрос через минуту."
	msgFlowCancelled = "Текущий сценарий отменён."
	msgNoCompany     = "Сначала расскажите о вашей компании, чтобы я мог настроить рассылки."
)

// Deps bundles the services every flow engine needs.
type Deps struct {
	States StateManager
	Store  store.Store
	LLM    genai.ClientInterface
	Msg    messaging.Service
	Sheets export.Sink
	Drafts DraftScheduler
}

// DraftScheduler accepts fire-and-forget draft-generation jobs triggered by
// template commits. Implementations must not block the caller.
type DraftScheduler interface {
	Schedule(waveID, templateID int64)
}

func (d *Deps) reply(ctx context.Context, conv models.ConversationContext, text string) {
	if err := d.Msg.SendMessage(ctx, conv.ChannelID, conv.SubChannelID, text); err != nil {
		slog.Error("Flow.reply failed to send message", "error", err, "channelID", conv.ChannelID, "subChannelID", conv.SubChannelID)
	}
}

// abort clears the conversation state and notifies the user.
func (d *Deps) abort(ctx context.Context, conv models.ConversationContext, text string) {
	if err := d.States.Clear(ctx, conv); err != nil {
		slog.Error("Flow.abort failed to clear state", "error", err)
	}
	d.reply(ctx, conv, text)
}

// org resolves the organization owning the channel the message came from.
func (d *Deps) org(ctx context.Context, conv models.ConversationContext) (*models.Organization, error) {
	org, err := d.Store.GetOrganizationByChannel(conv.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("resolve organization for channel %d: %w", conv.ChannelID, err)
	}
	return org, nil
}

// ensureLeadTable creates the organization's lead table when it does not
// exist yet. Creation is idempotent; repeat calls are no-ops.
func (d *Deps) ensureLeadTable(orgID int64) (string, error) {
	name := store.LeadTableName(orgID)
	exists, err := d.Store.RelationExists(name)
	if err != nil {
		return "", fmt.Errorf("check lead table %s: %w", name, err)
	}
	if exists {
		return name, nil
	}
	if err := d.Store.CreateRelation(name, models.LeadColumns); err != nil {
		return "", fmt.Errorf("create lead table %s: %w", name, err)
	}
	slog.Info("Flow.ensureLeadTable created lead table", "table", name, "orgID", orgID)
	return name, nil
}

// Engine drives one conversational flow. Handle is invoked for every inbound
// message while the conversation state names the engine's flow type.
type Engine interface {
	Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error
}
