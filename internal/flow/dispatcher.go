package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// Dispatcher routes inbound messages either to the engine owning the active
// conversation state, or, when no flow is active, classifies the message and
// starts the flow matching the intent and the channel it arrived in.
type Dispatcher struct {
	deps *Deps

	company     *CompanyEngine
	campaign    *CampaignEngine
	contentPlan *ContentPlanEngine
	emailUpload *EmailUploadEngine
	segment     *SegmentEngine
	template    *TemplateEngine

	engines map[FlowType]Engine
}

// NewDispatcher wires all flow engines over the shared dependency set.
func NewDispatcher(deps *Deps) *Dispatcher {
	d := &Dispatcher{
		deps:        deps,
		company:     NewCompanyEngine(deps),
		campaign:    NewCampaignEngine(deps),
		contentPlan: NewContentPlanEngine(deps),
		emailUpload: NewEmailUploadEngine(deps),
		segment:     NewSegmentEngine(deps),
		template:    NewTemplateEngine(deps),
	}
	d.engines = map[FlowType]Engine{
		FlowOnboarding:     d.company,
		FlowCompanyEdit:    d.company,
		FlowCampaignCreate: d.campaign,
		FlowCampaignDelete: d.campaign,
		FlowContentPlan:    d.contentPlan,
		FlowEmailUpload:    d.emailUpload,
		FlowSegmentCreate:  d.segment,
		FlowTemplateCreate: d.template,
		FlowTemplateEdit:   d.template,
		FlowTemplateDelete: d.template,
	}
	return d
}

// Dispatch processes one inbound message end to end. Errors are handled by
// replying to the user; Dispatch itself never fails the consuming loop.
func (d *Dispatcher) Dispatch(ctx context.Context, in models.Inbound) {
	conv := models.ConversationContext{
		BotID:        d.deps.Msg.BotID(),
		UserID:       in.UserID,
		ChannelID:    in.ChannelID,
		SubChannelID: d.resolveSubChannel(in),
	}

	if IsResetCommand(in.Text) {
		d.deps.abort(ctx, conv, msgFlowCancelled)
		return
	}

	state, err := d.deps.States.Get(ctx, conv)
	if err != nil {
		slog.Error("Dispatcher.Dispatch failed to load state", "error", err)
		d.deps.reply(ctx, conv, msgTransient)
		return
	}
	if state != nil {
		engine, ok := d.engines[FlowType(state.FlowType)]
		if !ok {
			slog.Warn("Dispatcher.Dispatch unknown flow type in state, clearing", "flowType", state.FlowType)
			d.deps.abort(ctx, conv, msgNotUnderstood)
			return
		}
		if err := engine.Handle(ctx, conv, state, in); err != nil {
			slog.Error("Dispatcher.Dispatch engine failed", "flowType", state.FlowType, "error", err)
			d.deps.reply(ctx, conv, msgTransient)
		}
		return
	}

	cls := d.deps.LLM.Classify(ctx, in.Text)
	slog.Info("Dispatcher.Dispatch classified message", "action", cls.Action, "entity", cls.Entity, "subChannelID", conv.SubChannelID)

	if cls.Action == models.ActionError {
		d.deps.reply(ctx, conv, msgTransient)
		return
	}
	if cls.Action == models.ActionUnknown || cls.Entity == models.EntityUnknown {
		// A bare file in the general channel is treated as a base upload.
		if in.Document != nil && conv.SubChannelID == 0 {
			d.routeGeneral(ctx, conv, models.Classification{Action: models.ActionAdd, Entity: models.EntityEmailTable}, in)
			return
		}
		d.deps.reply(ctx, conv, msgNotUnderstood)
		return
	}

	if conv.SubChannelID == 0 {
		d.routeGeneral(ctx, conv, cls, in)
	} else {
		d.routeSubChannel(ctx, conv, cls, in)
	}
}

// resolveSubChannel validates the incoming thread against registered
// sub-channels. Messages in unregistered threads fall back to the general
// channel scope.
func (d *Dispatcher) resolveSubChannel(in models.Inbound) int {
	if in.SubChannelID == 0 {
		return 0
	}
	if _, err := d.deps.Store.GetSubChannel(in.ChannelID, in.SubChannelID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Dispatcher.resolveSubChannel lookup failed", "error", err)
		}
		return 0
	}
	return in.SubChannelID
}

func (d *Dispatcher) routeGeneral(ctx context.Context, conv models.ConversationContext, cls models.Classification, in models.Inbound) {
	var err error
	switch {
	case cls.Entity == models.EntityCompany && cls.Action == models.ActionAdd:
		err = d.company.StartOnboarding(ctx, conv, cls)
	case cls.Entity == models.EntityCompany && cls.Action == models.ActionEdit:
		err = d.company.StartEdit(ctx, conv, cls)
	case cls.Entity == models.EntityCompany && cls.Action == models.ActionView:
		err = d.company.ViewProfile(ctx, conv)
	case cls.Entity == models.EntityCampaign && cls.Action == models.ActionAdd:
		err = d.campaign.StartCreate(ctx, conv, cls)
	case cls.Entity == models.EntityCampaign && cls.Action == models.ActionDelete:
		err = d.campaign.StartDelete(ctx, conv)
	case cls.Entity == models.EntityCampaign && cls.Action == models.ActionView:
		err = d.campaign.View(ctx, conv)
	case cls.Entity == models.EntityEmailTable && cls.Action == models.ActionAdd:
		err = d.emailUpload.Start(ctx, conv, in)
	case cls.Entity == models.EntityEmailTable && cls.Action == models.ActionView:
		err = d.emailUpload.Export(ctx, conv)
	default:
		d.deps.reply(ctx, conv, msgNotUnderstood)
		return
	}
	if err != nil {
		slog.Error("Dispatcher.routeGeneral flow start failed", "action", cls.Action, "entity", cls.Entity, "error", err)
		d.deps.reply(ctx, conv, msgTransient)
	}
}

func (d *Dispatcher) routeSubChannel(ctx context.Context, conv models.ConversationContext, cls models.Classification, in models.Inbound) {
	var err error
	switch {
	case cls.Entity == models.EntityCampaign && cls.Action == models.ActionDelete:
		err = d.campaign.StartDelete(ctx, conv)
	case cls.Entity == models.EntityContentPlan && cls.Action == models.ActionAdd:
		err = d.contentPlan.Start(ctx, conv)
	case cls.Entity == models.EntitySegment && cls.Action == models.ActionAdd:
		err = d.segment.Start(ctx, conv)
	case cls.Entity == models.EntityTemplate && cls.Action == models.ActionAdd:
		err = d.template.StartCreate(ctx, conv)
	case cls.Entity == models.EntityTemplate && cls.Action == models.ActionEdit:
		err = d.template.StartEdit(ctx, conv)
	case cls.Entity == models.EntityTemplate && cls.Action == models.ActionDelete:
		err = d.template.StartDelete(ctx, conv)
	default:
		d.deps.reply(ctx, conv, msgGeneralOnly)
		return
	}
	if err != nil {
		slog.Error("Dispatcher.routeSubChannel flow start failed", "action", cls.Action, "entity", cls.Entity, "error", err)
		d.deps.reply(ctx, conv, msgTransient)
	}
}
