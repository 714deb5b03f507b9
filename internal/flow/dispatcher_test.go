package flow

import (
	"context"
	"testing"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
)

func seedCampaignWithSubChannel(t *testing.T, f *fixture, orgID int64, subChannelID int) int64 {
	t.Helper()
	if err := f.store.SaveSubChannel(models.SubChannel{
		ChannelID:    1000,
		SubChannelID: subChannelID,
		Name:         "Осенняя распродажа",
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("save sub-channel: %v", err)
	}
	id, err := f.store.UpsertCampaignBySubChannel(models.Campaign{
		OrgID:         orgID,
		Name:          "Осенняя распродажа",
		StartDate:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		SubChannelID:  subChannelID,
		Status:        models.CampaignStatusActive,
		VisibleToUser: true,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return id
}

func TestDispatchCompanyAddBlockedInSubChannel(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	seedCampaignWithSubChannel(t, f, orgID, 5)
	f.llm.classification = models.Classification{Action: models.ActionAdd, Entity: models.EntityCompany}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(5, "давай заведём компанию"))

	if got := f.msg.lastMessage(); got != msgGeneralOnly {
		t.Fatalf("expected general-only reply, got %q", got)
	}
	f.noState(t, testConv(5))
}

func TestDispatchCampaignDeleteRoutedFromBothLocations(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	seedCampaignWithSubChannel(t, f, orgID, 5)
	f.llm.classification = models.Classification{Action: models.ActionDelete, Entity: models.EntityCampaign}

	d := NewDispatcher(f.deps)

	d.Dispatch(context.Background(), textMessage(5, "удали кампанию"))
	state := f.mustState(t, testConv(5))
	if state.FlowType != string(FlowCampaignDelete) || state.CurrentState != string(StateWaitingConfirmation) {
		t.Fatalf("sub-channel delete: got flow=%s state=%s", state.FlowType, state.CurrentState)
	}

	d.Dispatch(context.Background(), textMessage(0, "удали кампанию"))
	state = f.mustState(t, testConv(0))
	if state.FlowType != string(FlowCampaignDelete) || state.CurrentState != string(StateWaitingConfirmation) {
		t.Fatalf("general delete: got flow=%s state=%s", state.FlowType, state.CurrentState)
	}
}

func TestDispatchUnknownIntent(t *testing.T) {
	f := newFixture(t)
	f.llm.classification = models.Classification{Action: models.ActionUnknown, Entity: models.EntityUnknown}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(0, "привет"))

	if got := f.msg.lastMessage(); got != msgNotUnderstood {
		t.Fatalf("expected clarification reply, got %q", got)
	}
}

func TestDispatchClassifierErrorRepliesTransient(t *testing.T) {
	f := newFixture(t)
	f.llm.classification = models.Classification{Action: models.ActionError}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(0, "что-нибудь"))

	if got := f.msg.lastMessage(); got != msgTransient {
		t.Fatalf("expected transient reply, got %q", got)
	}
}

func TestDispatchResetClearsActiveFlow(t *testing.T) {
	f := newFixture(t)
	conv := testConv(0)
	if err := f.deps.States.Set(context.Background(), conv, FlowCampaignCreate, StateWaitingCampaignName, map[string]string{}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(0, "отмена"))

	f.noState(t, conv)
	if got := f.msg.lastMessage(); got != msgFlowCancelled {
		t.Fatalf("expected cancellation reply, got %q", got)
	}
}

func TestDispatchUnregisteredThreadFallsBackToGeneral(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	// content_plan is a sub-channel intent, so with the thread unregistered
	// the general routing table rejects it.
	f.llm.classification = models.Classification{Action: models.ActionAdd, Entity: models.EntityContentPlan}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(42, "составь контент-план"))

	if got := f.msg.lastMessage(); got != msgNotUnderstood {
		t.Fatalf("expected not-understood reply, got %q", got)
	}
}

func TestDispatchActiveStateRoutesToOwningEngine(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	conv := testConv(0)
	if err := f.deps.States.Set(context.Background(), conv, FlowCampaignCreate, StateWaitingCampaignName, map[string]string{}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	d := NewDispatcher(f.deps)
	d.Dispatch(context.Background(), textMessage(0, "Весенняя кампания"))

	state := f.mustState(t, conv)
	if state.Data[KeyName] != "Весенняя кампания" {
		t.Fatalf("expected name stored by campaign engine, got %q", state.Data[KeyName])
	}
}
