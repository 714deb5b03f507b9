package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

func campaignState(f *fixture, t *testing.T, state StateType, data map[string]string) *models.ConversationState {
	t.Helper()
	conv := testConv(0)
	if err := f.deps.States.Set(context.Background(), conv, FlowCampaignCreate, state, data); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return f.mustState(t, conv)
}

func TestCampaignMissingFieldPriority(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	// Both start_date and filters are missing after extraction; start_date
	// must be asked first.
	f.llm.extracted = map[string]any{"start_date": "", "end_date": "30.09.2026", "filters": map[string]any{}}
	state := campaignState(f, t, StateWaitingCampaignData, map[string]string{KeyName: "Распродажа"})

	e := NewCampaignEngine(f.deps)
	if err := e.Handle(context.Background(), testConv(0), state, textMessage(0, "с сентября по октябрь")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	next := f.mustState(t, testConv(0))
	if next.CurrentState != string(StateWaitingStartDate) {
		t.Fatalf("expected start-date question first, got state %s", next.CurrentState)
	}
	if next.Data[KeyEndDate] != "30.09.2026" {
		t.Fatalf("expected extracted end date kept, got %q", next.Data[KeyEndDate])
	}
}

func TestCampaignInvalidDateLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	state := campaignState(f, t, StateWaitingStartDate, map[string]string{KeyName: "Распродажа"})

	e := NewCampaignEngine(f.deps)
	if err := e.Handle(context.Background(), testConv(0), state, textMessage(0, "31.13.2024")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	after := f.mustState(t, testConv(0))
	if after.CurrentState != string(StateWaitingStartDate) {
		t.Fatalf("state advanced on invalid date: %s", after.CurrentState)
	}
	if _, ok := after.Data[KeyStartDate]; ok {
		t.Fatal("invalid date leaked into the data bag")
	}
	if got := f.msg.lastMessage(); got != msgBadDate {
		t.Fatalf("expected re-prompt, got %q", got)
	}
}

func TestCampaignCommitCreatesSubChannelThenRow(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	data := map[string]string{
		KeyName:      "Распродажа",
		KeyStartDate: "01.09.2026",
		KeyEndDate:   "30.09.2026",
		KeyFilters:   `{"region":"Moscow"}`,
	}
	state := campaignState(f, t, StateWaitingConfirmation, data)

	e := NewCampaignEngine(f.deps)
	if err := e.Handle(context.Background(), testConv(0), state, textMessage(0, "да")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(f.msg.createdSubs) != 1 {
		t.Fatalf("expected one sub-channel created, got %d", len(f.msg.createdSubs))
	}
	campaigns, err := f.store.ListCampaigns(orgID)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("expected one campaign row, got %d", len(campaigns))
	}
	c := campaigns[0]
	if c.SubChannelID != 1 || c.Status != models.CampaignStatusActive || !c.VisibleToUser {
		t.Fatalf("unexpected campaign row: %+v", c)
	}
	// Scalar region promoted to a list on write.
	region, ok := c.Filters["region"].([]any)
	if !ok || len(region) != 1 || region[0] != "Moscow" {
		t.Fatalf("expected normalized region filter, got %#v", c.Filters["region"])
	}
	f.noState(t, testConv(0))
}

func TestCampaignCommitAbortsWhenSubChannelFails(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	f.msg.subErr = errors.New("telegram down")
	data := map[string]string{
		KeyName:      "Распродажа",
		KeyStartDate: "01.09.2026",
		KeyEndDate:   "30.09.2026",
		KeyFilters:   "{}",
	}
	state := campaignState(f, t, StateWaitingConfirmation, data)

	e := NewCampaignEngine(f.deps)
	if err := e.Handle(context.Background(), testConv(0), state, textMessage(0, "да")); err == nil {
		t.Fatal("expected commit to fail")
	}

	campaigns, err := f.store.ListCampaigns(orgID)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(campaigns) != 0 {
		t.Fatalf("campaign row written despite sub-channel failure: %d rows", len(campaigns))
	}
	// State survives so the user can retry the confirmation.
	after := f.mustState(t, testConv(0))
	if after.CurrentState != string(StateWaitingConfirmation) {
		t.Fatalf("expected confirmation state kept, got %s", after.CurrentState)
	}
}

func TestCampaignDeleteConfirmation(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	id := seedCampaignWithSubChannel(t, f, orgID, 5)

	e := NewCampaignEngine(f.deps)
	if err := e.StartDelete(context.Background(), testConv(5)); err != nil {
		t.Fatalf("start delete: %v", err)
	}
	state := f.mustState(t, testConv(5))
	if err := e.Handle(context.Background(), testConv(5), state, textMessage(5, "да")); err != nil {
		t.Fatalf("confirm delete: %v", err)
	}

	campaigns, err := f.store.ListCampaigns(orgID)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	for _, c := range campaigns {
		if c.ID == id && c.VisibleToUser {
			t.Fatal("campaign still visible after delete")
		}
	}
	if _, err := f.store.GetSubChannel(1000, 5); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sub-channel row removed, err=%v", err)
	}
}
