package flow

import (
	"context"
	"testing"

	"github.com/groundworkhq/campaigner/internal/store"
)

func TestStateManagerUpdateDataCreatesMissingState(t *testing.T) {
	sm := NewStateManager(store.NewInMemoryStore())
	conv := testConv(0)

	if err := sm.UpdateData(context.Background(), conv, map[string]string{KeyName: "Acme"}); err != nil {
		t.Fatalf("update data: %v", err)
	}
	state, err := sm.Get(context.Background(), conv)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state == nil {
		t.Fatal("expected state created by UpdateData")
	}
	if state.Data[KeyName] != "Acme" {
		t.Fatalf("data not stored: %v", state.Data)
	}
}

func TestStateManagerUpdateDataMerges(t *testing.T) {
	sm := NewStateManager(store.NewInMemoryStore())
	conv := testConv(0)
	if err := sm.Set(context.Background(), conv, FlowCampaignCreate, StateWaitingStartDate, map[string]string{KeyName: "X"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := sm.UpdateData(context.Background(), conv, map[string]string{KeyStartDate: "01.09.2026"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	state, _ := sm.Get(context.Background(), conv)
	if state.Data[KeyName] != "X" || state.Data[KeyStartDate] != "01.09.2026" {
		t.Fatalf("merge lost data: %v", state.Data)
	}
	if state.CurrentState != string(StateWaitingStartDate) {
		t.Fatalf("UpdateData changed the state label: %s", state.CurrentState)
	}
}

func TestStateManagerContextIsolation(t *testing.T) {
	sm := NewStateManager(store.NewInMemoryStore())
	general := testConv(0)
	thread := testConv(5)

	if err := sm.Set(context.Background(), general, FlowOnboarding, StateWaitingCompanyName, nil); err != nil {
		t.Fatalf("set general: %v", err)
	}
	if err := sm.Set(context.Background(), thread, FlowContentPlan, StateWaitingSendDate, nil); err != nil {
		t.Fatalf("set thread: %v", err)
	}

	g, _ := sm.Get(context.Background(), general)
	th, _ := sm.Get(context.Background(), thread)
	if g.FlowType != string(FlowOnboarding) || th.FlowType != string(FlowContentPlan) {
		t.Fatalf("sub-channel state collided with general state: %s / %s", g.FlowType, th.FlowType)
	}

	if err := sm.Clear(context.Background(), thread); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if g, _ := sm.Get(context.Background(), general); g == nil {
		t.Fatal("clearing the thread context removed the general state")
	}
}
