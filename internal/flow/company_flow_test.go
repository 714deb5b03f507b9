package flow

import (
	"context"
	"testing"

	"github.com/groundworkhq/campaigner/internal/models"
)

func TestOnboardingAsksFieldsInOrderAndCommits(t *testing.T) {
	f := newFixture(t)
	e := NewCompanyEngine(f.deps)
	ctx := context.Background()
	conv := testConv(0)

	cls := models.Classification{Action: models.ActionAdd, Entity: models.EntityCompany, Params: map[string]string{KeyName: "Acme"}}
	if err := e.StartOnboarding(ctx, conv, cls); err != nil {
		t.Fatalf("StartOnboarding: %v", err)
	}
	state := f.mustState(t, conv)
	if StateType(state.CurrentState) != StateWaitingMission {
		t.Fatalf("name came from params, expected mission question, got %s", state.CurrentState)
	}

	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "Продаём кофе оптом")); err != nil {
		t.Fatalf("mission answer: %v", err)
	}
	if StateType(f.mustState(t, conv).CurrentState) != StateWaitingAudienceFAQ {
		t.Fatalf("expected audience question, got %s", f.mustState(t, conv).CurrentState)
	}

	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "Кофейни, спрашивают про доставку")); err != nil {
		t.Fatalf("faq answer: %v", err)
	}
	if StateType(f.mustState(t, conv).CurrentState) != StateWaitingConfirmation {
		t.Fatalf("expected confirmation, got %s", f.mustState(t, conv).CurrentState)
	}

	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "да")); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	f.noState(t, conv)

	org, err := f.store.GetOrganizationByChannel(1000)
	if err != nil {
		t.Fatalf("organization not created: %v", err)
	}
	if org.Name != "Acme" || org.OwnerID != 7 {
		t.Fatalf("unexpected organization: %+v", org)
	}
	profile, err := f.store.GetProfile(org.ID)
	if err != nil {
		t.Fatalf("profile not saved: %v", err)
	}
	if profile.Fields[KeyMission] != "Продаём кофе оптом" || profile.Fields[KeyFAQ] == "" {
		t.Fatalf("unexpected profile fields: %v", profile.Fields)
	}
}

func TestOnboardingLongMissionPrefillsFAQ(t *testing.T) {
	f := newFixture(t)
	f.llm.extracted = map[string]any{KeyFAQ: "малый бизнес, частые вопросы о ценах"}
	e := NewCompanyEngine(f.deps)
	ctx := context.Background()
	conv := testConv(0)

	cls := models.Classification{Params: map[string]string{KeyName: "Acme"}}
	if err := e.StartOnboarding(ctx, conv, cls); err != nil {
		t.Fatalf("StartOnboarding: %v", err)
	}
	long := "Мы региональный поставщик кофейного оборудования, работаем с малым бизнесом уже десять лет и помогаем открывать кофейни под ключ"
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, long)); err != nil {
		t.Fatalf("mission answer: %v", err)
	}
	state := f.mustState(t, conv)
	if StateType(state.CurrentState) != StateWaitingConfirmation {
		t.Fatalf("extractor filled the faq, expected confirmation, got %s", state.CurrentState)
	}
	if state.Data[KeyFAQ] != "малый бизнес, частые вопросы о ценах" {
		t.Fatalf("faq not prefilled: %v", state.Data)
	}
}

func TestOnboardingRejectedWhenCompanyExists(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	e := NewCompanyEngine(f.deps)

	if err := e.StartOnboarding(context.Background(), testConv(0), models.Classification{}); err != nil {
		t.Fatalf("StartOnboarding: %v", err)
	}
	f.noState(t, testConv(0))
	if !f.msg.sentContaining("уже зарегистрирована") {
		t.Fatalf("expected duplicate rejection, got %q", f.msg.lastMessage())
	}
}

func TestEditOverwriteRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	if err := f.store.SaveProfile(models.OrganizationProfile{
		OrgID:  orgID,
		Fields: map[string]string{KeyMission: "старая миссия"},
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	e := NewCompanyEngine(f.deps)
	ctx := context.Background()
	conv := testConv(0)

	cls := models.Classification{Params: map[string]string{KeyField: KeyMission}}
	if err := e.StartEdit(ctx, conv, cls); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "новая миссия")); err != nil {
		t.Fatalf("value answer: %v", err)
	}
	// Filled field, must not be replaced without a yes.
	if StateType(f.mustState(t, conv).CurrentState) != StateWaitingConfirmation {
		t.Fatalf("expected overwrite confirmation, got %s", f.mustState(t, conv).CurrentState)
	}
	profile, err := f.store.GetProfile(orgID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Fields[KeyMission] != "старая миссия" {
		t.Fatalf("field overwritten before confirmation: %v", profile.Fields)
	}

	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "да")); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	f.noState(t, conv)
	profile, err = f.store.GetProfile(orgID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Fields[KeyMission] != "новая миссия" {
		t.Fatalf("confirmed overwrite not applied: %v", profile.Fields)
	}
}

func TestEditNewFieldCommitsWithoutConfirmation(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	e := NewCompanyEngine(f.deps)
	ctx := context.Background()
	conv := testConv(0)

	if err := e.StartEdit(ctx, conv, models.Classification{}); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "Сайт компании")); err != nil {
		t.Fatalf("field name: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(0, "acme.example")); err != nil {
		t.Fatalf("field value: %v", err)
	}
	f.noState(t, conv)
	profile, err := f.store.GetProfile(orgID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Fields["сайт_компании"] != "acme.example" {
		t.Fatalf("normalized field not saved: %v", profile.Fields)
	}
}
