package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// seedWave creates the plan and wave chain templates hang off.
func seedWave(t *testing.T, f *fixture, orgID int64) (planID, waveID int64) {
	t.Helper()
	campaignID := seedCampaignWithSubChannel(t, f, orgID, 5)
	planID, err := f.store.CreateContentPlan(models.ContentPlan{
		OrgID:      orgID,
		CampaignID: campaignID,
		Audience:   "b2b",
		Style:      "formal",
		WaveCount:  1,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	waveID, err = f.store.CreateWave(models.Wave{
		PlanID:     planID,
		CampaignID: campaignID,
		Subject:    "Первая волна",
		SendDate:   time.Date(2030, 6, 11, 0, 0, 0, 0, time.UTC),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed wave: %v", err)
	}
	return planID, waveID
}

func seedTemplate(t *testing.T, f *fixture, waveID int64, body string) int64 {
	t.Helper()
	id, err := f.store.CreateTemplate(models.Template{
		WaveID:    waveID,
		Subject:   "Первая волна",
		Body:      body,
		Active:    true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return id
}

func TestTemplateCreateCommitSchedulesDrafts(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	_, waveID := seedWave(t, f, orgID)
	f.llm.generated = "Здравствуйте! Приглашаем на распродажу."

	e := NewTemplateEngine(f.deps)
	conv := testConv(5)
	// Single plan and single wave: selection is skipped entirely.
	if err := e.StartCreate(context.Background(), conv); err != nil {
		t.Fatalf("start create: %v", err)
	}
	state := f.mustState(t, conv)
	if state.CurrentState != string(StateWaitingUserRequest) {
		t.Fatalf("expected user-request state, got %s", state.CurrentState)
	}

	if err := e.Handle(context.Background(), conv, state, textMessage(5, "пригласи на распродажу")); err != nil {
		t.Fatalf("request: %v", err)
	}
	state = f.mustState(t, conv)
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "да")); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	tpl, err := f.store.ActiveTemplateForWave(waveID)
	if err != nil {
		t.Fatalf("active template: %v", err)
	}
	if tpl.Body != "Здравствуйте! Приглашаем на распродажу." || tpl.UserRequest != "пригласи на распродажу" {
		t.Fatalf("unexpected template: %+v", tpl)
	}
	if len(f.jobs.scheduled) != 1 || f.jobs.scheduled[0][0] != waveID {
		t.Fatalf("draft job not scheduled: %v", f.jobs.scheduled)
	}
	f.noState(t, conv)
}

func TestTemplateEditRetryBranch(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	_, waveID := seedWave(t, f, orgID)
	oldID := seedTemplate(t, f, waveID, "Первый вариант")

	e := NewTemplateEngine(f.deps)
	conv := testConv(5)
	if err := e.StartEdit(context.Background(), conv); err != nil {
		t.Fatalf("start edit: %v", err)
	}
	state := f.mustState(t, conv)
	if state.CurrentState != string(StateWaitingComments) {
		t.Fatalf("expected comments state, got %s", state.CurrentState)
	}

	f.llm.generated = "Второй вариант"
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "сделай короче")); err != nil {
		t.Fatalf("comments: %v", err)
	}
	state = f.mustState(t, conv)
	if state.CurrentState != string(StateWaitingConfirmation) {
		t.Fatalf("expected confirmation, got %s", state.CurrentState)
	}

	// Rejecting the rewrite re-opens the comments state, as many times as needed.
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "нет")); err != nil {
		t.Fatalf("reject: %v", err)
	}
	state = f.mustState(t, conv)
	if state.CurrentState != string(StateWaitingComments) {
		t.Fatalf("expected retry branch back to comments, got %s", state.CurrentState)
	}

	f.llm.generated = "Третий вариант"
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "добавь приветствие")); err != nil {
		t.Fatalf("second comments: %v", err)
	}
	state = f.mustState(t, conv)
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "да")); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Edit is append-only: the new row supersedes, the old row is untouched.
	current, err := f.store.ActiveTemplateForWave(waveID)
	if err != nil {
		t.Fatalf("active template: %v", err)
	}
	if current.ID == oldID || current.Body != "Третий вариант" {
		t.Fatalf("expected new row to supersede, got %+v", current)
	}
	old, err := f.store.GetTemplate(oldID)
	if err != nil {
		t.Fatalf("old template: %v", err)
	}
	if !old.Active || old.Body != "Первый вариант" {
		t.Fatalf("old row mutated: %+v", old)
	}
}

func TestTemplateDeleteIsSoft(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	_, waveID := seedWave(t, f, orgID)
	id := seedTemplate(t, f, waveID, "Текст письма")

	e := NewTemplateEngine(f.deps)
	conv := testConv(5)
	if err := e.StartDelete(context.Background(), conv); err != nil {
		t.Fatalf("start delete: %v", err)
	}
	state := f.mustState(t, conv)
	if state.CurrentState != string(StateWaitingConfirmation) {
		t.Fatalf("expected confirmation, got %s", state.CurrentState)
	}
	if err := e.Handle(context.Background(), conv, state, textMessage(5, "да")); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// The row survives with the active flag dropped.
	tpl, err := f.store.GetTemplate(id)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tpl.Active {
		t.Fatal("template still active after delete")
	}
	if tpl.Body != "Текст письма" {
		t.Fatalf("template content lost: %+v", tpl)
	}
	if _, err := f.store.ActiveTemplateForWave(waveID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted template still returned as active, err=%v", err)
	}
}

func TestTemplateCreateWithoutPlans(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)

	e := NewTemplateEngine(f.deps)
	if err := e.StartCreate(context.Background(), testConv(5)); err != nil {
		t.Fatalf("start create: %v", err)
	}
	if !f.msg.sentContaining("Контент-планов пока нет") {
		t.Fatalf("expected missing-plan reply, got %v", f.msg.sent)
	}
	f.noState(t, testConv(5))
}
