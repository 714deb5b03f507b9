package flow

import (
	"context"
	"testing"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

func TestSegmentRejectsUnknownFilterField(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	f.llm.extracted = map[string]any{"favorite_color": "green"}
	e := NewSegmentEngine(f.deps)
	ctx := context.Background()
	conv := testConv(5)

	if err := e.Start(ctx, conv); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "любители зелёного")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	// Stays on the same question for another try.
	state := f.mustState(t, conv)
	if StateType(state.CurrentState) != StateWaitingSegmentRequest {
		t.Fatalf("expected re-prompt, got %s", state.CurrentState)
	}
	if !f.msg.sentContaining("не распознана") {
		t.Fatalf("expected rejection message, got %q", f.msg.lastMessage())
	}
}

func TestSegmentEmptyExtractionReprompts(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t)
	f.llm.extracted = map[string]any{}
	e := NewSegmentEngine(f.deps)
	ctx := context.Background()
	conv := testConv(5)

	if err := e.Start(ctx, conv); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "что-нибудь")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if StateType(f.mustState(t, conv).CurrentState) != StateWaitingSegmentRequest {
		t.Fatal("empty criteria must not advance the flow")
	}
}

func TestSegmentCommitPopulatesFromLeadTable(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	leadTable := store.LeadTableName(orgID)
	if err := f.store.CreateRelation(leadTable, models.LeadColumns); err != nil {
		t.Fatalf("create lead table: %v", err)
	}
	rows := [][]string{
		{"a@x.com", "Анна", "Кофейня Север", "директор", "Москва", "", "true", "30"},
		{"b@x.com", "Борис", "Юг Трейд", "менеджер", "Казань", "", "false", "200"},
	}
	if err := f.store.InsertRows(leadTable, models.LeadColumns, rows); err != nil {
		t.Fatalf("insert leads: %v", err)
	}

	f.llm.extracted = map[string]any{"region": "Москва"}
	e := NewSegmentEngine(f.deps)
	ctx := context.Background()
	conv := testConv(5)

	if err := e.Start(ctx, conv); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "все из Москвы")); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "да")); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	f.noState(t, conv)

	tables, err := f.store.ListSegmentTables(orgID)
	if err != nil {
		t.Fatalf("list segment tables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("expected one segment summary, got %d", len(tables))
	}
	name := tables[0].TableName
	if name == "" || name == leadTable {
		t.Fatalf("unexpected segment table name %q", name)
	}
	segRows, err := f.store.QueryRelation(name)
	if err != nil {
		t.Fatalf("query segment table: %v", err)
	}
	if len(segRows) != 1 || segRows[0]["region"] != "Москва" {
		t.Fatalf("expected the single Moscow lead, got %v", segRows)
	}
	if !f.msg.sentContaining("Подходящих адресатов: 1") {
		t.Fatalf("expected match count in reply, got %q", f.msg.lastMessage())
	}
}

func TestSegmentCommitWithoutLeadTableStartsEmpty(t *testing.T) {
	f := newFixture(t)
	orgID := f.seedOrg(t)
	f.llm.extracted = map[string]any{"region": "Москва"}
	e := NewSegmentEngine(f.deps)
	ctx := context.Background()
	conv := testConv(5)

	if err := e.Start(ctx, conv); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "все из Москвы")); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := e.Handle(ctx, conv, f.mustState(t, conv), textMessage(5, "да")); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	tables, err := f.store.ListSegmentTables(orgID)
	if err != nil || len(tables) != 1 {
		t.Fatalf("expected segment summary without a lead base, got %v (%v)", tables, err)
	}
	if !f.msg.sentContaining("Подходящих адресатов: 0") {
		t.Fatalf("expected zero matches reported, got %q", f.msg.lastMessage())
	}
}
