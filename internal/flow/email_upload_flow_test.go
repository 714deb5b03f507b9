package flow

import (
	"context"
	"testing"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

func uploadFixture(t *testing.T) (*fixture, int64) {
	t.Helper()
	f := newFixture(t)
	orgID := f.seedOrg(t)
	f.llm.extracted = map[string]any{
		"email":    "Email",
		"name":     "Имя",
		"company":  "",
		"position": "",
		"region":   "Регион",
		"phone":    "",
	}
	return f, orgID
}

func csvDoc(content string) *models.Document {
	return &models.Document{Name: "leads.csv", Data: []byte(content)}
}

func TestEmailUploadCleanFileCommitsDirectly(t *testing.T) {
	f, orgID := uploadFixture(t)
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Email,Имя,Регион\na@x.com,Анна,Москва\nb@x.com,Борис,Казань\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}

	leads, err := f.store.QueryRelation(store.LeadTableName(orgID))
	if err != nil {
		t.Fatalf("query leads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	f.noState(t, testConv(0))
}

func TestEmailUploadNormalizesJunkAroundSingleAddress(t *testing.T) {
	f, orgID := uploadFixture(t)
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Email,Имя,Регион\nАнна a@x.com,Анна,Москва\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}

	leads, err := f.store.QueryRelation(store.LeadTableName(orgID))
	if err != nil {
		t.Fatalf("query leads: %v", err)
	}
	if len(leads) != 1 || leads[0]["email"] != "a@x.com" {
		t.Fatalf("expected the bare address stored, got %v", leads)
	}
}

func TestEmailUploadMultiEmailPausesForChoice(t *testing.T) {
	f, orgID := uploadFixture(t)
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Email,Имя,Регион\n\"a@x.com, b@x.com\",Анна,Москва\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}

	state := f.mustState(t, testConv(0))
	if state.CurrentState != string(StateDuplicateEmailCheck) {
		t.Fatalf("expected duplicate-email pause, got state %s", state.CurrentState)
	}
	// Nothing written until the user decides.
	if exists, _ := f.store.RelationExists(store.LeadTableName(orgID)); exists {
		t.Fatal("lead table created before user choice")
	}
}

func TestEmailUploadSplitProducesOneRowPerAddress(t *testing.T) {
	f, orgID := uploadFixture(t)
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Email,Имя,Регион\n\"a@x.com, b@x.com\",Анна,Москва\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := f.mustState(t, testConv(0))
	if err := e.Handle(context.Background(), testConv(0), state, textMessage(0, "разделить")); err != nil {
		t.Fatalf("split: %v", err)
	}

	leads, err := f.store.QueryRelation(store.LeadTableName(orgID))
	if err != nil {
		t.Fatalf("query leads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 rows after split, got %d", len(leads))
	}
	seen := map[string]bool{}
	for _, lead := range leads {
		email := lead.Email()
		if email != "a@x.com" && email != "b@x.com" {
			t.Fatalf("unexpected email cell %q", email)
		}
		seen[email] = true
		if lead["name"] != "Анна" || lead["region"] != "Москва" {
			t.Fatalf("other fields not duplicated: %v", lead)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("addresses not unique per row: %v", seen)
	}
	f.noState(t, testConv(0))
}

func TestEmailUploadDropsRowsWithoutEmail(t *testing.T) {
	f, orgID := uploadFixture(t)
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Email,Имя,Регион\na@x.com,Анна,Москва\nне указан,Борис,Казань\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}

	leads, err := f.store.QueryRelation(store.LeadTableName(orgID))
	if err != nil {
		t.Fatalf("query leads: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}
	if !f.msg.sentContaining("пропущено: 1") {
		t.Fatalf("dropped-row count not reported: %v", f.msg.sent)
	}
}

func TestEmailUploadMissingEmailColumn(t *testing.T) {
	f, _ := uploadFixture(t)
	f.llm.extracted = map[string]any{"email": "", "name": "Имя"}
	e := NewEmailUploadEngine(f.deps)

	in := textMessage(0, "")
	in.Document = csvDoc("Имя,Регион\nАнна,Москва\n")
	if err := e.Start(context.Background(), testConv(0), in); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !f.msg.sentContaining("не нашлась колонка") {
		t.Fatalf("expected missing-column reply, got %v", f.msg.sent)
	}
}

func TestSplitEmails(t *testing.T) {
	got := splitEmails("a@x.com, b@x.com; c@x.com")
	if len(got) != 3 {
		t.Fatalf("expected 3 addresses, got %v", got)
	}
	if got := splitEmails("нет адреса"); got != nil {
		t.Fatalf("expected no addresses, got %v", got)
	}
}
