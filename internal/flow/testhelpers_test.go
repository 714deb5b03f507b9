package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// fakeLLM returns canned results for each adapter method.
type fakeLLM struct {
	classification models.Classification
	extracted      map[string]any
	extractErr     error
	generated      string
	generateErr    error
	generateCalls  int
}

func (f *fakeLLM) Classify(ctx context.Context, text string) models.Classification {
	return f.classification
}

func (f *fakeLLM) ExtractJSON(ctx context.Context, instruction, text string) (map[string]any, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extracted, nil
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generated, nil
}

// fakeMessenger records outbound traffic and hands out sequential sub-channel ids.
type fakeMessenger struct {
	sent          []string
	files         []string
	nextSub       int
	subErr        error
	createdSubs   []string
	lastChannelID int64
}

func (f *fakeMessenger) BotID() int64 { return 99 }

func (f *fakeMessenger) SendMessage(ctx context.Context, channelID int64, subChannelID int, text string) error {
	f.lastChannelID = channelID
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) SendFile(ctx context.Context, channelID int64, subChannelID int, data []byte, fileName string) error {
	f.files = append(f.files, fileName)
	return nil
}

func (f *fakeMessenger) CreateSubChannel(ctx context.Context, channelID int64, name string) (int, error) {
	if f.subErr != nil {
		return 0, f.subErr
	}
	f.nextSub++
	f.createdSubs = append(f.createdSubs, name)
	return f.nextSub, nil
}

func (f *fakeMessenger) Updates() <-chan models.Inbound { return nil }

func (f *fakeMessenger) Start(ctx context.Context) error { return nil }

func (f *fakeMessenger) Stop() {}

func (f *fakeMessenger) lastMessage() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) sentContaining(substr string) bool {
	for _, m := range f.sent {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// fakeSink collects appended rows in memory.
type fakeSink struct {
	rows [][]string
}

func (f *fakeSink) AppendRows(sheetID, sheetName string, rows [][]string) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeSink) CreateWorkbook(rows [][]string, fileName string) (string, error) {
	f.rows = append(f.rows, rows...)
	return "", fmt.Errorf("workbook not supported in fake")
}

// fakeDrafts records scheduled jobs.
type fakeDrafts struct {
	scheduled [][2]int64
}

func (f *fakeDrafts) Schedule(waveID, templateID int64) {
	f.scheduled = append(f.scheduled, [2]int64{waveID, templateID})
}

type fixture struct {
	deps  *Deps
	store *store.InMemoryStore
	llm   *fakeLLM
	msg   *fakeMessenger
	sink  *fakeSink
	jobs  *fakeDrafts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	llm := &fakeLLM{}
	msg := &fakeMessenger{}
	sink := &fakeSink{}
	jobs := &fakeDrafts{}
	return &fixture{
		deps: &Deps{
			States: NewStateManager(st),
			Store:  st,
			LLM:    llm,
			Msg:    msg,
			Sheets: sink,
			Drafts: jobs,
		},
		store: st,
		llm:   llm,
		msg:   msg,
		sink:  sink,
		jobs:  jobs,
	}
}

// seedOrg registers an organization for the default test channel.
func (f *fixture) seedOrg(t *testing.T) int64 {
	t.Helper()
	id, err := f.store.CreateOrganization(models.Organization{
		ChannelID: 1000,
		OwnerID:   7,
		Name:      "Acme",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id
}

func testConv(subChannelID int) models.ConversationContext {
	return models.ConversationContext{BotID: 99, UserID: 7, ChannelID: 1000, SubChannelID: subChannelID}
}

func textMessage(subChannelID int, text string) models.Inbound {
	return models.Inbound{ChannelID: 1000, SubChannelID: subChannelID, UserID: 7, Text: text}
}

// mustState fetches the conversation state and fails the test when absent.
func (f *fixture) mustState(t *testing.T, conv models.ConversationContext) *models.ConversationState {
	t.Helper()
	state, err := f.deps.States.Get(context.Background(), conv)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state == nil {
		t.Fatal("expected conversation state, got none")
	}
	return state
}

// noState asserts no conversation state exists.
func (f *fixture) noState(t *testing.T, conv models.ConversationContext) {
	t.Helper()
	state, err := f.deps.States.Get(context.Background(), conv)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no state, got flow=%s state=%s", state.FlowType, state.CurrentState)
	}
}
