package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// SegmentEngine turns one free-text description into a validated filter map
// and materializes it as a dedicated table plus a summary row. When the
// organization already has leads, the matching ones are copied in.
type SegmentEngine struct {
	deps *Deps
}

func NewSegmentEngine(deps *Deps) *SegmentEngine {
	return &SegmentEngine{deps: deps}
}

func (e *SegmentEngine) Start(ctx context.Context, conv models.ConversationContext) error {
	if _, err := e.deps.org(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	if err := e.deps.States.Set(ctx, conv, FlowSegmentCreate, StateWaitingSegmentRequest, map[string]string{}); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, "Опишите сегмент: по каким признакам отобрать адресатов? Например: компании из Москвы и Казани, больше 50 сотрудников.")
	return nil
}

func (e *SegmentEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingSegmentRequest:
		if text == "" {
			e.deps.reply(ctx, conv, "Опишите сегмент текстом.")
			return nil
		}
		extracted, err := e.deps.LLM.ExtractJSON(ctx, filtersExtractInstruction, text)
		if err != nil {
			e.deps.reply(ctx, conv, msgTransient)
			return nil
		}
		filters := models.NormalizeFilters(extracted)
		if len(filters) == 0 {
			e.deps.reply(ctx, conv, "Не удалось выделить ни одного критерия. Опишите сегмент подробнее.")
			return nil
		}
		if err := models.ValidateFilters(filters); err != nil {
			slog.Warn("SegmentEngine rejected filters", "error", err)
			e.deps.reply(ctx, conv, "Часть критериев не распознана. Используйте регион, компанию, должность, подписку или число сотрудников.")
			return nil
		}
		encoded, err := json.Marshal(filters)
		if err != nil {
			return fmt.Errorf("encode filters: %w", err)
		}
		data[KeyFilters] = string(encoded)
		data[KeyUserRequest] = text
		if err := e.deps.States.Set(ctx, conv, FlowSegmentCreate, StateWaitingConfirmation, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Создаю сегмент с критериями: %s\n\nВерно? (да/нет)", string(encoded)))
		return nil

	case StateWaitingConfirmation:
		switch ParseConfirmation(text) {
		case ConfirmYes:
			return e.commit(ctx, conv, data)
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Сегмент не создан.")
			return nil
		default:
			e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
			return nil
		}
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

func (e *SegmentEngine) commit(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.abort(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	var filters map[string]any
	if err := json.Unmarshal([]byte(data[KeyFilters]), &filters); err != nil {
		e.deps.abort(ctx, conv, msgTransient)
		return fmt.Errorf("decode filters: %w", err)
	}

	existing, err := e.deps.Store.ListSegmentTables(org.ID)
	if err != nil {
		return fmt.Errorf("list segment tables: %w", err)
	}
	name := fmt.Sprintf("segment_org_%d_%d", org.ID, len(existing)+1)

	columns := make([]string, 0, len(filters))
	for col := range filters {
		columns = append(columns, col)
	}
	if err := e.deps.Store.CreateRelation(name, columns); err != nil {
		return fmt.Errorf("create segment table %s: %w", name, err)
	}
	if err := e.deps.Store.SaveSegmentTable(models.SegmentTable{
		OrgID:       org.ID,
		TableName:   name,
		Description: data[KeyFilters],
		CreatedAt:   time.Now(),
	}); err != nil {
		return fmt.Errorf("save segment summary: %w", err)
	}

	// Populate from the lead table when one exists. A missing base is not an
	// error, the segment just starts empty.
	matched := 0
	leadTable := store.LeadTableName(org.ID)
	if exists, err := e.deps.Store.RelationExists(leadTable); err == nil && exists {
		leads, err := e.deps.Store.QueryRelation(leadTable)
		if err != nil {
			return fmt.Errorf("query lead table: %w", err)
		}
		var rows [][]string
		for _, lead := range leads {
			if !models.MatchLead(lead, filters) {
				continue
			}
			row := make([]string, len(columns))
			for i, col := range columns {
				row[i] = lead[col]
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			if err := e.deps.Store.InsertRows(name, columns, rows); err != nil {
				return fmt.Errorf("populate segment table %s: %w", name, err)
			}
		}
		matched = len(rows)
	}

	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Сегмент создан, таблица %s. Подходящих адресатов: %d.", name, matched))
	return nil
}
