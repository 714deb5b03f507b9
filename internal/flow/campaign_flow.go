package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

const campaignExtractInstruction = `Ты извлекаешь параметры рассылочной кампании из текста пользователя.
Верни JSON-объект с ключами:
  "start_date" — дата начала в формате DD.MM.YYYY или пустая строка;
  "end_date" — дата окончания в формате DD.MM.YYYY или пустая строка;
  "filters" — объект с критериями отбора адресатов (допустимые ключи: email, name, company, position, region, phone, subscribed, employees) или пустой объект.
Не добавляй других ключей и не придумывай значения, которых нет в тексте.`

const filtersExtractInstruction = `Ты извлекаешь критерии отбора адресатов из текста пользователя.
Верни JSON-объект, где ключи выбраны из: email, name, company, position, region, phone, subscribed, employees.
Значение для region — список строк, для subscribed — true/false, для employees — объект вида {"gt": число} или {"lt": число}, для остальных — строка.
Если критериев нет, верни пустой объект {}.`

const (
	msgAskStartDate = "Укажите дату начала кампании в формате ДД.ММ.ГГГГ."
	msgAskEndDate   = "Укажите дату окончания кампании в формате ДД.ММ.ГГГГ."
	msgBadDate      = "Не удалось разобрать дату. Укажите её в формате ДД.ММ.ГГГГ, например 01.09.2026."
)

// CampaignEngine drives campaign creation, deletion and listing. Creation
// collects name, dates and segmentation filters, then commits: the messaging
// sub-channel is created first and the row write is skipped entirely when
// that side effect fails.
type CampaignEngine struct {
	deps *Deps
}

func NewCampaignEngine(deps *Deps) *CampaignEngine {
	return &CampaignEngine{deps: deps}
}

// StartCreate opens the campaign-creation flow in the general channel.
func (e *CampaignEngine) StartCreate(ctx context.Context, conv models.ConversationContext, cls models.Classification) error {
	if _, err := e.deps.org(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	data := map[string]string{}
	if name := strings.TrimSpace(cls.Params[KeyName]); name != "" {
		data[KeyName] = name
		if err := e.deps.States.Set(ctx, conv, FlowCampaignCreate, StateWaitingCampaignData, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Опишите кампанию: даты проведения и по каким критериям отбирать адресатов.")
		return nil
	}
	if err := e.deps.States.Set(ctx, conv, FlowCampaignCreate, StateWaitingCampaignName, data); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, "Как назовём кампанию?")
	return nil
}

// StartDelete targets the sub-channel's campaign when issued inside one, and
// the organization's active campaign otherwise.
func (e *CampaignEngine) StartDelete(ctx context.Context, conv models.ConversationContext) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	var campaign *models.Campaign
	if conv.SubChannelID != 0 {
		campaign, err = e.deps.Store.GetCampaignBySubChannel(org.ID, conv.SubChannelID)
	} else {
		campaign, err = e.deps.Store.ActiveCampaign(org.ID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, "Активная кампания не найдена, удалять нечего.")
			return nil
		}
		return err
	}
	data := map[string]string{
		KeyCampaignID:   strconv.FormatInt(campaign.ID, 10),
		KeySubChannelID: strconv.Itoa(campaign.SubChannelID),
		KeyName:         campaign.Name,
	}
	if err := e.deps.States.Set(ctx, conv, FlowCampaignDelete, StateWaitingConfirmation, data); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Удалить кампанию \"%s\"? (да/нет)", campaign.Name))
	return nil
}

// View lists the organization's campaigns still visible to the user.
func (e *CampaignEngine) View(ctx context.Context, conv models.ConversationContext) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	campaigns, err := e.deps.Store.ListCampaigns(org.ID)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	var b strings.Builder
	b.WriteString("Ваши кампании:\n")
	shown := 0
	for _, c := range campaigns {
		if !c.VisibleToUser {
			continue
		}
		shown++
		fmt.Fprintf(&b, "%d. %s — с %s по %s\n", shown, c.Name, FormatUserDate(c.StartDate), FormatUserDate(c.EndDate))
	}
	if shown == 0 {
		e.deps.reply(ctx, conv, "Кампаний пока нет. Напишите \"создать кампанию\", чтобы начать.")
		return nil
	}
	e.deps.reply(ctx, conv, b.String())
	return nil
}

func (e *CampaignEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	switch FlowType(state.FlowType) {
	case FlowCampaignCreate:
		return e.handleCreate(ctx, conv, state, in)
	case FlowCampaignDelete:
		return e.handleDelete(ctx, conv, state, in)
	default:
		e.deps.abort(ctx, conv, msgNotUnderstood)
		return nil
	}
}

func (e *CampaignEngine) handleCreate(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingCampaignName:
		if text == "" {
			e.deps.reply(ctx, conv, "Напишите название кампании текстом.")
			return nil
		}
		data[KeyName] = text
		if err := e.deps.States.Set(ctx, conv, FlowCampaignCreate, StateWaitingCampaignData, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Опишите кампанию: даты проведения и по каким критериям отбирать адресатов.")
		return nil

	case StateWaitingCampaignData:
		if text != "" {
			e.extractCampaignFields(ctx, text, data)
		}
		return e.advanceCreate(ctx, conv, data)

	case StateWaitingStartDate:
		d, ok := ParseUserDate(text)
		if !ok {
			e.deps.reply(ctx, conv, msgBadDate)
			return nil
		}
		data[KeyStartDate] = FormatUserDate(d)
		return e.advanceCreate(ctx, conv, data)

	case StateWaitingEndDate:
		d, ok := ParseUserDate(text)
		if !ok {
			e.deps.reply(ctx, conv, msgBadDate)
			return nil
		}
		if start, okStart := ParseUserDate(data[KeyStartDate]); okStart && d.Before(start) {
			e.deps.reply(ctx, conv, "Дата окончания раньше даты начала. Укажите другую дату.")
			return nil
		}
		data[KeyEndDate] = FormatUserDate(d)
		return e.advanceCreate(ctx, conv, data)

	case StateWaitingFilters:
		filters, ok := e.parseFiltersAnswer(ctx, text)
		if !ok {
			e.deps.reply(ctx, conv, "Не удалось разобрать критерии. Опишите их ещё раз, например: регионы Москва и Казань, только подписанные.")
			return nil
		}
		encoded, err := json.Marshal(filters)
		if err != nil {
			return fmt.Errorf("encode filters: %w", err)
		}
		data[KeyFilters] = string(encoded)
		return e.advanceCreate(ctx, conv, data)

	case StateWaitingConfirmation:
		switch ParseConfirmation(text) {
		case ConfirmYes:
			return e.commitCreate(ctx, conv, data)
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Создание кампании отменено.")
			return nil
		default:
			e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
			return nil
		}
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

// extractCampaignFields runs the structured extractor over a free-form
// description and copies every field that passes validation into the data
// bag. Extraction failures leave the bag untouched; the missing-field loop
// then collects everything one question at a time.
func (e *CampaignEngine) extractCampaignFields(ctx context.Context, text string, data map[string]string) {
	extracted, err := e.deps.LLM.ExtractJSON(ctx, campaignExtractInstruction, text)
	if err != nil {
		slog.Warn("CampaignEngine.extractCampaignFields extraction failed", "error", err)
		return
	}
	if raw, _ := extracted[KeyStartDate].(string); raw != "" {
		if d, ok := ParseUserDate(raw); ok {
			data[KeyStartDate] = FormatUserDate(d)
		}
	}
	if raw, _ := extracted[KeyEndDate].(string); raw != "" {
		if d, ok := ParseUserDate(raw); ok {
			data[KeyEndDate] = FormatUserDate(d)
		}
	}
	if rawFilters, ok := extracted[KeyFilters].(map[string]any); ok && len(rawFilters) > 0 {
		normalized := models.NormalizeFilters(rawFilters)
		if err := models.ValidateFilters(normalized); err != nil {
			slog.Warn("CampaignEngine.extractCampaignFields rejected filters", "error", err)
			return
		}
		if encoded, err := json.Marshal(normalized); err == nil {
			data[KeyFilters] = string(encoded)
		}
	}
}

// parseFiltersAnswer interprets the dedicated filters question. A negative
// answer means "no filters"; anything else goes through the extractor.
func (e *CampaignEngine) parseFiltersAnswer(ctx context.Context, text string) (map[string]any, bool) {
	if ParseConfirmation(text) == ConfirmNo || text == "-" {
		return map[string]any{}, true
	}
	extracted, err := e.deps.LLM.ExtractJSON(ctx, filtersExtractInstruction, text)
	if err != nil {
		return nil, false
	}
	normalized := models.NormalizeFilters(extracted)
	if err := models.ValidateFilters(normalized); err != nil {
		return nil, false
	}
	return normalized, true
}

// advanceCreate asks for the first missing field in fixed priority order,
// name first, then dates, then filters, or renders the confirmation summary
// once everything is collected.
func (e *CampaignEngine) advanceCreate(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	type step struct {
		key    DataKey
		state  StateType
		prompt string
	}
	steps := []step{
		{KeyName, StateWaitingCampaignName, "Как назовём кампанию?"},
		{KeyStartDate, StateWaitingStartDate, msgAskStartDate},
		{KeyEndDate, StateWaitingEndDate, msgAskEndDate},
		{KeyFilters, StateWaitingFilters, "По каким критериям отбирать адресатов? Если отбор не нужен, ответьте \"нет\"."},
	}
	for _, s := range steps {
		if data[s.key] == "" {
			if err := e.deps.States.Set(ctx, conv, FlowCampaignCreate, s.state, data); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, s.prompt)
			return nil
		}
	}
	if err := e.deps.States.Set(ctx, conv, FlowCampaignCreate, StateWaitingConfirmation, data); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf(
		"Проверьте кампанию:\nНазвание: %s\nНачало: %s\nОкончание: %s\nКритерии: %s\n\nСоздаём? (да/нет)",
		data[KeyName], data[KeyStartDate], data[KeyEndDate], describeFilters(data[KeyFilters])))
	return nil
}

// commitCreate performs the terminal transition. The sub-channel is created
// before any row write; a retried commit that finds an existing row for the
// same sub-channel updates it instead of inserting a duplicate.
func (e *CampaignEngine) commitCreate(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.abort(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	startDate, ok := ParseUserDate(data[KeyStartDate])
	if !ok {
		e.deps.abort(ctx, conv, msgBadDate)
		return nil
	}
	endDate, ok := ParseUserDate(data[KeyEndDate])
	if !ok {
		e.deps.abort(ctx, conv, msgBadDate)
		return nil
	}
	var filters map[string]any
	if raw := data[KeyFilters]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return fmt.Errorf("decode filters: %w", err)
		}
	}

	subChannelID, err := e.deps.Msg.CreateSubChannel(ctx, conv.ChannelID, data[KeyName])
	if err != nil {
		return fmt.Errorf("create sub-channel: %w", err)
	}
	if err := e.deps.Store.SaveSubChannel(models.SubChannel{
		ChannelID:    conv.ChannelID,
		SubChannelID: subChannelID,
		Name:         data[KeyName],
		CreatedAt:    time.Now(),
	}); err != nil {
		return fmt.Errorf("save sub-channel: %w", err)
	}
	if _, err := e.deps.Store.UpsertCampaignBySubChannel(models.Campaign{
		OrgID:         org.ID,
		Name:          data[KeyName],
		StartDate:     startDate,
		EndDate:       endDate,
		Filters:       models.NormalizeFilters(filters),
		SubChannelID:  subChannelID,
		Status:        models.CampaignStatusActive,
		VisibleToUser: true,
		CreatedAt:     time.Now(),
	}); err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Кампания \"%s\" создана. Для неё открыт отдельный канал, там можно составить контент-план и шаблоны.", data[KeyName]))
	if err := e.deps.Msg.SendMessage(ctx, conv.ChannelID, subChannelID, fmt.Sprintf("Канал кампании \"%s\". Здесь доступны: контент-план, сегменты, шаблоны, удаление кампании.", data[KeyName])); err != nil {
		slog.Warn("CampaignEngine.commitCreate greeting failed", "error", err)
	}
	return nil
}

func (e *CampaignEngine) handleDelete(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	switch ParseConfirmation(in.Text) {
	case ConfirmYes:
		id, err := strconv.ParseInt(state.Data[KeyCampaignID], 10, 64)
		if err != nil {
			e.deps.abort(ctx, conv, msgTransient)
			return fmt.Errorf("parse campaign id %q: %w", state.Data[KeyCampaignID], err)
		}
		if err := e.deps.Store.SoftDeleteCampaign(id); err != nil {
			return fmt.Errorf("soft delete campaign %d: %w", id, err)
		}
		if subChannelID, _ := strconv.Atoi(state.Data[KeySubChannelID]); subChannelID != 0 {
			if err := e.deps.Store.DeleteSubChannel(conv.ChannelID, subChannelID); err != nil && !errors.Is(err, store.ErrNotFound) {
				slog.Warn("CampaignEngine.handleDelete failed to remove sub-channel row", "error", err)
			}
		}
		if err := e.deps.States.Clear(ctx, conv); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Кампания \"%s\" удалена.", state.Data[KeyName]))
		return nil
	case ConfirmNo:
		e.deps.abort(ctx, conv, "Кампания не удалена.")
		return nil
	default:
		e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
		return nil
	}
}

// describeFilters renders stored filter JSON for the confirmation summary.
func describeFilters(raw string) string {
	if raw == "" || raw == "{}" {
		return "без отбора"
	}
	return raw
}
