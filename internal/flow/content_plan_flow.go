package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

const audienceStyleInstruction = `Ты определяешь аудиторию и стиль рассылки по описанию пользователя.
Верни JSON-объект с двумя ключами:
  "audience" — одно из значений: b2b, b2c, mixed;
  "style" — одно из значений: formal, friendly, expert.
Если по тексту определить значение нельзя, верни для него пустую строку.`

// firstWaveSubject labels the wave created together with a content plan.
const firstWaveSubject = "Первая волна"

var (
	allowedAudiences = map[string]bool{"b2b": true, "b2c": true, "mixed": true}
	allowedStyles    = map[string]bool{"formal": true, "friendly": true, "expert": true}
)

// ContentPlanEngine collects mailing constraints for the active campaign and
// commits a ContentPlan together with its first Wave. The wave date must be
// tomorrow or later at commit time.
type ContentPlanEngine struct {
	deps *Deps
	now  func() time.Time
}

func NewContentPlanEngine(deps *Deps) *ContentPlanEngine {
	return &ContentPlanEngine{deps: deps, now: time.Now}
}

// Start opens the flow inside a campaign sub-channel.
func (e *ContentPlanEngine) Start(ctx context.Context, conv models.ConversationContext) error {
	if _, err := e.deps.org(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	if err := e.deps.States.Set(ctx, conv, FlowContentPlan, StateWaitingRestrictedTopics, map[string]string{}); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, "Составим контент-план. Какие темы в письмах затрагивать нельзя? Если ограничений нет, ответьте \"нет\".")
	return nil
}

func (e *ContentPlanEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingRestrictedTopics:
		if text == "" {
			e.deps.reply(ctx, conv, "Перечислите запретные темы текстом или ответьте \"нет\".")
			return nil
		}
		if ParseConfirmation(text) == ConfirmNo {
			data[KeyRestrictedTopics] = ""
		} else {
			data[KeyRestrictedTopics] = text
		}
		if err := e.deps.States.Set(ctx, conv, FlowContentPlan, StateWaitingAudienceStyle, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Опишите, для кого письма и в каком тоне их писать.")
		return nil

	case StateWaitingAudienceStyle:
		audience, style, ok := e.extractAudienceStyle(ctx, text)
		if !ok {
			e.deps.reply(ctx, conv, "Не удалось определить аудиторию и стиль. Опишите подробнее: кому пишем и в каком тоне.")
			return nil
		}
		data[KeyAudience] = audience
		data[KeyStyle] = style
		if err := e.deps.States.Set(ctx, conv, FlowContentPlan, StateWaitingSendDate, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Когда отправляем первую волну? Дата в формате ДД.ММ.ГГГГ, не раньше завтрашнего дня.")
		return nil

	case StateWaitingSendDate:
		d, ok := ParseUserDate(text)
		if !ok {
			e.deps.reply(ctx, conv, msgBadDate)
			return nil
		}
		if !NextDayOrLater(d, e.now()) {
			e.deps.reply(ctx, conv, "Дата отправки должна быть не раньше завтрашнего дня. Укажите другую дату.")
			return nil
		}
		data[KeySendDate] = FormatUserDate(d)
		if err := e.deps.States.Set(ctx, conv, FlowContentPlan, StateWaitingConfirmation, data); err != nil {
			return err
		}
		topics := data[KeyRestrictedTopics]
		if topics == "" {
			topics = "нет"
		}
		e.deps.reply(ctx, conv, fmt.Sprintf(
			"Проверьте контент-план:\nЗапретные темы: %s\nАудитория: %s\nСтиль: %s\nПервая волна: %s\n\nСохраняем? (да/нет)",
			topics, data[KeyAudience], data[KeyStyle], data[KeySendDate]))
		return nil

	case StateWaitingConfirmation:
		switch ParseConfirmation(text) {
		case ConfirmYes:
			return e.commit(ctx, conv, data)
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Контент-план не сохранён.")
			return nil
		default:
			e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
			return nil
		}
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

// extractAudienceStyle delegates the free-text answer to the extractor and
// validates both values against the fixed vocabularies. Empty or off-list
// results are rejected so the state can re-prompt.
func (e *ContentPlanEngine) extractAudienceStyle(ctx context.Context, text string) (audience, style string, ok bool) {
	extracted, err := e.deps.LLM.ExtractJSON(ctx, audienceStyleInstruction, text)
	if err != nil {
		return "", "", false
	}
	audience, _ = extracted[KeyAudience].(string)
	style, _ = extracted[KeyStyle].(string)
	audience = strings.ToLower(strings.TrimSpace(audience))
	style = strings.ToLower(strings.TrimSpace(style))
	if !allowedAudiences[audience] || !allowedStyles[style] {
		return "", "", false
	}
	return audience, style, true
}

// commit resolves the active campaign and writes the plan plus its first
// wave. A missing campaign aborts with a user-visible message and no writes.
func (e *ContentPlanEngine) commit(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.abort(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	campaign, err := e.deps.Store.ActiveCampaign(org.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.abort(ctx, conv, "Активная кампания не найдена. Сначала создайте кампанию.")
			return nil
		}
		return err
	}
	sendDate, ok := ParseUserDate(data[KeySendDate])
	if !ok || !NextDayOrLater(sendDate, e.now()) {
		if err := e.deps.States.SetState(ctx, conv, FlowContentPlan, StateWaitingSendDate); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Дата отправки больше не подходит. Укажите новую дату в формате ДД.ММ.ГГГГ.")
		return nil
	}

	planID, err := e.deps.Store.CreateContentPlan(models.ContentPlan{
		OrgID:            org.ID,
		CampaignID:       campaign.ID,
		RestrictedTopics: data[KeyRestrictedTopics],
		Audience:         data[KeyAudience],
		Style:            data[KeyStyle],
		WaveCount:        1,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create content plan: %w", err)
	}
	if _, err := e.deps.Store.CreateWave(models.Wave{
		PlanID:     planID,
		CampaignID: campaign.ID,
		Subject:    firstWaveSubject,
		SendDate:   sendDate,
		CreatedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("create wave: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Контент-план сохранён, первая волна назначена на %s. Теперь можно сгенерировать шаблон письма.", data[KeySendDate]))
	return nil
}
