package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

const templateSystemPrompt = `Ты пишешь email-рассылку для компании. Пиши только текст письма,
без пояснений и без темы. Учитывай профиль компании, ограничения контент-плана и пожелания пользователя.`

const templateRewritePrompt = `Ты редактируешь готовое email-письмо по замечаниям пользователя.
Сохрани смысл и структуру, внеси только запрошенные правки. Верни только текст письма.`

// TemplateEngine drives template creation, append-only editing and soft
// deletion. All three start by walking the content-plan and wave lists of
// the organization; creation ends by scheduling draft generation for the
// wave's audience.
type TemplateEngine struct {
	deps *Deps
}

func NewTemplateEngine(deps *Deps) *TemplateEngine {
	return &TemplateEngine{deps: deps}
}

func (e *TemplateEngine) StartCreate(ctx context.Context, conv models.ConversationContext) error {
	return e.startSelection(ctx, conv, FlowTemplateCreate)
}

func (e *TemplateEngine) StartEdit(ctx context.Context, conv models.ConversationContext) error {
	return e.startSelection(ctx, conv, FlowTemplateEdit)
}

func (e *TemplateEngine) StartDelete(ctx context.Context, conv models.ConversationContext) error {
	return e.startSelection(ctx, conv, FlowTemplateDelete)
}

// startSelection begins plan selection, skipping the question when there is
// only one plan to choose from.
func (e *TemplateEngine) startSelection(ctx context.Context, conv models.ConversationContext, flow FlowType) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	plans, err := e.deps.Store.ListContentPlans(org.ID)
	if err != nil {
		return fmt.Errorf("list content plans: %w", err)
	}
	if len(plans) == 0 {
		e.deps.reply(ctx, conv, "Контент-планов пока нет. Сначала составьте контент-план.")
		return nil
	}
	data := map[string]string{}
	if len(plans) == 1 {
		data[KeyPlanID] = strconv.FormatInt(plans[0].ID, 10)
		return e.askWave(ctx, conv, flow, data, plans[0].ID)
	}
	if err := e.deps.States.Set(ctx, conv, flow, StateWaitingPlanChoice, data); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("Выберите контент-план (номер):\n")
	for i, p := range plans {
		fmt.Fprintf(&b, "%d. %s / %s, создан %s\n", i+1, p.Audience, p.Style, FormatUserDate(p.CreatedAt))
	}
	e.deps.reply(ctx, conv, b.String())
	return nil
}

// askWave moves to wave selection, again skipping a single-item choice.
func (e *TemplateEngine) askWave(ctx context.Context, conv models.ConversationContext, flow FlowType, data map[string]string, planID int64) error {
	waves, err := e.deps.Store.ListWaves(planID)
	if err != nil {
		return fmt.Errorf("list waves: %w", err)
	}
	if len(waves) == 0 {
		e.deps.abort(ctx, conv, "В этом контент-плане нет волн.")
		return nil
	}
	if len(waves) == 1 {
		data[KeyWaveID] = strconv.FormatInt(waves[0].ID, 10)
		return e.afterWaveChosen(ctx, conv, flow, data, &waves[0])
	}
	if err := e.deps.States.Set(ctx, conv, flow, StateWaitingWaveChoice, data); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("Выберите волну (номер):\n")
	for i, w := range waves {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, w.Subject, FormatUserDate(w.SendDate))
	}
	e.deps.reply(ctx, conv, b.String())
	return nil
}

// afterWaveChosen branches per flow once the target wave is known.
func (e *TemplateEngine) afterWaveChosen(ctx context.Context, conv models.ConversationContext, flow FlowType, data map[string]string, wave *models.Wave) error {
	data[KeySubject] = wave.Subject
	switch flow {
	case FlowTemplateCreate:
		if err := e.deps.States.Set(ctx, conv, flow, StateWaitingUserRequest, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "Опишите, каким должно быть письмо: о чём рассказать, что предложить, какой призыв к действию.")
		return nil

	case FlowTemplateEdit:
		tpl, err := e.deps.Store.ActiveTemplateForWave(wave.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.deps.abort(ctx, conv, "У этой волны ещё нет шаблона. Сначала создайте его.")
				return nil
			}
			return err
		}
		data[KeyTemplateID] = strconv.FormatInt(tpl.ID, 10)
		data[KeyBody] = tpl.Body
		if err := e.deps.States.Set(ctx, conv, flow, StateWaitingComments, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Текущий текст письма:\n\n%s\n\nЧто изменить?", tpl.Body))
		return nil

	case FlowTemplateDelete:
		tpl, err := e.deps.Store.ActiveTemplateForWave(wave.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.deps.abort(ctx, conv, "У этой волны нет активного шаблона, удалять нечего.")
				return nil
			}
			return err
		}
		data[KeyTemplateID] = strconv.FormatInt(tpl.ID, 10)
		if err := e.deps.States.Set(ctx, conv, flow, StateWaitingConfirmation, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Удалить шаблон волны \"%s\"? (да/нет)", wave.Subject))
		return nil
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

func (e *TemplateEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	flow := FlowType(state.FlowType)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingPlanChoice:
		org, err := e.deps.org(ctx, conv)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.deps.abort(ctx, conv, msgNoCompany)
				return nil
			}
			return err
		}
		plans, err := e.deps.Store.ListContentPlans(org.ID)
		if err != nil {
			return fmt.Errorf("list content plans: %w", err)
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > len(plans) {
			e.deps.reply(ctx, conv, fmt.Sprintf("Укажите номер от 1 до %d.", len(plans)))
			return nil
		}
		data[KeyPlanID] = strconv.FormatInt(plans[n-1].ID, 10)
		return e.askWave(ctx, conv, flow, data, plans[n-1].ID)

	case StateWaitingWaveChoice:
		planID, err := strconv.ParseInt(data[KeyPlanID], 10, 64)
		if err != nil {
			e.deps.abort(ctx, conv, msgTransient)
			return fmt.Errorf("parse plan id %q: %w", data[KeyPlanID], err)
		}
		waves, err := e.deps.Store.ListWaves(planID)
		if err != nil {
			return fmt.Errorf("list waves: %w", err)
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > len(waves) {
			e.deps.reply(ctx, conv, fmt.Sprintf("Укажите номер от 1 до %d.", len(waves)))
			return nil
		}
		data[KeyWaveID] = strconv.FormatInt(waves[n-1].ID, 10)
		return e.afterWaveChosen(ctx, conv, flow, data, &waves[n-1])

	case StateWaitingUserRequest:
		if text == "" {
			e.deps.reply(ctx, conv, "Опишите пожелания к письму текстом.")
			return nil
		}
		body, err := e.generateBody(ctx, conv, data, text)
		if err != nil {
			e.deps.reply(ctx, conv, msgTransient)
			return err
		}
		data[KeyUserRequest] = text
		data[KeyBody] = body
		if err := e.deps.States.Set(ctx, conv, flow, StateWaitingConfirmation, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Вот текст письма:\n\n%s\n\nПодходит? (да/нет)", body))
		return nil

	case StateWaitingComments:
		if text == "" {
			e.deps.reply(ctx, conv, "Напишите замечания к письму текстом.")
			return nil
		}
		rewritten, err := e.deps.LLM.Generate(ctx, templateRewritePrompt,
			fmt.Sprintf("Письмо:\n%s\n\nЗамечания: %s", data[KeyBody], text))
		if err != nil {
			e.deps.reply(ctx, conv, msgTransient)
			return err
		}
		data[KeyUserRequest] = text
		data[KeyBody] = rewritten
		if err := e.deps.States.Set(ctx, conv, flow, StateWaitingConfirmation, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Обновлённый текст:\n\n%s\n\nПодходит? Если нет, пришлите новые замечания. (да/нет)", rewritten))
		return nil

	case StateWaitingConfirmation:
		return e.handleConfirmation(ctx, conv, flow, data, in)
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

func (e *TemplateEngine) handleConfirmation(ctx context.Context, conv models.ConversationContext, flow FlowType, data map[string]string, in models.Inbound) error {
	verdict := ParseConfirmation(in.Text)
	switch flow {
	case FlowTemplateCreate:
		switch verdict {
		case ConfirmYes:
			return e.commitTemplate(ctx, conv, data, "Шаблон сохранён. Черновики для адресатов волны генерируются в фоне и попадут в выгрузку.")
		case ConfirmNo:
			if err := e.deps.States.SetState(ctx, conv, flow, StateWaitingUserRequest); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, "Хорошо, опишите заново, каким должно быть письмо.")
			return nil
		}

	case FlowTemplateEdit:
		switch verdict {
		case ConfirmYes:
			return e.commitTemplate(ctx, conv, data, "Обновлённый шаблон сохранён.")
		case ConfirmNo:
			// The retry branch: any number of new comment rounds.
			if err := e.deps.States.SetState(ctx, conv, flow, StateWaitingComments); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, "Что поправить в этом варианте?")
			return nil
		}

	case FlowTemplateDelete:
		switch verdict {
		case ConfirmYes:
			id, err := strconv.ParseInt(data[KeyTemplateID], 10, 64)
			if err != nil {
				e.deps.abort(ctx, conv, msgTransient)
				return fmt.Errorf("parse template id %q: %w", data[KeyTemplateID], err)
			}
			if err := e.deps.Store.SoftDeleteTemplate(id); err != nil {
				return fmt.Errorf("soft delete template %d: %w", id, err)
			}
			if err := e.deps.States.Clear(ctx, conv); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, "Шаблон удалён.")
			return nil
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Шаблон оставлен без изменений.")
			return nil
		}
	}
	e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
	return nil
}

// commitTemplate inserts a template row for the chosen wave. Edits land here
// too: the new row supersedes the old one for the wave while the old row
// stays in place.
func (e *TemplateEngine) commitTemplate(ctx context.Context, conv models.ConversationContext, data map[string]string, doneMsg string) error {
	waveID, err := strconv.ParseInt(data[KeyWaveID], 10, 64)
	if err != nil {
		e.deps.abort(ctx, conv, msgTransient)
		return fmt.Errorf("parse wave id %q: %w", data[KeyWaveID], err)
	}
	templateID, err := e.deps.Store.CreateTemplate(models.Template{
		WaveID:      waveID,
		Subject:     data[KeySubject],
		Body:        data[KeyBody],
		UserRequest: data[KeyUserRequest],
		Active:      true,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, doneMsg)
	if e.deps.Drafts != nil {
		e.deps.Drafts.Schedule(waveID, templateID)
	}
	return nil
}

// generateBody composes the generation prompt from the organization profile,
// the plan constraints and the wave subject.
func (e *TemplateEngine) generateBody(ctx context.Context, conv models.ConversationContext, data map[string]string, request string) (string, error) {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Компания: %s\n", org.Name)
	if profile, err := e.deps.Store.GetProfile(org.ID); err == nil && profile != nil {
		keys := make([]string, 0, len(profile.Fields))
		for k := range profile.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, profile.Fields[k])
		}
	}
	if planID, err := strconv.ParseInt(data[KeyPlanID], 10, 64); err == nil {
		if plan, err := e.deps.Store.GetContentPlan(planID); err == nil && plan != nil {
			fmt.Fprintf(&b, "Аудитория: %s\nСтиль: %s\n", plan.Audience, plan.Style)
			if plan.RestrictedTopics != "" {
				fmt.Fprintf(&b, "Запретные темы: %s\n", plan.RestrictedTopics)
			}
		}
	}
	fmt.Fprintf(&b, "Тема волны: %s\n", data[KeySubject])
	fmt.Fprintf(&b, "Пожелания пользователя: %s\n", request)
	return e.deps.LLM.Generate(ctx, templateSystemPrompt, b.String())
}
