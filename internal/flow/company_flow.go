package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

// freeTextShortcutLen is the minimum message length at which a flow's opening
// message is handed to the structured extractor instead of being treated as a
// single-field answer.
const freeTextShortcutLen = 60

const companyExtractInstruction = `Ты извлекаешь данные о компании из текста пользователя.
Верни JSON-объект с ключами "name", "mission", "audience", "faq".
Для отсутствующих в тексте полей верни пустую строку. Не добавляй других ключей.`

// CompanyEngine handles company onboarding, profile edits and profile views.
// Onboarding creates the Organization and its profile; edits are add-only
// unless the user explicitly confirms an overwrite.
type CompanyEngine struct {
	deps *Deps
}

func NewCompanyEngine(deps *Deps) *CompanyEngine {
	return &CompanyEngine{deps: deps}
}

// StartOnboarding begins collecting the organization profile. When the
// opening message is rich enough the extractor pre-fills several fields at
// once and the flow only asks for what is still missing.
func (e *CompanyEngine) StartOnboarding(ctx context.Context, conv models.ConversationContext, cls models.Classification) error {
	if _, err := e.deps.org(ctx, conv); err == nil {
		e.deps.reply(ctx, conv, "Компания уже зарегистрирована. Чтобы дополнить профиль, напишите, какое поле нужно изменить.")
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	data := map[string]string{}
	if name := strings.TrimSpace(cls.Params[KeyName]); name != "" {
		data[KeyName] = name
	}
	return e.advanceOnboarding(ctx, conv, data)
}

// advanceOnboarding picks the first unfilled profile field in fixed order and
// moves the conversation to the state collecting it, or to confirmation when
// everything is present.
func (e *CompanyEngine) advanceOnboarding(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	type step struct {
		key    DataKey
		state  StateType
		prompt string
	}
	steps := []step{
		{KeyName, StateWaitingCompanyName, "Как называется ваша компания?"},
		{KeyMission, StateWaitingMission, "Расскажите о компании: чем занимаетесь, какая у вас миссия?"},
		{KeyFAQ, StateWaitingAudienceFAQ, "Кто ваша целевая аудитория и какие вопросы клиенты задают чаще всего?"},
	}
	for _, s := range steps {
		if strings.TrimSpace(data[s.key]) == "" {
			if err := e.deps.States.Set(ctx, conv, FlowOnboarding, s.state, data); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, s.prompt)
			return nil
		}
	}
	if err := e.deps.States.Set(ctx, conv, FlowOnboarding, StateWaitingConfirmation, data); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf(
		"Проверьте данные компании:\nНазвание: %s\nО компании: %s\nАудитория и вопросы: %s\n\nВсё верно? (да/нет)",
		data[KeyName], data[KeyMission], data[KeyFAQ]))
	return nil
}

// StartEdit begins the add-only profile edit flow.
func (e *CompanyEngine) StartEdit(ctx context.Context, conv models.ConversationContext, cls models.Classification) error {
	if _, err := e.deps.org(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	data := map[string]string{}
	if field := strings.TrimSpace(cls.Params[KeyField]); field != "" {
		data[KeyField] = field
		if err := e.deps.States.Set(ctx, conv, FlowCompanyEdit, StateWaitingFieldValue, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Какое значение записать в поле \"%s\"?", field))
		return nil
	}
	if err := e.deps.States.Set(ctx, conv, FlowCompanyEdit, StateWaitingFieldName, data); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, "Какое поле профиля нужно добавить или изменить?")
	return nil
}

// ViewProfile renders the organization profile in the general channel.
func (e *CompanyEngine) ViewProfile(ctx context.Context, conv models.ConversationContext) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	profile, err := e.deps.Store.GetProfile(org.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Компания: %s\n", org.Name)
	if profile != nil && len(profile.Fields) > 0 {
		keys := make([]string, 0, len(profile.Fields))
		for k := range profile.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, profile.Fields[k])
		}
	} else {
		b.WriteString("Профиль пока не заполнен.\n")
	}
	e.deps.reply(ctx, conv, b.String())
	return nil
}

func (e *CompanyEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	switch FlowType(state.FlowType) {
	case FlowOnboarding:
		return e.handleOnboarding(ctx, conv, state, in)
	case FlowCompanyEdit:
		return e.handleEdit(ctx, conv, state, in)
	default:
		e.deps.abort(ctx, conv, msgNotUnderstood)
		return nil
	}
}

func (e *CompanyEngine) handleOnboarding(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingCompanyName:
		if text == "" {
			e.deps.reply(ctx, conv, "Напишите название компании текстом.")
			return nil
		}
		data[KeyName] = text
		return e.advanceOnboarding(ctx, conv, data)

	case StateWaitingMission:
		if text == "" {
			e.deps.reply(ctx, conv, "Расскажите о компании текстом.")
			return nil
		}
		// A long answer often covers the remaining questions too.
		if utf8.RuneCountInString(text) >= freeTextShortcutLen {
			extracted, err := e.deps.LLM.ExtractJSON(ctx, companyExtractInstruction, text)
			if err == nil {
				if v, _ := extracted[KeyFAQ].(string); strings.TrimSpace(v) != "" {
					data[KeyFAQ] = strings.TrimSpace(v)
				}
			}
		}
		data[KeyMission] = text
		return e.advanceOnboarding(ctx, conv, data)

	case StateWaitingAudienceFAQ:
		if text == "" {
			e.deps.reply(ctx, conv, "Опишите аудиторию текстом.")
			return nil
		}
		data[KeyFAQ] = text
		return e.advanceOnboarding(ctx, conv, data)

	case StateWaitingConfirmation:
		switch ParseConfirmation(text) {
		case ConfirmYes:
			return e.commitOnboarding(ctx, conv, data)
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Хорошо, начнём заново. Напишите, когда будете готовы рассказать о компании.")
			return nil
		default:
			e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
			return nil
		}
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

func (e *CompanyEngine) commitOnboarding(ctx context.Context, conv models.ConversationContext, data map[string]string) error {
	orgID, err := e.deps.Store.CreateOrganization(models.Organization{
		ChannelID: conv.ChannelID,
		OwnerID:   conv.UserID,
		Name:      data[KeyName],
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	profile := models.OrganizationProfile{
		OrgID: orgID,
		Fields: map[string]string{
			KeyMission: data[KeyMission],
			KeyFAQ:     data[KeyFAQ],
		},
		UpdatedAt: time.Now(),
	}
	if err := e.deps.Store.SaveProfile(profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Компания \"%s\" зарегистрирована. Теперь можно создать кампанию или загрузить базу адресов.", data[KeyName]))
	return nil
}

func (e *CompanyEngine) handleEdit(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	text := strings.TrimSpace(in.Text)
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}

	switch StateType(state.CurrentState) {
	case StateWaitingFieldName:
		if text == "" {
			e.deps.reply(ctx, conv, "Назовите поле текстом, например: миссия, аудитория, сайт.")
			return nil
		}
		data[KeyField] = normalizeFieldName(text)
		if err := e.deps.States.Set(ctx, conv, FlowCompanyEdit, StateWaitingFieldValue, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, fmt.Sprintf("Какое значение записать в поле \"%s\"?", data[KeyField]))
		return nil

	case StateWaitingFieldValue:
		if text == "" {
			e.deps.reply(ctx, conv, "Напишите значение текстом.")
			return nil
		}
		org, err := e.deps.org(ctx, conv)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.deps.abort(ctx, conv, msgNoCompany)
				return nil
			}
			return err
		}
		profile, err := e.deps.Store.GetProfile(org.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if profile == nil {
			profile = &models.OrganizationProfile{OrgID: org.ID, Fields: map[string]string{}}
		}
		field := data[KeyField]
		if existing, ok := profile.Fields[field]; ok && existing != "" {
			// Fields are add-only. Ask before replacing a set value.
			data[KeyName] = text
			if err := e.deps.States.Set(ctx, conv, FlowCompanyEdit, StateWaitingConfirmation, data); err != nil {
				return err
			}
			e.deps.reply(ctx, conv, fmt.Sprintf("Поле \"%s\" уже заполнено: \"%s\". Перезаписать? (да/нет)", field, existing))
			return nil
		}
		return e.commitEdit(ctx, conv, *profile, field, text)

	case StateWaitingConfirmation:
		switch ParseConfirmation(text) {
		case ConfirmYes:
			org, err := e.deps.org(ctx, conv)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					e.deps.abort(ctx, conv, msgNoCompany)
					return nil
				}
				return err
			}
			profile, err := e.deps.Store.GetProfile(org.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if profile == nil {
				profile = &models.OrganizationProfile{OrgID: org.ID, Fields: map[string]string{}}
			}
			return e.commitEdit(ctx, conv, *profile, data[KeyField], data[KeyName])
		case ConfirmNo:
			e.deps.abort(ctx, conv, "Поле оставлено без изменений.")
			return nil
		default:
			e.deps.reply(ctx, conv, "Ответьте, пожалуйста, \"да\" или \"нет\".")
			return nil
		}
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

func (e *CompanyEngine) commitEdit(ctx context.Context, conv models.ConversationContext, profile models.OrganizationProfile, field, value string) error {
	if profile.Fields == nil {
		profile.Fields = map[string]string{}
	}
	profile.Fields[field] = value
	profile.UpdatedAt = time.Now()
	if err := e.deps.Store.SaveProfile(profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, fmt.Sprintf("Поле \"%s\" сохранено.", field))
	return nil
}

// normalizeFieldName canonicalizes a user-supplied profile field name so the
// same field typed differently maps to one key.
func normalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}
