package flow

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

const columnMapInstruction = `Ты сопоставляешь заголовки таблицы с каноническими колонками базы адресов.
Канонические колонки: email, name, company, position, region, phone, subscribed, employees.
Вход — список заголовков загруженного файла. Верни JSON-объект, где ключ — каноническая колонка,
а значение — точный заголовок из входа, который ей соответствует, или пустая строка, если соответствия нет.
Не добавляй других ключей.`

// EmailUploadEngine imports a CSV file of leads into the organization's lead
// table. Column mapping is delegated to the extractor; rows whose email cell
// holds several addresses pause the flow until the user chooses between
// splitting them and re-uploading a corrected file.
type EmailUploadEngine struct {
	deps *Deps
}

func NewEmailUploadEngine(deps *Deps) *EmailUploadEngine {
	return &EmailUploadEngine{deps: deps}
}

// Start accepts a file attached to the triggering message directly, or asks
// for one.
func (e *EmailUploadEngine) Start(ctx context.Context, conv models.ConversationContext, in models.Inbound) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	if in.Document != nil {
		return e.processFile(ctx, conv, org, in.Document)
	}
	if err := e.deps.States.Set(ctx, conv, FlowEmailUpload, StateWaitingFileUpload, map[string]string{}); err != nil {
		return err
	}
	e.deps.reply(ctx, conv, "Пришлите CSV-файл с базой адресов. Нужна колонка с email, остальные заполню как получится.")
	return nil
}

// Export sends the current lead table back to the user as a CSV workbook.
func (e *EmailUploadEngine) Export(ctx context.Context, conv models.ConversationContext) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.reply(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}
	table := store.LeadTableName(org.ID)
	exists, err := e.deps.Store.RelationExists(table)
	if err != nil {
		return fmt.Errorf("check lead table: %w", err)
	}
	if !exists {
		e.deps.reply(ctx, conv, "База адресов пока пуста. Пришлите CSV-файл, чтобы загрузить её.")
		return nil
	}
	leads, err := e.deps.Store.QueryRelation(table)
	if err != nil {
		return fmt.Errorf("query lead table: %w", err)
	}
	rows := make([][]string, 0, len(leads)+1)
	rows = append(rows, models.LeadColumns)
	for _, lead := range leads {
		row := make([]string, len(models.LeadColumns))
		for i, col := range models.LeadColumns {
			row[i] = lead[col]
		}
		rows = append(rows, row)
	}
	path, err := e.deps.Sheets.CreateWorkbook(rows, "leads.csv")
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workbook %s: %w", path, err)
	}
	if err := e.deps.Msg.SendFile(ctx, conv.ChannelID, conv.SubChannelID, data, "leads.csv"); err != nil {
		return fmt.Errorf("send workbook: %w", err)
	}
	return nil
}

func (e *EmailUploadEngine) Handle(ctx context.Context, conv models.ConversationContext, state *models.ConversationState, in models.Inbound) error {
	org, err := e.deps.org(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.deps.abort(ctx, conv, msgNoCompany)
			return nil
		}
		return err
	}

	switch StateType(state.CurrentState) {
	case StateWaitingFileUpload:
		if in.Document == nil {
			e.deps.reply(ctx, conv, "Жду CSV-файл с базой адресов. Чтобы отменить загрузку, напишите \"отмена\".")
			return nil
		}
		return e.processFile(ctx, conv, org, in.Document)

	case StateDuplicateEmailCheck:
		// A fresh file replaces the pending batch entirely.
		if in.Document != nil {
			return e.processFile(ctx, conv, org, in.Document)
		}
		if wantsSplit(in.Text) {
			return e.commitPending(ctx, conv, org, state.Data, true)
		}
		e.deps.reply(ctx, conv, "Ответьте \"разделить\", чтобы разбить такие строки по одному адресу, или пришлите исправленный файл.")
		return nil
	}
	e.deps.abort(ctx, conv, msgNotUnderstood)
	return nil
}

// processFile parses and cleans the upload. When every row carries at most
// one address the batch commits immediately; otherwise it is parked in the
// data bag and the user decides how to proceed.
func (e *EmailUploadEngine) processFile(ctx context.Context, conv models.ConversationContext, org *models.Organization, doc *models.Document) error {
	records, err := parseCSV(doc.Data)
	if err != nil || len(records) < 2 {
		slog.Warn("EmailUploadEngine.processFile unreadable file", "error", err, "fileName", doc.Name)
		e.deps.reply(ctx, conv, "Не удалось прочитать файл. Пришлите CSV с заголовком и хотя бы одной строкой данных.")
		return nil
	}
	header := records[0]
	mapping, err := e.mapColumns(ctx, header)
	if err != nil {
		slog.Warn("EmailUploadEngine.processFile column mapping failed", "error", err)
		e.deps.reply(ctx, conv, msgTransient)
		return nil
	}
	if mapping["email"] < 0 {
		e.deps.reply(ctx, conv, "В файле не нашлась колонка с email. Проверьте заголовки и пришлите файл ещё раз.")
		return nil
	}

	var rows [][]string
	dropped := 0
	multi := false
	for _, record := range records[1:] {
		row := make([]string, len(models.LeadColumns))
		for i, col := range models.LeadColumns {
			if idx := mapping[col]; idx >= 0 && idx < len(record) {
				row[i] = strings.TrimSpace(record[idx])
			}
		}
		emails := splitEmails(row[0])
		switch {
		case len(emails) == 0:
			dropped++
			continue
		case len(emails) == 1:
			// Strip surrounding junk like "Анна a@x.com" down to the address.
			row[0] = emails[0]
		default:
			multi = true
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		e.deps.reply(ctx, conv, "В файле не нашлось ни одной строки с корректным email. Проверьте данные и пришлите файл ещё раз.")
		return nil
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode pending rows: %w", err)
	}
	data := map[string]string{
		KeyPendingRows: string(encoded),
		KeyDroppedRows: strconv.Itoa(dropped),
	}
	if multi {
		if err := e.deps.States.Set(ctx, conv, FlowEmailUpload, StateDuplicateEmailCheck, data); err != nil {
			return err
		}
		e.deps.reply(ctx, conv, "В некоторых строках указано несколько email-адресов. Разделить такие строки по одному адресу или пришлёте исправленный файл? (разделить / новый файл)")
		return nil
	}
	return e.commitPending(ctx, conv, org, data, false)
}

// commitPending writes the parked batch into the lead table. Table creation
// is idempotent per organization.
func (e *EmailUploadEngine) commitPending(ctx context.Context, conv models.ConversationContext, org *models.Organization, data map[string]string, split bool) error {
	var rows [][]string
	if err := json.Unmarshal([]byte(data[KeyPendingRows]), &rows); err != nil {
		e.deps.abort(ctx, conv, msgTransient)
		return fmt.Errorf("decode pending rows: %w", err)
	}
	dropped, _ := strconv.Atoi(data[KeyDroppedRows])
	if split {
		rows = splitMultiEmailRows(rows)
	}

	table, err := e.deps.ensureLeadTable(org.ID)
	if err != nil {
		return err
	}
	if err := e.deps.Store.InsertRows(table, models.LeadColumns, rows); err != nil {
		return fmt.Errorf("insert leads: %w", err)
	}
	if err := e.deps.Store.SaveSegmentTable(models.SegmentTable{
		OrgID:       org.ID,
		TableName:   table,
		Description: "База адресов организации",
		CreatedAt:   time.Now(),
	}); err != nil {
		return fmt.Errorf("save table summary: %w", err)
	}
	if err := e.deps.States.Clear(ctx, conv); err != nil {
		return err
	}
	report := fmt.Sprintf("Загружено адресов: %d.", len(rows))
	if dropped > 0 {
		report += fmt.Sprintf(" Строк без корректного email пропущено: %d.", dropped)
	}
	e.deps.reply(ctx, conv, report)
	return nil
}

// mapColumns asks the extractor to match file headers to canonical columns
// and resolves the answer to header indexes. Unmatched columns get -1.
func (e *EmailUploadEngine) mapColumns(ctx context.Context, header []string) (map[string]int, error) {
	extracted, err := e.deps.LLM.ExtractJSON(ctx, columnMapInstruction, strings.Join(header, "; "))
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	mapping := make(map[string]int, len(models.LeadColumns))
	for _, col := range models.LeadColumns {
		mapping[col] = -1
		if source, _ := extracted[col].(string); source != "" {
			if i, ok := index[strings.ToLower(strings.TrimSpace(source))]; ok {
				mapping[col] = i
			}
		}
	}
	return mapping, nil
}

// parseCSV reads the upload, falling back to semicolon separation when the
// first line is not comma-separated.
func parseCSV(data []byte) ([][]string, error) {
	read := func(comma rune) ([][]string, error) {
		r := csv.NewReader(bytes.NewReader(data))
		r.Comma = comma
		r.FieldsPerRecord = -1
		return r.ReadAll()
	}
	records, err := read(',')
	if err == nil && len(records) > 0 && len(records[0]) > 1 {
		return records, nil
	}
	semicolon, errSemi := read(';')
	if errSemi == nil && len(semicolon) > 0 && len(semicolon[0]) > 1 {
		return semicolon, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// splitEmails extracts the address tokens from one email cell.
func splitEmails(cell string) []string {
	tokens := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\t'
	})
	var emails []string
	for _, t := range tokens {
		if strings.Contains(t, "@") {
			emails = append(emails, t)
		}
	}
	return emails
}

// splitMultiEmailRows expands every row holding several addresses into one
// row per address, duplicating the remaining fields.
func splitMultiEmailRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		emails := splitEmails(row[0])
		if len(emails) <= 1 {
			out = append(out, row)
			continue
		}
		for _, email := range emails {
			clone := make([]string, len(row))
			copy(clone, row)
			clone[0] = email
			out = append(out, clone)
		}
	}
	return out
}

// wantsSplit matches the user's choice to split multi-address rows.
func wantsSplit(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return strings.Contains(normalized, "раздел") || strings.Contains(normalized, "split")
}
