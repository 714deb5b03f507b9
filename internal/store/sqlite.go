// Package store provides storage backends for campaigner.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/groundworkhq/campaigner/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists all entities in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; missing directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetConvState(conv models.ConversationContext) (*models.ConversationState, error) {
	row := s.db.QueryRow(`SELECT flow_type, current_state, data, created_at, updated_at
		FROM conv_states WHERE bot_id = ? AND user_id = ? AND channel_id = ? AND sub_channel_id = ?`,
		conv.BotID, conv.UserID, conv.ChannelID, conv.SubChannelID)

	var state models.ConversationState
	var data sql.NullString
	err := row.Scan(&state.FlowType, &state.CurrentState, &data, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConvState failed", "error", err, "userID", conv.UserID)
		return nil, fmt.Errorf("get conv state: %w", err)
	}
	state.Context = conv
	state.Data = unmarshalStateData(data.String)
	return &state, nil
}

func (s *SQLiteStore) SaveConvState(state models.ConversationState) error {
	data, err := marshalStateData(state.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO conv_states
		(bot_id, user_id, channel_id, sub_channel_id, flow_type, current_state, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.Context.BotID, state.Context.UserID, state.Context.ChannelID, state.Context.SubChannelID,
		state.FlowType, state.CurrentState, data, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConvState failed", "error", err, "userID", state.Context.UserID)
		return fmt.Errorf("save conv state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteConvState(conv models.ConversationContext) error {
	_, err := s.db.Exec(`DELETE FROM conv_states WHERE bot_id = ? AND user_id = ? AND channel_id = ? AND sub_channel_id = ?`,
		conv.BotID, conv.UserID, conv.ChannelID, conv.SubChannelID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConvState failed", "error", err, "userID", conv.UserID)
		return fmt.Errorf("delete conv state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateOrganization(org models.Organization) (int64, error) {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO organizations (channel_id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		org.ChannelID, org.OwnerID, org.Name, org.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateOrganization failed", "error", err, "channelID", org.ChannelID)
		return 0, fmt.Errorf("create organization: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetOrganization(id int64) (*models.Organization, error) {
	row := s.db.QueryRow(`SELECT id, channel_id, owner_id, name, created_at FROM organizations WHERE id = ?`, id)
	var org models.Organization
	err := row.Scan(&org.ID, &org.ChannelID, &org.OwnerID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

func (s *SQLiteStore) GetOrganizationByChannel(channelID int64) (*models.Organization, error) {
	row := s.db.QueryRow(`SELECT id, channel_id, owner_id, name, created_at FROM organizations WHERE channel_id = ?`, channelID)
	var org models.Organization
	err := row.Scan(&org.ID, &org.ChannelID, &org.OwnerID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

func (s *SQLiteStore) GetProfile(orgID int64) (*models.OrganizationProfile, error) {
	row := s.db.QueryRow(`SELECT org_id, fields, updated_at FROM org_profiles WHERE org_id = ?`, orgID)
	var profile models.OrganizationProfile
	var fields string
	err := row.Scan(&profile.OrgID, &fields, &profile.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	profile.Fields = unmarshalProfileFields(fields)
	return &profile, nil
}

func (s *SQLiteStore) SaveProfile(profile models.OrganizationProfile) error {
	fields, err := marshalProfileFields(profile.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO org_profiles (org_id, fields, updated_at) VALUES (?, ?, ?)`,
		profile.OrgID, fields, time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "orgID", profile.OrgID)
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSubChannel(sc models.SubChannel) error {
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO sub_channels (channel_id, sub_channel_id, name, created_at) VALUES (?, ?, ?, ?)`,
		sc.ChannelID, sc.SubChannelID, sc.Name, sc.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSubChannel failed", "error", err, "subChannelID", sc.SubChannelID)
		return fmt.Errorf("save sub-channel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubChannel(channelID int64, subChannelID int) (*models.SubChannel, error) {
	row := s.db.QueryRow(`SELECT channel_id, sub_channel_id, name, created_at FROM sub_channels WHERE channel_id = ? AND sub_channel_id = ?`,
		channelID, subChannelID)
	var sc models.SubChannel
	err := row.Scan(&sc.ChannelID, &sc.SubChannelID, &sc.Name, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sub-channel: %w", err)
	}
	return &sc, nil
}

func (s *SQLiteStore) DeleteSubChannel(channelID int64, subChannelID int) error {
	_, err := s.db.Exec(`DELETE FROM sub_channels WHERE channel_id = ? AND sub_channel_id = ?`, channelID, subChannelID)
	if err != nil {
		return fmt.Errorf("delete sub-channel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertCampaignBySubChannel(c models.Campaign) (int64, error) {
	filters, err := marshalFilters(c.Filters)
	if err != nil {
		return 0, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err = s.db.Exec(`INSERT INTO campaigns (org_id, name, start_date, end_date, filters, sub_channel_id, status, visible_to_user, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, sub_channel_id) DO UPDATE SET
			name = excluded.name, start_date = excluded.start_date, end_date = excluded.end_date,
			filters = excluded.filters, status = excluded.status, visible_to_user = excluded.visible_to_user`,
		c.OrgID, c.Name, c.StartDate, c.EndDate, filters, c.SubChannelID, c.Status, c.VisibleToUser, c.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore UpsertCampaignBySubChannel failed", "error", err, "orgID", c.OrgID, "subChannelID", c.SubChannelID)
		return 0, fmt.Errorf("upsert campaign: %w", err)
	}
	var id int64
	err = s.db.QueryRow(`SELECT id FROM campaigns WHERE org_id = ? AND sub_channel_id = ?`, c.OrgID, c.SubChannelID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve upserted campaign id: %w", err)
	}
	return id, nil
}

const campaignColumns = `id, org_id, name, start_date, end_date, filters, sub_channel_id, status, visible_to_user, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (*models.Campaign, error) {
	var c models.Campaign
	var start, end sql.NullTime
	var filters sql.NullString
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &start, &end, &filters, &c.SubChannelID, &c.Status, &c.VisibleToUser, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.StartDate = start.Time
	c.EndDate = end.Time
	c.Filters = unmarshalFilters(filters.String)
	return &c, nil
}

func (s *SQLiteStore) GetCampaign(id int64) (*models.Campaign, error) {
	row := s.db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCampaignBySubChannel(orgID int64, subChannelID int) (*models.Campaign, error) {
	row := s.db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE org_id = ? AND sub_channel_id = ?`, orgID, subChannelID)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign by sub-channel: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ActiveCampaign(orgID int64) (*models.Campaign, error) {
	row := s.db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns
		WHERE org_id = ? AND status = ? AND visible_to_user = 1
		ORDER BY created_at DESC, id DESC LIMIT 1`, orgID, models.CampaignStatusActive)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active campaign: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCampaigns(orgID int64) ([]models.Campaign, error) {
	rows, err := s.db.Query(`SELECT `+campaignColumns+` FROM campaigns WHERE org_id = ? AND visible_to_user = 1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SoftDeleteCampaign(id int64) error {
	res, err := s.db.Exec(`UPDATE campaigns SET visible_to_user = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("soft delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateContentPlan(p models.ContentPlan) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO content_plans (org_id, campaign_id, restricted_topics, audience, style, wave_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.OrgID, p.CampaignID, p.RestrictedTopics, p.Audience, p.Style, p.WaveCount, p.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateContentPlan failed", "error", err, "orgID", p.OrgID)
		return 0, fmt.Errorf("create content plan: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListContentPlans(orgID int64) ([]models.ContentPlan, error) {
	rows, err := s.db.Query(`SELECT id, org_id, campaign_id, restricted_topics, audience, style, wave_count, created_at
		FROM content_plans WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list content plans: %w", err)
	}
	defer rows.Close()
	var out []models.ContentPlan
	for rows.Next() {
		var p models.ContentPlan
		if err := rows.Scan(&p.ID, &p.OrgID, &p.CampaignID, &p.RestrictedTopics, &p.Audience, &p.Style, &p.WaveCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetContentPlan(id int64) (*models.ContentPlan, error) {
	row := s.db.QueryRow(`SELECT id, org_id, campaign_id, restricted_topics, audience, style, wave_count, created_at
		FROM content_plans WHERE id = ?`, id)
	var p models.ContentPlan
	err := row.Scan(&p.ID, &p.OrgID, &p.CampaignID, &p.RestrictedTopics, &p.Audience, &p.Style, &p.WaveCount, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content plan: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateWave(w models.Wave) (int64, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO waves (plan_id, campaign_id, subject, send_date, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.PlanID, w.CampaignID, w.Subject, w.SendDate, w.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateWave failed", "error", err, "planID", w.PlanID)
		return 0, fmt.Errorf("create wave: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListWaves(planID int64) ([]models.Wave, error) {
	rows, err := s.db.Query(`SELECT id, plan_id, campaign_id, subject, send_date, created_at FROM waves WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list waves: %w", err)
	}
	defer rows.Close()
	var out []models.Wave
	for rows.Next() {
		var w models.Wave
		if err := rows.Scan(&w.ID, &w.PlanID, &w.CampaignID, &w.Subject, &w.SendDate, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wave: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetWave(id int64) (*models.Wave, error) {
	row := s.db.QueryRow(`SELECT id, plan_id, campaign_id, subject, send_date, created_at FROM waves WHERE id = ?`, id)
	var w models.Wave
	err := row.Scan(&w.ID, &w.PlanID, &w.CampaignID, &w.Subject, &w.SendDate, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wave: %w", err)
	}
	return &w, nil
}

func (s *SQLiteStore) ListWavesDueOn(date time.Time) ([]models.Wave, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := s.db.Query(`SELECT id, plan_id, campaign_id, subject, send_date, created_at
		FROM waves WHERE send_date >= ? AND send_date < ? ORDER BY id`, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list waves due: %w", err)
	}
	defer rows.Close()
	var out []models.Wave
	for rows.Next() {
		var w models.Wave
		if err := rows.Scan(&w.ID, &w.PlanID, &w.CampaignID, &w.Subject, &w.SendDate, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wave: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateTemplate(t models.Template) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO templates (wave_id, subject, body, user_request, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.WaveID, t.Subject, t.Body, t.UserRequest, t.Active, t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTemplate failed", "error", err, "waveID", t.WaveID)
		return 0, fmt.Errorf("create template: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetTemplate(id int64) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, wave_id, subject, body, user_request, active, created_at FROM templates WHERE id = ?`, id)
	var t models.Template
	err := row.Scan(&t.ID, &t.WaveID, &t.Subject, &t.Body, &t.UserRequest, &t.Active, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) ActiveTemplateForWave(waveID int64) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT id, wave_id, subject, body, user_request, active, created_at
		FROM templates WHERE wave_id = ? AND active = 1 ORDER BY id DESC LIMIT 1`, waveID)
	var t models.Template
	err := row.Scan(&t.ID, &t.WaveID, &t.Subject, &t.Body, &t.UserRequest, &t.Active, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) SoftDeleteTemplate(id int64) error {
	res, err := s.db.Exec(`UPDATE templates SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("soft delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveSegmentTable(st models.SegmentTable) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO segment_tables (org_id, table_name, description, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (org_id, table_name) DO UPDATE SET description = excluded.description`,
		st.OrgID, st.TableName, st.Description, st.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSegmentTable failed", "error", err, "table", st.TableName)
		return fmt.Errorf("save segment table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSegmentTables(orgID int64) ([]models.SegmentTable, error) {
	rows, err := s.db.Query(`SELECT id, org_id, table_name, description, created_at FROM segment_tables WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list segment tables: %w", err)
	}
	defer rows.Close()
	var out []models.SegmentTable
	for rows.Next() {
		var st models.SegmentTable
		if err := rows.Scan(&st.ID, &st.OrgID, &st.TableName, &st.Description, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment table: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CreateRelation creates a dynamic relation. Creation is idempotent: a
// concurrent create of the same table is absorbed by IF NOT EXISTS.
func (s *SQLiteStore) CreateRelation(name string, columns []string) error {
	if err := validateRelation(name, columns); err != nil {
		return err
	}
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = col + " TEXT"
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", "))
	if _, err := s.db.Exec(query); err != nil {
		slog.Error("SQLiteStore CreateRelation failed", "error", err, "relation", name)
		return fmt.Errorf("create relation %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) RelationExists(name string) (bool, error) {
	if !ValidIdentifier(name) {
		return false, fmt.Errorf("invalid relation name %q", name)
	}
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check relation %s: %w", name, err)
	}
	return exists, nil
}

func (s *SQLiteStore) InsertRows(name string, columns []string, rows [][]string) error {
	if err := validateRelation(name, columns); err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(columns, ", "), placeholders)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("relation %s: row %d has %d cells, want %d", name, i, len(row), len(columns))
		}
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = v
		}
		if _, err := tx.Exec(query, args...); err != nil {
			slog.Error("SQLiteStore InsertRows failed", "error", err, "relation", name, "row", i)
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) QueryRelation(name string) ([]models.Lead, error) {
	if !ValidIdentifier(name) {
		return nil, fmt.Errorf("invalid relation name %q", name)
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s", name))
	if err != nil {
		return nil, fmt.Errorf("query relation %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("relation %s columns: %w", name, err)
	}
	var out []models.Lead
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan relation %s row: %w", name, err)
		}
		lead := make(models.Lead, len(cols))
		for i, col := range cols {
			lead[col] = values[i].String
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}
