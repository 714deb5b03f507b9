// Package store provides storage backends for campaigner.
//
// It includes an in-memory store for tests, an SQLite store for single-node
// deployments, and a PostgreSQL store. All backends implement the Store
// interface, which is the persistence gateway the flow engines talk to.
package store

import (
	"errors"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
)

// ErrNotFound is returned by lookups whose subject does not exist. Methods
// returning a pointer return (nil, nil) for "no row" only where the caller is
// expected to treat absence as a normal outcome (conversation state); entity
// lookups return ErrNotFound so flows can surface a "not found" reply.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence gateway consumed by the dispatcher, the flow
// engines, and the draft generator.
type Store interface {
	// Conversation state, keyed by the full context tuple.
	GetConvState(conv models.ConversationContext) (*models.ConversationState, error)
	SaveConvState(state models.ConversationState) error
	DeleteConvState(conv models.ConversationContext) error

	// Organizations and profiles.
	CreateOrganization(org models.Organization) (int64, error)
	GetOrganization(id int64) (*models.Organization, error)
	GetOrganizationByChannel(channelID int64) (*models.Organization, error)
	GetProfile(orgID int64) (*models.OrganizationProfile, error)
	SaveProfile(profile models.OrganizationProfile) error

	// Sub-channels.
	SaveSubChannel(sc models.SubChannel) error
	GetSubChannel(channelID int64, subChannelID int) (*models.SubChannel, error)
	DeleteSubChannel(channelID int64, subChannelID int) error

	// Campaigns. Upsert keys on (org_id, sub_channel_id): a retried commit for
	// the same sub-channel updates the existing row instead of duplicating it.
	UpsertCampaignBySubChannel(c models.Campaign) (int64, error)
	GetCampaign(id int64) (*models.Campaign, error)
	GetCampaignBySubChannel(orgID int64, subChannelID int) (*models.Campaign, error)
	ActiveCampaign(orgID int64) (*models.Campaign, error)
	ListCampaigns(orgID int64) ([]models.Campaign, error)
	SoftDeleteCampaign(id int64) error

	// Content plans and waves.
	CreateContentPlan(p models.ContentPlan) (int64, error)
	ListContentPlans(orgID int64) ([]models.ContentPlan, error)
	GetContentPlan(id int64) (*models.ContentPlan, error)
	CreateWave(w models.Wave) (int64, error)
	ListWaves(planID int64) ([]models.Wave, error)
	GetWave(id int64) (*models.Wave, error)
	ListWavesDueOn(date time.Time) ([]models.Wave, error)

	// Templates. Soft delete only; edits append new rows.
	CreateTemplate(t models.Template) (int64, error)
	GetTemplate(id int64) (*models.Template, error)
	ActiveTemplateForWave(waveID int64) (*models.Template, error)
	SoftDeleteTemplate(id int64) error

	// Segment table summaries.
	SaveSegmentTable(st models.SegmentTable) error
	ListSegmentTables(orgID int64) ([]models.SegmentTable, error)

	// Dynamic relations: runtime-created tables for lead and segment data.
	// Names and columns must pass ValidIdentifier before reaching SQL.
	// CreateRelation is idempotent.
	CreateRelation(name string, columns []string) error
	RelationExists(name string) (bool, error)
	InsertRows(name string, columns []string, rows [][]string) error
	QueryRelation(name string) ([]models.Lead, error)

	Close() error
}

// LeadTableName derives the deterministic per-organization lead table name.
func LeadTableName(orgID int64) string {
	return leadTableName(orgID)
}
