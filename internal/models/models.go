// Package models defines the domain entities and wire types shared across campaigner.
package models

import "time"

// ActionType is the intent verb produced by the classifier.
type ActionType string

// EntityType is the intent object produced by the classifier.
type EntityType string

// Classifier result vocabulary. ActionError is distinct from ActionUnknown:
// unknown means the model answered but we could not map it, error means the
// call itself failed.
const (
	ActionAdd     ActionType = "add"
	ActionEdit    ActionType = "edit"
	ActionDelete  ActionType = "delete"
	ActionView    ActionType = "view"
	ActionUnknown ActionType = "unknown"
	ActionError   ActionType = "error"

	EntityCampaign    EntityType = "campaign"
	EntityTemplate    EntityType = "template"
	EntityEmailTable  EntityType = "email_table"
	EntityContentPlan EntityType = "content_plan"
	EntityCompany     EntityType = "company"
	EntitySegment     EntityType = "segment"
	EntityUnknown     EntityType = "unknown"
)

// Classification is the structured intent extracted from free-form user text.
type Classification struct {
	Action ActionType        `json:"action"`
	Entity EntityType        `json:"entity"`
	Params map[string]string `json:"params,omitempty"`
}

// Document is a file attached to an inbound message.
type Document struct {
	Name string
	Data []byte
}

// Inbound is one user event delivered by the channel gateway.
// SubChannelID is zero for messages in the general channel.
type Inbound struct {
	ChannelID    int64
	SubChannelID int
	UserID       int64
	Text         string
	Document     *Document
}

// Organization is the tenant entity, one per chat.
type Organization struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationProfile holds free-form descriptive fields about an organization.
// Fields are add-only: an edit flow may fill an empty field but not overwrite a
// set one unless the overwrite path is used.
type OrganizationProfile struct {
	OrgID     int64             `json:"org_id"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Campaign belongs to one organization and owns exactly one sub-channel.
type Campaign struct {
	ID            int64          `json:"id"`
	OrgID         int64          `json:"org_id"`
	Name          string         `json:"name"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	Filters       map[string]any `json:"filters,omitempty"`
	SubChannelID  int            `json:"sub_channel_id"`
	Status        string         `json:"status"`
	VisibleToUser bool           `json:"visible_to_user"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CampaignStatusActive marks a campaign as the organization's current one.
const CampaignStatusActive = "active"

// ContentPlan describes non-content constraints for a campaign's mailings.
type ContentPlan struct {
	ID               int64     `json:"id"`
	OrgID            int64     `json:"org_id"`
	CampaignID       int64     `json:"campaign_id"`
	RestrictedTopics string    `json:"restricted_topics"`
	Audience         string    `json:"audience"`
	Style            string    `json:"style"`
	WaveCount        int       `json:"wave_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Wave is a single mailing inside a content plan.
type Wave struct {
	ID         int64     `json:"id"`
	PlanID     int64     `json:"plan_id"`
	CampaignID int64     `json:"campaign_id"`
	Subject    string    `json:"subject"`
	SendDate   time.Time `json:"send_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Template is a generated email body bound to a wave. Templates are never hard
// deleted; Active=false is the soft-delete marker. Edits append a new row.
type Template struct {
	ID          int64     `json:"id"`
	WaveID      int64     `json:"wave_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	UserRequest string    `json:"user_request"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// SegmentTable is the summary record for a dynamically created relation.
type SegmentTable struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	TableName   string    `json:"table_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubChannel is a messaging-platform sub-thread dedicated to one campaign.
type SubChannel struct {
	ChannelID    int64     `json:"channel_id"`
	SubChannelID int       `json:"sub_channel_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeadColumns is the fixed column set of per-organization lead tables, in
// storage order. The email column is the natural key of a lead row.
var LeadColumns = []string{"email", "name", "company", "position", "region", "phone", "subscribed", "employees"}

// Lead is one row of an organization's lead table.
type Lead map[string]string

// Email returns the lead's email cell.
func (l Lead) Email() string { return l["email"] }
