// Package flow implements the conversational core: the dispatcher, the
// per-flow state machines, and the state manager that backs them.
package flow

// FlowType identifies which flow engine owns a conversation.
type FlowType string

// StateType identifies a waypoint inside a flow.
type StateType string

// DataKey names a field in a conversation's accumulating data bag.
type DataKey = string

const (
	FlowOnboarding     FlowType = "onboarding"
	FlowCompanyEdit    FlowType = "company_edit"
	FlowCampaignCreate FlowType = "campaign_create"
	FlowCampaignDelete FlowType = "campaign_delete"
	FlowContentPlan    FlowType = "content_plan"
	FlowEmailUpload    FlowType = "email_upload"
	FlowSegmentCreate  FlowType = "segment_create"
	FlowTemplateCreate FlowType = "template_create"
	FlowTemplateEdit   FlowType = "template_edit"
	FlowTemplateDelete FlowType = "template_delete"
)

// Campaign-creation states.
const (
	StateWaitingCampaignName StateType = "waiting_for_campaign_name"
	StateWaitingCampaignData StateType = "waiting_for_campaign_data"
	StateWaitingStartDate    StateType = "waiting_for_start_date"
	StateWaitingEndDate      StateType = "waiting_for_end_date"
	StateWaitingFilters      StateType = "waiting_for_filters"
)

// Onboarding states.
const (
	StateWaitingCompanyName StateType = "waiting_for_company_name"
	StateWaitingMission     StateType = "waiting_for_mission"
	StateWaitingAudienceFAQ StateType = "waiting_for_faq"
)

// Company-edit states.
const (
	StateWaitingFieldName  StateType = "waiting_for_field_name"
	StateWaitingFieldValue StateType = "waiting_for_field_value"
)

// Content-plan states.
const (
	StateWaitingRestrictedTopics StateType = "waiting_for_restricted_topics"
	StateWaitingAudienceStyle    StateType = "waiting_for_audience_style"
	StateWaitingSendDate         StateType = "waiting_for_send_date"
)

// Email-upload states.
const (
	StateWaitingFileUpload     StateType = "waiting_for_file_upload"
	StateDuplicateEmailCheck   StateType = "duplicate_email_check"
	StateWaitingSegmentRequest StateType = "waiting_for_segment_description"
)

// Template flow states.
const (
	StateWaitingPlanChoice  StateType = "waiting_for_plan_choice"
	StateWaitingWaveChoice  StateType = "waiting_for_wave_choice"
	StateWaitingUserRequest StateType = "waiting_for_user_request"
	StateWaitingComments    StateType = "waiting_for_comments"
)

// Shared states.
const (
	StateWaitingConfirmation StateType = "waiting_for_confirmation"
)

// Data-bag keys. One bag per conversation, so keys are shared across flows.
const (
	KeyName             DataKey = "name"
	KeyStartDate        DataKey = "start_date"
	KeyEndDate          DataKey = "end_date"
	KeyFilters          DataKey = "filters"
	KeyMission          DataKey = "mission"
	KeyAudience         DataKey = "audience"
	KeyFAQ              DataKey = "faq"
	KeyField            DataKey = "field"
	KeyRestrictedTopics DataKey = "restricted_topics"
	KeyStyle            DataKey = "style"
	KeySendDate         DataKey = "send_date"
	KeyCampaignID       DataKey = "campaign_id"
	KeySubChannelID     DataKey = "sub_channel_id"
	KeyPlanID           DataKey = "plan_id"
	KeyWaveID           DataKey = "wave_id"
	KeyTemplateID       DataKey = "template_id"
	KeySubject          DataKey = "subject"
	KeyBody             DataKey = "body"
	KeyUserRequest      DataKey = "user_request"
	KeyPendingRows      DataKey = "pending_rows"
	KeyDroppedRows      DataKey = "dropped_rows"
)
