// Package store provides storage backends for campaigner.
//
// This file implements an in-memory store used by tests and by deployments
// that explicitly opt out of persistence.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/groundworkhq/campaigner/internal/models"
)

type convKey struct {
	botID, userID, channelID int64
	subChannelID             int
}

type subChannelKey struct {
	channelID    int64
	subChannelID int
}

// InMemoryStore keeps everything in maps guarded by one mutex.
type InMemoryStore struct {
	mu sync.RWMutex

	convStates    map[convKey]models.ConversationState
	organizations map[int64]models.Organization
	profiles      map[int64]models.OrganizationProfile
	subChannels   map[subChannelKey]models.SubChannel
	campaigns     map[int64]models.Campaign
	contentPlans  map[int64]models.ContentPlan
	waves         map[int64]models.Wave
	templates     map[int64]models.Template
	segmentTables map[int64]models.SegmentTable
	relations     map[string]*relation

	nextID int64
}

type relation struct {
	columns []string
	rows    []models.Lead
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		convStates:    make(map[convKey]models.ConversationState),
		organizations: make(map[int64]models.Organization),
		profiles:      make(map[int64]models.OrganizationProfile),
		subChannels:   make(map[subChannelKey]models.SubChannel),
		campaigns:     make(map[int64]models.Campaign),
		contentPlans:  make(map[int64]models.ContentPlan),
		waves:         make(map[int64]models.Wave),
		templates:     make(map[int64]models.Template),
		segmentTables: make(map[int64]models.SegmentTable),
		relations:     make(map[string]*relation),
	}
}

func (s *InMemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

func toConvKey(c models.ConversationContext) convKey {
	return convKey{botID: c.BotID, userID: c.UserID, channelID: c.ChannelID, subChannelID: c.SubChannelID}
}

// GetConvState returns the conversation state for a context, or nil if the
// context has no active flow.
func (s *InMemoryStore) GetConvState(conv models.ConversationContext) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.convStates[toConvKey(conv)]
	if !ok {
		return nil, nil
	}
	copied := state
	copied.Data = copyStringMap(state.Data)
	return &copied, nil
}

func (s *InMemoryStore) SaveConvState(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := state
	stored.Data = copyStringMap(state.Data)
	s.convStates[toConvKey(state.Context)] = stored
	return nil
}

func (s *InMemoryStore) DeleteConvState(conv models.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convStates, toConvKey(conv))
	return nil
}

func (s *InMemoryStore) CreateOrganization(org models.Organization) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.organizations {
		if existing.ChannelID == org.ChannelID {
			return 0, fmt.Errorf("organization for channel %d already exists", org.ChannelID)
		}
	}
	org.ID = s.allocID()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}
	s.organizations[org.ID] = org
	return org.ID, nil
}

func (s *InMemoryStore) GetOrganization(id int64) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := org
	return &copied, nil
}

func (s *InMemoryStore) GetOrganizationByChannel(channelID int64) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.organizations {
		if org.ChannelID == channelID {
			copied := org
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) GetProfile(orgID int64) (*models.OrganizationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := profile
	copied.Fields = copyStringMap(profile.Fields)
	return &copied, nil
}

func (s *InMemoryStore) SaveProfile(profile models.OrganizationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile.UpdatedAt = time.Now()
	profile.Fields = copyStringMap(profile.Fields)
	s.profiles[profile.OrgID] = profile
	return nil
}

func (s *InMemoryStore) SaveSubChannel(sc models.SubChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	s.subChannels[subChannelKey{sc.ChannelID, sc.SubChannelID}] = sc
	return nil
}

func (s *InMemoryStore) GetSubChannel(channelID int64, subChannelID int) (*models.SubChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.subChannels[subChannelKey{channelID, subChannelID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := sc
	return &copied, nil
}

func (s *InMemoryStore) DeleteSubChannel(channelID int64, subChannelID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subChannels, subChannelKey{channelID, subChannelID})
	return nil
}

// UpsertCampaignBySubChannel inserts a campaign or, when a row for the same
// (org, sub-channel) pair exists, updates its derived fields in place.
func (s *InMemoryStore) UpsertCampaignBySubChannel(c models.Campaign) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.campaigns {
		if existing.OrgID == c.OrgID && existing.SubChannelID == c.SubChannelID {
			c.ID = id
			c.CreatedAt = existing.CreatedAt
			s.campaigns[id] = c
			return id, nil
		}
	}
	c.ID = s.allocID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.campaigns[c.ID] = c
	return c.ID, nil
}

func (s *InMemoryStore) GetCampaign(id int64) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *InMemoryStore) GetCampaignBySubChannel(orgID int64, subChannelID int) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.campaigns {
		if c.OrgID == orgID && c.SubChannelID == subChannelID {
			copied := c
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// ActiveCampaign returns the most recently created active, user-visible
// campaign for an organization.
func (s *InMemoryStore) ActiveCampaign(orgID int64) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Campaign
	for _, c := range s.campaigns {
		if c.OrgID != orgID || c.Status != models.CampaignStatusActive || !c.VisibleToUser {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) || (c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			copied := c
			latest = &copied
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *InMemoryStore) ListCampaigns(orgID int64) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.OrgID == orgID && c.VisibleToUser {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SoftDeleteCampaign(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.VisibleToUser = false
	s.campaigns[id] = c
	return nil
}

func (s *InMemoryStore) CreateContentPlan(p models.ContentPlan) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.allocID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.contentPlans[p.ID] = p
	return p.ID, nil
}

func (s *InMemoryStore) ListContentPlans(orgID int64) ([]models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ContentPlan
	for _, p := range s.contentPlans {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) GetContentPlan(id int64) (*models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.contentPlans[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *InMemoryStore) CreateWave(w models.Wave) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.allocID()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	s.waves[w.ID] = w
	return w.ID, nil
}

func (s *InMemoryStore) ListWaves(planID int64) ([]models.Wave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Wave
	for _, w := range s.waves {
		if w.PlanID == planID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) GetWave(id int64) (*models.Wave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.waves[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := w
	return &copied, nil
}

func (s *InMemoryStore) ListWavesDueOn(date time.Time) ([]models.Wave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, m, d := date.Date()
	var out []models.Wave
	for _, w := range s.waves {
		wy, wm, wd := w.SendDate.Date()
		if wy == y && wm == m && wd == d {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) CreateTemplate(t models.Template) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.allocID()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.templates[t.ID] = t
	return t.ID, nil
}

func (s *InMemoryStore) GetTemplate(id int64) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := t
	return &copied, nil
}

// ActiveTemplateForWave returns the newest non-deleted template bound to a
// wave.
func (s *InMemoryStore) ActiveTemplateForWave(waveID int64) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Template
	for _, t := range s.templates {
		if t.WaveID != waveID || !t.Active {
			continue
		}
		if latest == nil || t.ID > latest.ID {
			copied := t
			latest = &copied
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *InMemoryStore) SoftDeleteTemplate(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.Active = false
	s.templates[id] = t
	return nil
}

func (s *InMemoryStore) SaveSegmentTable(st models.SegmentTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.segmentTables {
		if existing.OrgID == st.OrgID && existing.TableName == st.TableName {
			st.ID = id
			st.CreatedAt = existing.CreatedAt
			s.segmentTables[id] = st
			return nil
		}
	}
	st.ID = s.allocID()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	s.segmentTables[st.ID] = st
	return nil
}

func (s *InMemoryStore) ListSegmentTables(orgID int64) ([]models.SegmentTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SegmentTable
	for _, st := range s.segmentTables {
		if st.OrgID == orgID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateRelation creates a dynamic relation if it does not already exist.
// A second creation with the same name is a no-op regardless of columns.
func (s *InMemoryStore) CreateRelation(name string, columns []string) error {
	if err := validateRelation(name, columns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relations[name]; ok {
		return nil
	}
	s.relations[name] = &relation{columns: append([]string(nil), columns...)}
	return nil
}

func (s *InMemoryStore) RelationExists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.relations[name]
	return ok, nil
}

func (s *InMemoryStore) InsertRows(name string, columns []string, rows [][]string) error {
	if err := validateRelation(name, columns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.relations[name]
	if !ok {
		return fmt.Errorf("relation %q does not exist", name)
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("relation %q: row has %d cells, want %d", name, len(row), len(columns))
		}
		lead := make(models.Lead, len(columns))
		for i, col := range columns {
			lead[col] = row[i]
		}
		rel.rows = append(rel.rows, lead)
	}
	return nil
}

func (s *InMemoryStore) QueryRelation(name string) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relations[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	out := make([]models.Lead, 0, len(rel.rows))
	for _, row := range rel.rows {
		out = append(out, copyLead(row))
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
