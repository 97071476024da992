package service_test

import (
	"sync"
	"time"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/filter"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

// Shared in-memory fakes. Campaign and recipient repos share state so rows
// materialized through one show up in the other, like the real tables do.

type memState struct {
	mu           sync.Mutex
	campaignSeq  int
	recipientSeq int
	campaigns    map[int]*model.Campaign
	recipients   map[int]*model.Recipient
}

func newMemState() *memState {
	return &memState{
		campaigns:  map[int]*model.Campaign{},
		recipients: map[int]*model.Recipient{},
	}
}

type memCampaignRepo struct{ s *memState }

func (r *memCampaignRepo) Create(c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.campaignSeq++
	c.ID = r.s.campaignSeq
	c.CreatedAt = time.Now()
	stored := *c
	r.s.campaigns[c.ID] = &stored
	return nil
}

func (r *memCampaignRepo) GetByID(ownerID, id int) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || (ownerID != 0 && c.OwnerID != ownerID) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (r *memCampaignRepo) ListCampaigns(ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*model.Campaign
	for i := 1; i <= r.s.campaignSeq; i++ {
		c, ok := r.s.campaigns[i]
		if !ok || c.OwnerID != ownerID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		all = append(all, &copied)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memCampaignRepo) Delete(ownerID, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(r.s.campaigns, id)
	return nil
}

func (r *memCampaignRepo) UpdateStatusFrom(campaignID int, to string, from []string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *memCampaignRepo) MarkFailed(campaignID int, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return nil
	}
	switch c.Status {
	case model.CampaignStatusDraft, model.CampaignStatusScheduled,
		model.CampaignStatusRunning, model.CampaignStatusPaused:
		c.Status = model.CampaignStatusFailed
		c.FailureReason = reason
	}
	return nil
}

func (r *memCampaignRepo) MarkCompleted(campaignID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return nil
	}
	if c.Status == model.CampaignStatusRunning || c.Status == model.CampaignStatusPaused {
		now := time.Now()
		c.Status = model.CampaignStatusCompleted
		c.CompletedAt = &now
	}
	return nil
}

func (r *memCampaignRepo) Materialize(campaignID int, from []string, recipients []model.Recipient) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	claimed := false
	for _, f := range from {
		if c.Status == f {
			claimed = true
			break
		}
	}
	if !claimed {
		return false, nil
	}

	for id, rec := range r.s.recipients {
		if rec.CampaignID == campaignID && rec.Status == model.RecipientStatusPending {
			delete(r.s.recipients, id)
		}
	}
	for _, rec := range recipients {
		r.s.recipientSeq++
		rec.ID = r.s.recipientSeq
		rec.CampaignID = campaignID
		rec.Status = model.RecipientStatusPending
		stored := rec
		r.s.recipients[rec.ID] = &stored
	}

	now := time.Now()
	c.Status = model.CampaignStatusRunning
	c.TotalRecipients = len(recipients)
	c.StartedAt = &now
	return true, nil
}

func (r *memCampaignRepo) CountActiveRecipients(campaignID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, rec := range r.s.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		if rec.Status == model.RecipientStatusPending || rec.Status == model.RecipientStatusSending {
			count++
		}
	}
	return count, nil
}

func (r *memCampaignRepo) AddCounters(campaignID, sentDelta, failedDelta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.campaigns[campaignID]; ok {
		c.SentCount += sentDelta
		c.FailedCount += failedDelta
	}
	return nil
}

func (r *memCampaignRepo) GetCampaignStats(campaignID int) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := map[string]int{}
	for _, rec := range r.s.recipients {
		if rec.CampaignID == campaignID {
			stats[rec.Status]++
		}
	}
	return stats, nil
}

func (r *memCampaignRepo) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []*model.Campaign
	for i := 1; i <= r.s.campaignSeq; i++ {
		c, ok := r.s.campaigns[i]
		if !ok || c.Status != model.CampaignStatusScheduled {
			continue
		}
		if c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			copied := *c
			due = append(due, &copied)
		}
	}
	return due, nil
}

type memRecipientRepo struct{ s *memState }

func (r *memRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (r *memRecipientRepo) ListPending(campaignID, limit int) ([]model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Recipient
	for i := 1; i <= r.s.recipientSeq && len(out) < limit; i++ {
		rec, ok := r.s.recipients[i]
		if ok && rec.CampaignID == campaignID && rec.Status == model.RecipientStatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memRecipientRepo) ListByCampaign(campaignID, offset, limit int) ([]model.Recipient, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.Recipient
	for i := 1; i <= r.s.recipientSeq; i++ {
		if rec, ok := r.s.recipients[i]; ok && rec.CampaignID == campaignID {
			all = append(all, *rec)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memRecipientRepo) ClaimSending(id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[id]
	if !ok || rec.Status != model.RecipientStatusPending {
		return false, nil
	}
	rec.Status = model.RecipientStatusSending
	return true, nil
}

func (r *memRecipientRepo) UpdateStatus(id int, status, errorMessage string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.recipients[id]; ok {
		rec.Status = status
		rec.ErrorMessage = errorMessage
	}
	return nil
}

// mockSender records dispatch hand-offs instead of walking recipients.
type mockSender struct {
	mu        sync.Mutex
	started   []int
	paused    []int
	cancelled []int
}

func (m *mockSender) StartDispatch(campaignID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, campaignID)
	return nil
}

func (m *mockSender) Pause(campaignID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = append(m.paused, campaignID)
}

func (m *mockSender) Cancel(campaignID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, campaignID)
}

// stubResolver serves canned audiences keyed by audience id. onResolve, when
// set, fires before the result is returned so tests can interleave a
// concurrent transition with a start's resolution phase.
type stubResolver struct {
	contacts  map[int][]model.Contact
	err       error
	onResolve func()
}

func (r *stubResolver) Resolve(ownerID, audienceID int) ([]model.Contact, error) {
	if r.onResolve != nil {
		r.onResolve()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.contacts[audienceID], nil
}

func (r *stubResolver) CalculateCount(ownerID int, expr *filter.Expression) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	total := 0
	for _, list := range r.contacts {
		total += len(list)
	}
	return total, nil
}

// memAutomationRepo backs the sequencer tests.
type memAutomationRepo struct {
	mu       sync.Mutex
	seq      int
	runSeq   int
	autos    map[int]*model.AutomatedCampaign
	steps    map[int][]model.AutomatedCampaignStep
	runs     map[int]*model.AutomatedCampaignRun
	runOrder []int
}

func newMemAutomationRepo() *memAutomationRepo {
	return &memAutomationRepo{
		autos: map[int]*model.AutomatedCampaign{},
		steps: map[int][]model.AutomatedCampaignStep{},
		runs:  map[int]*model.AutomatedCampaignRun{},
	}
}

func (r *memAutomationRepo) Create(a *model.AutomatedCampaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	a.ID = r.seq
	a.CreatedAt = time.Now()
	stored := *a
	r.autos[a.ID] = &stored
	return nil
}

func (r *memAutomationRepo) GetByID(ownerID, id int) (*model.AutomatedCampaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.autos[id]
	if !ok || (ownerID != 0 && a.OwnerID != ownerID) {
		return nil, appErrors.NewAutomationNotFound(id)
	}
	copied := *a
	return &copied, nil
}

func (r *memAutomationRepo) List(ownerID, offset, limit int) ([]*model.AutomatedCampaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.AutomatedCampaign
	for i := 1; i <= r.seq; i++ {
		if a, ok := r.autos[i]; ok && a.OwnerID == ownerID {
			copied := *a
			all = append(all, &copied)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memAutomationRepo) SetActive(ownerID, id int, active bool, nextRunAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.autos[id]; ok {
		a.IsActive = active
		a.NextRunAt = nextRunAt
	}
	return nil
}

func (r *memAutomationRepo) SaveProgress(a *model.AutomatedCampaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.autos[a.ID]
	if !ok {
		return appErrors.NewAutomationNotFound(a.ID)
	}
	stored.CurrentStep = a.CurrentStep
	stored.NextRunAt = a.NextRunAt
	stored.TotalSent = a.TotalSent
	stored.LastRunAt = a.LastRunAt
	return nil
}

func (r *memAutomationRepo) ClaimDue(id int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.autos[id]
	if !ok || !a.IsActive || a.NextRunAt == nil || a.NextRunAt.After(now) {
		return false, nil
	}
	a.NextRunAt = nil
	return true, nil
}

func (r *memAutomationRepo) ListDue(now time.Time) ([]*model.AutomatedCampaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.AutomatedCampaign
	for i := 1; i <= r.seq; i++ {
		a, ok := r.autos[i]
		if ok && a.IsActive && a.NextRunAt != nil && !a.NextRunAt.After(now) {
			copied := *a
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *memAutomationRepo) GetSteps(campaignID int) ([]model.AutomatedCampaignStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AutomatedCampaignStep(nil), r.steps[campaignID]...), nil
}

func (r *memAutomationRepo) ReplaceSteps(campaignID int, steps []model.AutomatedCampaignStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := make([]model.AutomatedCampaignStep, len(steps))
	for i, s := range steps {
		s.ID = i + 1
		s.CampaignID = campaignID
		s.StepOrder = i
		replaced[i] = s
	}
	r.steps[campaignID] = replaced
	if a, ok := r.autos[campaignID]; ok {
		a.CurrentStep = 0
	}
	return nil
}

func (r *memAutomationRepo) CreateRun(run *model.AutomatedCampaignRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runSeq++
	run.ID = r.runSeq
	run.StartedAt = time.Now()
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	stored := *run
	r.runs[run.ID] = &stored
	r.runOrder = append(r.runOrder, run.ID)
	return nil
}

func (r *memAutomationRepo) CloseRun(runID int, status string, sent, failed int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil
	}
	now := time.Now()
	run.Status = status
	run.SentCount = sent
	run.FailedCount = failed
	run.ErrorMessage = errorMessage
	run.CompletedAt = &now
	return nil
}

func (r *memAutomationRepo) GetOpenRun(campaignID int) (*model.AutomatedCampaignRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runOrder) - 1; i >= 0; i-- {
		run := r.runs[r.runOrder[i]]
		if run.CampaignID == campaignID && run.Status == model.RunStatusRunning {
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memAutomationRepo) ListRuns(campaignID, offset, limit int) ([]model.AutomatedCampaignRun, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.AutomatedCampaignRun
	for i := len(r.runOrder) - 1; i >= 0; i-- {
		run := r.runs[r.runOrder[i]]
		if run.CampaignID == campaignID {
			all = append(all, *run)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
