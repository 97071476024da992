package service

import (
	"log"
	"strings"
	"time"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// DispatchSender is the external Sender contract. StartDispatch is idempotent
// (resumes from pending rows); Pause and Cancel are cooperative stop signals
// keyed by campaign id, not hard kills.
type DispatchSender interface {
	StartDispatch(campaignID int) error
	Pause(campaignID int)
	Cancel(campaignID int)
}

// ContactGate optionally filters resolved contacts at materialization time.
// Used by automated send steps that gate content on an external check.
type ContactGate func(model.Contact) bool

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Resolver      AudienceResolverInterface
	Sender        DispatchSender
}

// startableFrom are the statuses Start may claim from. A paused campaign can
// also be restarted from scratch; Resume is the cheaper path that keeps the
// existing ledger.
var startableFrom = []string{
	model.CampaignStatusDraft,
	model.CampaignStatusScheduled,
	model.CampaignStatusPaused,
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

func (s *CampaignService) CreateCampaign(c *model.Campaign) (*model.Campaign, error) {
	c.Status = model.CampaignStatusDraft
	if c.ScheduledAt != nil && c.ScheduledAt.After(time.Now()) {
		c.Status = model.CampaignStatusScheduled
	}
	if c.Settings == (model.CampaignSettings{}) {
		c.Settings = model.DefaultCampaignSettings()
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Start drives draft/scheduled/paused -> running. The audience is resolved
// before any lock is taken; the materialization itself (purge pending, insert
// snapshot rows, freeze total_recipients, flip status) is one atomic unit in
// the repository. A second concurrent Start loses the conditional flip and
// becomes a no-op, which makes Start idempotent under overlapping scheduler
// ticks.
func (s *CampaignService) Start(ownerID, campaignID int) error {
	return s.start(ownerID, campaignID, nil)
}

// StartGated is Start with a per-contact gate applied after resolution.
func (s *CampaignService) StartGated(ownerID, campaignID int, gate ContactGate) error {
	return s.start(ownerID, campaignID, gate)
}

func (s *CampaignService) start(ownerID, campaignID int, gate ContactGate) error {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return err
	}
	if !statusIn(campaign.Status, startableFrom) {
		return appErrors.NewIllegalTransition(campaign.Status, model.CampaignStatusRunning)
	}

	contacts, err := s.Resolver.Resolve(campaign.OwnerID, campaign.AudienceID)
	if err != nil {
		// Resolution failure is terminal for this run: the campaign lands in
		// failed with a stored reason and is not retried automatically.
		if merr := s.CampaignRepo.MarkFailed(campaignID, err.Error()); merr != nil {
			log.Println("⚠️ Failed to mark campaign failed:", merr)
		}
		return err
	}

	recipients := make([]model.Recipient, 0, len(contacts))
	for _, c := range contacts {
		if campaign.Settings.SkipBlocked && c.IsBlocked {
			continue
		}
		if campaign.Settings.SkipInvalid && strings.TrimSpace(c.Phone) == "" {
			continue
		}
		if gate != nil && !gate(c) {
			continue
		}
		recipients = append(recipients, model.Recipient{
			ContactID:   c.ID,
			Phone:       c.Phone,
			DisplayName: c.DisplayName,
		})
	}

	if len(recipients) == 0 {
		emptyErr := appErrors.NewEmptyAudience(campaignID, campaign.AudienceID)
		if merr := s.CampaignRepo.MarkFailed(campaignID, emptyErr.Error()); merr != nil {
			log.Println("⚠️ Failed to mark campaign failed:", merr)
		}
		return emptyErr
	}

	claimed, err := s.CampaignRepo.Materialize(campaignID, startableFrom, recipients)
	if err != nil {
		return err
	}
	if !claimed {
		log.Println("Campaign", campaignID, "already claimed by a concurrent start")
		return nil
	}

	// Hand off to the Sender; dispatch completion arrives via callbacks.
	return s.Sender.StartDispatch(campaignID)
}

func (s *CampaignService) Pause(ownerID, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.CampaignRepo.UpdateStatusFrom(campaignID, model.CampaignStatusPaused, []string{model.CampaignStatusRunning})
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewIllegalTransition(campaign.Status, model.CampaignStatusPaused)
	}
	s.Sender.Pause(campaignID)
	return nil
}

// Resume flips paused -> running and re-invokes the Sender against the
// existing recipient rows; nothing is re-materialized.
func (s *CampaignService) Resume(ownerID, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.CampaignRepo.UpdateStatusFrom(campaignID, model.CampaignStatusRunning, []string{model.CampaignStatusPaused})
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewIllegalTransition(campaign.Status, model.CampaignStatusRunning)
	}
	return s.Sender.StartDispatch(campaignID)
}

func (s *CampaignService) Cancel(ownerID, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return err
	}
	from := []string{model.CampaignStatusRunning, model.CampaignStatusPaused, model.CampaignStatusScheduled}
	ok, err := s.CampaignRepo.UpdateStatusFrom(campaignID, model.CampaignStatusCancelled, from)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewIllegalTransition(campaign.Status, model.CampaignStatusCancelled)
	}
	s.Sender.Cancel(campaignID)
	return nil
}

// Delete is only legal from terminal-or-inert states; a live campaign must be
// cancelled first.
func (s *CampaignService) Delete(ownerID, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return err
	}
	deletable := []string{
		model.CampaignStatusDraft,
		model.CampaignStatusScheduled,
		model.CampaignStatusCancelled,
		model.CampaignStatusCompleted,
		model.CampaignStatusFailed,
	}
	if !statusIn(campaign.Status, deletable) {
		return appErrors.NewIllegalTransition(campaign.Status, "deleted")
	}
	return s.CampaignRepo.Delete(ownerID, campaignID)
}

// HandleDispatchReport records one per-recipient outcome from the Sender and
// completes the campaign once no recipient remains pending or sending. A
// per-recipient failure stays on the recipient row and never fails the
// campaign as a whole.
func (s *CampaignService) HandleDispatchReport(recipientID int, status, errorMessage string) error {
	rec, err := s.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Println("⚠️ Dispatch report for unknown recipient:", recipientID)
		return nil
	}

	if err := s.RecipientRepo.UpdateStatus(recipientID, status, errorMessage); err != nil {
		return err
	}

	switch status {
	case model.RecipientStatusSent:
		if err := s.CampaignRepo.AddCounters(rec.CampaignID, 1, 0); err != nil {
			return err
		}
	case model.RecipientStatusFailed:
		if err := s.CampaignRepo.AddCounters(rec.CampaignID, 0, 1); err != nil {
			return err
		}
	default:
		return nil // delivered/read don't move campaign counters
	}

	active, err := s.CampaignRepo.CountActiveRecipients(rec.CampaignID)
	if err != nil {
		return err
	}
	if active == 0 {
		return s.CampaignRepo.MarkCompleted(rec.CampaignID)
	}
	return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ownerID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ownerID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ownerID, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
