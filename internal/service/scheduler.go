package service

import (
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// CampaignStarter is the slice of the state machine the scheduler needs.
type CampaignStarter interface {
	Start(ownerID, campaignID int) error
}

// AutomationAdvancer is the slice of the sequencer the scheduler needs.
type AutomationAdvancer interface {
	Advance(auto *model.AutomatedCampaign, now time.Time) error
}

// SchedulerService discovers due work on a fixed period and hands it to the
// campaign state machine and the automation sequencer. Both claims are single
// atomic conditional writes, so overlapping ticks (or horizontally scaled
// scheduler instances) never both start the same due item.
type SchedulerService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	AutomationRepo repository.AutomationRepositoryInterface
	Campaigns      CampaignStarter
	Automations    AutomationAdvancer

	cron *cron.Cron
}

// Start begins ticking. spec is a cron expression or @every duration;
// one-minute granularity keeps sendTime-precision schedules within one period
// of their target.
func (s *SchedulerService) Start(spec string) error {
	if spec == "" {
		spec = "@every 1m"
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(time.Now()) }); err != nil {
		return err
	}
	s.cron.Start()
	log.Println("⏰ Scheduler running with period", spec)
	return nil
}

func (s *SchedulerService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Tick runs one due-work discovery pass.
func (s *SchedulerService) Tick(now time.Time) {
	s.startDueCampaigns(now)
	s.advanceDueAutomations(now)
}

// startDueCampaigns starts every one-shot campaign whose scheduledAt has
// passed. The conditional status flip inside Start is the claim; a resolution
// failure lands the campaign in failed, never stuck in scheduled.
func (s *SchedulerService) startDueCampaigns(now time.Time) {
	due, err := s.CampaignRepo.ListDueScheduled(now)
	if err != nil {
		log.Println("⚠️ Scheduler failed to list due campaigns:", err)
		return
	}

	for _, campaign := range due {
		err := s.Campaigns.Start(campaign.OwnerID, campaign.ID)
		if err == nil {
			log.Println("🚀 Started scheduled campaign", campaign.ID)
			continue
		}

		var illegal *appErrors.ErrIllegalTransition
		if errors.As(err, &illegal) {
			continue // another scheduler instance claimed it first
		}

		var empty *appErrors.ErrEmptyAudience
		var notFound *appErrors.ErrAudienceNotFound
		if errors.As(err, &empty) || errors.As(err, &notFound) {
			// Start already marked the campaign failed
			log.Println("Scheduled campaign", campaign.ID, "failed to start:", err)
			continue
		}

		log.Println("⚠️ Scheduled campaign", campaign.ID, "errored:", err)
		if merr := s.CampaignRepo.MarkFailed(campaign.ID, err.Error()); merr != nil {
			log.Println("⚠️ Failed to mark campaign", campaign.ID, "failed:", merr)
		}
	}
}

// advanceDueAutomations claims each due automation with a single conditional
// write and hands it to the sequencer, which persists the next wake-up.
func (s *SchedulerService) advanceDueAutomations(now time.Time) {
	due, err := s.AutomationRepo.ListDue(now)
	if err != nil {
		log.Println("⚠️ Scheduler failed to list due automations:", err)
		return
	}

	for _, auto := range due {
		claimed, err := s.AutomationRepo.ClaimDue(auto.ID, now)
		if err != nil {
			log.Println("⚠️ Failed to claim automation", auto.ID, ":", err)
			continue
		}
		if !claimed {
			continue // lost the race to another instance
		}

		if err := s.Automations.Advance(auto, now); err != nil {
			// next_run_at stays NULL: the automation goes dormant until its
			// steps are fixed and it is re-activated
			log.Println("⚠️ Automation", auto.ID, "failed to advance:", err)
		}
	}
}
