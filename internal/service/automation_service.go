package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// CampaignLifecycle is the slice of the campaign state machine the sequencer
// drives. Automated send steps spawn ordinary campaigns through it, keeping
// one source of truth for dispatch status.
type CampaignLifecycle interface {
	CreateCampaign(c *model.Campaign) (*model.Campaign, error)
	Start(ownerID, campaignID int) error
	StartGated(ownerID, campaignID int, gate ContactGate) error
}

// How long between completion polls of a running send step's campaign.
const stepPollInterval = time.Minute

// AutomationService sequences multi-step automated campaigns: send / wait /
// trigger steps form a ring re-entered on each recurrence, tracked by the
// current_step cursor and the append-only run ledger.
type AutomationService struct {
	AutomationRepo repository.AutomationRepositoryInterface
	CampaignRepo   repository.CampaignRepositoryInterface
	Campaigns      CampaignLifecycle
	Validator      RuleEvaluator
}

func (s *AutomationService) CreateAutomation(a *model.AutomatedCampaign) (*model.AutomatedCampaign, error) {
	if a.Settings == (model.CampaignSettings{}) {
		a.Settings = model.DefaultCampaignSettings()
	}
	if a.IsActive {
		a.NextRunAt = NextRun(a.ScheduleType, a.Schedule, a.SendTime, time.Now())
	}
	if err := s.AutomationRepo.Create(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AutomationService) ListAutomations(ownerID, page, pageSize int) ([]*model.AutomatedCampaign, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return s.AutomationRepo.List(ownerID, (page-1)*pageSize, pageSize)
}

func (s *AutomationService) GetAutomation(ownerID, id int) (*model.AutomatedCampaign, []model.AutomatedCampaignStep, error) {
	auto, err := s.AutomationRepo.GetByID(ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.AutomationRepo.GetSteps(auto.ID)
	if err != nil {
		return nil, nil, err
	}
	return auto, steps, nil
}

// ReplaceSteps validates and swaps the whole step sequence. Ownership of a
// trigger step's target campaign is checked here, at write time, not just at
// execution time.
func (s *AutomationService) ReplaceSteps(ownerID, automationID int, steps []model.AutomatedCampaignStep) error {
	auto, err := s.AutomationRepo.GetByID(ownerID, automationID)
	if err != nil {
		return err
	}

	for i, step := range steps {
		switch step.StepType {
		case model.StepTypeSend:
			if step.AudienceID == nil && auto.AudienceID == nil {
				return fmt.Errorf("send step %d has no audience and the automation has no default", i)
			}
		case model.StepTypeWait:
			if step.WaitAmount <= 0 || (step.WaitUnit != "hours" && step.WaitUnit != "days") {
				return fmt.Errorf("wait step %d needs a positive amount and unit hours|days", i)
			}
		case model.StepTypeTriggerCampaign:
			if step.TargetCampaignID == nil {
				return fmt.Errorf("trigger step %d has no target campaign", i)
			}
			if _, err := s.CampaignRepo.GetByID(ownerID, *step.TargetCampaignID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("step %d has unknown type %q", i, step.StepType)
		}
	}

	return s.AutomationRepo.ReplaceSteps(auto.ID, steps)
}

// Activate arms the automation: is_active plus a freshly computed next run.
// Manual schedules stay armed with a nil next run and only fire via RunNow.
func (s *AutomationService) Activate(ownerID, id int) error {
	auto, err := s.AutomationRepo.GetByID(ownerID, id)
	if err != nil {
		return err
	}
	next := NextRun(auto.ScheduleType, auto.Schedule, auto.SendTime, time.Now())
	return s.AutomationRepo.SetActive(ownerID, id, true, next)
}

func (s *AutomationService) Deactivate(ownerID, id int) error {
	if _, err := s.AutomationRepo.GetByID(ownerID, id); err != nil {
		return err
	}
	return s.AutomationRepo.SetActive(ownerID, id, false, nil)
}

// RunNow fires the automation immediately, bypassing the schedule.
func (s *AutomationService) RunNow(ownerID, id int) error {
	auto, err := s.AutomationRepo.GetByID(ownerID, id)
	if err != nil {
		return err
	}
	return s.Advance(auto, time.Now())
}

func (s *AutomationService) ListRuns(ownerID, id, page, pageSize int) ([]model.AutomatedCampaignRun, int, error) {
	auto, err := s.AutomationRepo.GetByID(ownerID, id)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return s.AutomationRepo.ListRuns(auto.ID, (page-1)*pageSize, pageSize)
}

// Advance processes one observable step event for a fired automation and
// persists the cursor plus the next wake-up. Step N+1 never executes before
// step N's terminal state is observed: a running send step re-arms a poll
// wake-up instead of moving on, and wait steps persist a future wake-up
// rather than sleeping.
func (s *AutomationService) Advance(auto *model.AutomatedCampaign, now time.Time) error {
	steps, err := s.AutomationRepo.GetSteps(auto.ID)
	if err != nil {
		return err
	}
	if err := checkStepSequence(auto.ID, steps); err != nil {
		return err
	}

	auto.LastRunAt = &now
	defer func() {
		if err := s.AutomationRepo.SaveProgress(auto); err != nil {
			log.Println("⚠️ Failed to persist automation progress:", err)
		}
	}()

	if len(steps) == 0 {
		// nothing to sequence; just re-arm the schedule
		auto.NextRunAt = NextRun(auto.ScheduleType, auto.Schedule, auto.SendTime, now)
		return nil
	}

	// Close out a send step whose implicit campaign is still being observed.
	open, err := s.AutomationRepo.GetOpenRun(auto.ID)
	if err != nil {
		return err
	}
	if open != nil {
		return s.observeOpenRun(auto, steps, open, now)
	}

	if auto.CurrentStep >= len(steps) {
		// steps shrank since the cursor was persisted; wrap to the top
		s.wrap(auto, now)
		return nil
	}

	step := steps[auto.CurrentStep]
	switch step.StepType {
	case model.StepTypeSend:
		return s.executeSendStep(auto, steps, step, now)
	case model.StepTypeWait:
		dur := waitDuration(step)
		auto.CurrentStep++
		wake := now.Add(dur)
		auto.NextRunAt = &wake
		// a wait as the last step delays the wrap until the wake-up fires
		return nil
	case model.StepTypeTriggerCampaign:
		return s.executeTriggerStep(auto, steps, step, now)
	}
	return appErrors.NewStepSequenceCorrupt(auto.ID)
}

func (s *AutomationService) observeOpenRun(auto *model.AutomatedCampaign, steps []model.AutomatedCampaignStep, run *model.AutomatedCampaignRun, now time.Time) error {
	if run.SpawnedCampaignID == nil {
		// ledger row without a campaign: close it out and move on
		if err := s.AutomationRepo.CloseRun(run.ID, model.RunStatusFailed, 0, 0, "run has no spawned campaign"); err != nil {
			return err
		}
		s.advanceCursor(auto, steps, now)
		return nil
	}

	campaign, err := s.CampaignRepo.GetByID(0, *run.SpawnedCampaignID)
	if err != nil {
		return err
	}

	switch campaign.Status {
	case model.CampaignStatusCompleted:
		if err := s.AutomationRepo.CloseRun(run.ID, model.RunStatusCompleted, campaign.SentCount, campaign.FailedCount, ""); err != nil {
			return err
		}
		auto.TotalSent += campaign.SentCount
		s.advanceCursor(auto, steps, now)
	case model.CampaignStatusFailed, model.CampaignStatusCancelled:
		if err := s.AutomationRepo.CloseRun(run.ID, model.RunStatusFailed, campaign.SentCount, campaign.FailedCount, campaign.FailureReason); err != nil {
			return err
		}
		s.advanceCursor(auto, steps, now)
	default:
		// still dispatching; look again shortly
		wake := now.Add(stepPollInterval)
		auto.NextRunAt = &wake
	}
	return nil
}

func (s *AutomationService) executeSendStep(auto *model.AutomatedCampaign, steps []model.AutomatedCampaignStep, step model.AutomatedCampaignStep, now time.Time) error {
	audienceID := auto.AudienceID
	if step.AudienceID != nil {
		audienceID = step.AudienceID
	}
	if audienceID == nil {
		if err := s.recordImmediateRun(auto, step, nil, model.RunStatusFailed, "send step has no audience"); err != nil {
			return err
		}
		s.advanceCursor(auto, steps, now)
		return nil
	}

	campaign, err := s.Campaigns.CreateCampaign(&model.Campaign{
		OwnerID:    auto.OwnerID,
		Name:       fmt.Sprintf("%s (step %d)", auto.Name, step.StepOrder+1),
		AudienceID: *audienceID,
		TemplateID: step.TemplateID,
		Settings:   auto.Settings,
	})
	if err != nil {
		return err
	}

	run := &model.AutomatedCampaignRun{
		CampaignID:        auto.ID,
		StepID:            step.ID,
		StepOrder:         step.StepOrder,
		CorrelationID:     uuid.NewString(),
		SpawnedCampaignID: &campaign.ID,
		Status:            model.RunStatusRunning,
	}
	if err := s.AutomationRepo.CreateRun(run); err != nil {
		return err
	}

	startErr := s.Campaigns.StartGated(auto.OwnerID, campaign.ID, s.gateFor(step))
	if startErr != nil {
		var empty *appErrors.ErrEmptyAudience
		var notFound *appErrors.ErrAudienceNotFound
		if errors.As(startErr, &empty) || errors.As(startErr, &notFound) {
			// the spawned campaign is already marked failed; close the run
			if err := s.AutomationRepo.CloseRun(run.ID, model.RunStatusFailed, 0, 0, startErr.Error()); err != nil {
				return err
			}
			s.advanceCursor(auto, steps, now)
			return nil
		}
		return startErr
	}

	// observe completion on the next poll
	wake := now.Add(stepPollInterval)
	auto.NextRunAt = &wake
	return nil
}

func (s *AutomationService) executeTriggerStep(auto *model.AutomatedCampaign, steps []model.AutomatedCampaignStep, step model.AutomatedCampaignStep, now time.Time) error {
	status := model.RunStatusCompleted
	message := ""
	if err := s.Campaigns.Start(auto.OwnerID, *step.TargetCampaignID); err != nil {
		status = model.RunStatusFailed
		message = err.Error()
	}
	if err := s.recordImmediateRun(auto, step, step.TargetCampaignID, status, message); err != nil {
		return err
	}
	s.advanceCursor(auto, steps, now)
	return nil
}

// recordImmediateRun appends a ledger row for a step that reached its
// terminal state within this invocation.
func (s *AutomationService) recordImmediateRun(auto *model.AutomatedCampaign, step model.AutomatedCampaignStep, spawned *int, status, message string) error {
	run := &model.AutomatedCampaignRun{
		CampaignID:        auto.ID,
		StepID:            step.ID,
		StepOrder:         step.StepOrder,
		CorrelationID:     uuid.NewString(),
		SpawnedCampaignID: spawned,
		Status:            status,
		ErrorMessage:      message,
	}
	if err := s.AutomationRepo.CreateRun(run); err != nil {
		return err
	}
	if status != model.RunStatusRunning {
		return s.AutomationRepo.CloseRun(run.ID, status, 0, 0, message)
	}
	return nil
}

// advanceCursor moves past a terminal step: either wrap the ring and re-arm
// the top-level schedule, or continue to the next step on the next tick.
func (s *AutomationService) advanceCursor(auto *model.AutomatedCampaign, steps []model.AutomatedCampaignStep, now time.Time) {
	auto.CurrentStep++
	if auto.CurrentStep >= len(steps) {
		s.wrap(auto, now)
		return
	}
	auto.NextRunAt = &now
}

func (s *AutomationService) wrap(auto *model.AutomatedCampaign, now time.Time) {
	auto.CurrentStep = 0
	auto.NextRunAt = NextRun(auto.ScheduleType, auto.Schedule, auto.SendTime, now)
}

func (s *AutomationService) gateFor(step model.AutomatedCampaignStep) ContactGate {
	if step.ValidationRuleID == "" || s.Validator == nil {
		return nil
	}
	ruleID := step.ValidationRuleID
	return func(c model.Contact) bool {
		ok, err := s.Validator.Evaluate(ruleID, c, nil)
		if err != nil {
			log.Println("⚠️ Validation rule", ruleID, "errored, skipping contact", c.ID, ":", err)
			return false // fail closed on runtime errors
		}
		return ok
	}
}

func waitDuration(step model.AutomatedCampaignStep) time.Duration {
	switch step.WaitUnit {
	case "days":
		return time.Duration(step.WaitAmount) * 24 * time.Hour
	default:
		return time.Duration(step.WaitAmount) * time.Hour
	}
}

// checkStepSequence verifies the stored orders form a dense 0-based sequence.
func checkStepSequence(campaignID int, steps []model.AutomatedCampaignStep) error {
	for i, step := range steps {
		if step.StepOrder != i {
			return appErrors.NewStepSequenceCorrupt(campaignID)
		}
	}
	return nil
}
