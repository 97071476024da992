package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

type AutomationRepositoryInterface interface {
	Create(a *model.AutomatedCampaign) error
	GetByID(ownerID, id int) (*model.AutomatedCampaign, error)
	List(ownerID, offset, limit int) ([]*model.AutomatedCampaign, int, error)
	SetActive(ownerID, id int, active bool, nextRunAt *time.Time) error
	SaveProgress(a *model.AutomatedCampaign) error

	// ClaimDue is the scheduler's atomic check-and-flip: it nulls next_run_at
	// only if the automation is still active and still due, and reports
	// whether this caller won the claim.
	ClaimDue(id int, now time.Time) (bool, error)
	ListDue(now time.Time) ([]*model.AutomatedCampaign, error)

	// Steps
	GetSteps(campaignID int) ([]model.AutomatedCampaignStep, error)
	ReplaceSteps(campaignID int, steps []model.AutomatedCampaignStep) error

	// Run ledger (append-only)
	CreateRun(run *model.AutomatedCampaignRun) error
	CloseRun(runID int, status string, sent, failed int, errorMessage string) error
	GetOpenRun(campaignID int) (*model.AutomatedCampaignRun, error)
	ListRuns(campaignID, offset, limit int) ([]model.AutomatedCampaignRun, int, error)
}

type AutomationRepository struct {
	DB *sql.DB
}

const automationColumns = `id, owner_id, name, audience_id, schedule_type, schedule_config, send_time, settings,
        current_step, next_run_at, total_sent, last_run_at, is_active, created_at, updated_at`

func scanAutomation(row interface{ Scan(...any) error }) (*model.AutomatedCampaign, error) {
	var a model.AutomatedCampaign
	var schedule, settings []byte
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.AudienceID, &a.ScheduleType, &schedule, &a.SendTime,
		&settings, &a.CurrentStep, &a.NextRunAt, &a.TotalSent, &a.LastRunAt, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &a.Schedule); err != nil {
			return nil, err
		}
	}
	a.Settings = model.DefaultCampaignSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &a.Settings); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *AutomationRepository) Create(a *model.AutomatedCampaign) error {
	a.CreatedAt = time.Now()
	if a.ScheduleType == "" {
		a.ScheduleType = model.ScheduleTypeManual
	}
	if a.SendTime == "" {
		a.SendTime = "09:00"
	}
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO automated_campaigns
            (owner_id, name, audience_id, schedule_type, schedule_config, send_time, settings, next_run_at, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		a.OwnerID, a.Name, a.AudienceID, a.ScheduleType, schedule, a.SendTime, settings,
		a.NextRunAt, a.IsActive, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *AutomationRepository) GetByID(ownerID, id int) (*model.AutomatedCampaign, error) {
	query := `SELECT ` + automationColumns + ` FROM automated_campaigns WHERE id=$1`
	args := []interface{}{id}
	if ownerID > 0 {
		query += ` AND owner_id=$2`
		args = append(args, ownerID)
	}
	a, err := scanAutomation(r.DB.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewAutomationNotFound(id)
		}
		return nil, err
	}
	return a, nil
}

func (r *AutomationRepository) List(ownerID, offset, limit int) ([]*model.AutomatedCampaign, int, error) {
	query := `SELECT ` + automationColumns + ` FROM automated_campaigns WHERE owner_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	automations := []*model.AutomatedCampaign{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, 0, err
		}
		automations = append(automations, a)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM automated_campaigns WHERE owner_id=$1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return automations, total, nil
}

func (r *AutomationRepository) SetActive(ownerID, id int, active bool, nextRunAt *time.Time) error {
	query := `
        UPDATE automated_campaigns SET is_active=$1, next_run_at=$2, updated_at=NOW()
        WHERE owner_id=$3 AND id=$4
    `
	_, err := r.DB.Exec(query, active, nextRunAt, ownerID, id)
	return err
}

// SaveProgress persists the sequencer's cursor, bookkeeping and next wake-up.
func (r *AutomationRepository) SaveProgress(a *model.AutomatedCampaign) error {
	query := `
        UPDATE automated_campaigns
        SET current_step=$1, next_run_at=$2, total_sent=$3, last_run_at=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, a.CurrentStep, a.NextRunAt, a.TotalSent, a.LastRunAt, a.ID)
	return err
}

func (r *AutomationRepository) ClaimDue(id int, now time.Time) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE automated_campaigns SET next_run_at=NULL, updated_at=NOW()
        WHERE id=$1 AND is_active=TRUE AND next_run_at IS NOT NULL AND next_run_at <= $2
    `, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AutomationRepository) ListDue(now time.Time) ([]*model.AutomatedCampaign, error) {
	query := `SELECT ` + automationColumns + ` FROM automated_campaigns WHERE is_active=TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1`
	rows, err := r.DB.Query(query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	automations := []*model.AutomatedCampaign{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

// ====================== Steps ======================

const stepColumns = `id, campaign_id, step_order, step_type, template_id, audience_id, send_time,
        validation_rule_id, wait_amount, wait_unit, target_campaign_id, created_at`

func (r *AutomationRepository) GetSteps(campaignID int) ([]model.AutomatedCampaignStep, error) {
	query := `SELECT ` + stepColumns + ` FROM automated_campaign_steps WHERE campaign_id=$1 ORDER BY step_order`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.AutomatedCampaignStep{}
	for rows.Next() {
		var s model.AutomatedCampaignStep
		if err := rows.Scan(
			&s.ID, &s.CampaignID, &s.StepOrder, &s.StepType, &s.TemplateID, &s.AudienceID,
			&s.SendTime, &s.ValidationRuleID, &s.WaitAmount, &s.WaitUnit, &s.TargetCampaignID, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ReplaceSteps swaps the whole sequence in one transaction so a torn sequence
// is never observable mid-update. Orders are rewritten densely from 0.
func (r *AutomationRepository) ReplaceSteps(campaignID int, steps []model.AutomatedCampaignStep) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM automated_campaign_steps WHERE campaign_id=$1`, campaignID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO automated_campaign_steps
            (campaign_id, step_order, step_type, template_id, audience_id, send_time, validation_rule_id, wait_amount, wait_unit, target_campaign_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range steps {
		if _, err := stmt.Exec(
			campaignID, i, s.StepType, s.TemplateID, s.AudienceID, s.SendTime,
			s.ValidationRuleID, s.WaitAmount, s.WaitUnit, s.TargetCampaignID,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE automated_campaigns SET current_step=0, updated_at=NOW() WHERE id=$1`, campaignID); err != nil {
		return err
	}

	return tx.Commit()
}

// ====================== Run ledger ======================

const runColumns = `id, campaign_id, step_id, step_order, correlation_id, spawned_campaign_id, status,
        total_recipients, sent_count, failed_count, current_index, error_message, started_at, completed_at, paused_at`

func scanRun(row interface{ Scan(...any) error }) (*model.AutomatedCampaignRun, error) {
	var run model.AutomatedCampaignRun
	err := row.Scan(
		&run.ID, &run.CampaignID, &run.StepID, &run.StepOrder, &run.CorrelationID,
		&run.SpawnedCampaignID, &run.Status, &run.TotalRecipients, &run.SentCount,
		&run.FailedCount, &run.CurrentIndex, &run.ErrorMessage,
		&run.StartedAt, &run.CompletedAt, &run.PausedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *AutomationRepository) CreateRun(run *model.AutomatedCampaignRun) error {
	run.StartedAt = time.Now()
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	query := `
        INSERT INTO automated_campaign_runs
            (campaign_id, step_id, step_order, correlation_id, spawned_campaign_id, status, total_recipients, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		run.CampaignID, run.StepID, run.StepOrder, run.CorrelationID, run.SpawnedCampaignID,
		run.Status, run.TotalRecipients, run.StartedAt,
	).Scan(&run.ID)
}

func (r *AutomationRepository) CloseRun(runID int, status string, sent, failed int, errorMessage string) error {
	query := `
        UPDATE automated_campaign_runs
        SET status=$1, sent_count=$2, failed_count=$3, error_message=$4, completed_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, status, sent, failed, errorMessage, runID)
	return err
}

func (r *AutomationRepository) GetOpenRun(campaignID int) (*model.AutomatedCampaignRun, error) {
	query := `SELECT ` + runColumns + ` FROM automated_campaign_runs WHERE campaign_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1`
	run, err := scanRun(r.DB.QueryRow(query, campaignID, model.RunStatusRunning))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func (r *AutomationRepository) ListRuns(campaignID, offset, limit int) ([]model.AutomatedCampaignRun, int, error) {
	query := `SELECT ` + runColumns + ` FROM automated_campaign_runs WHERE campaign_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []model.AutomatedCampaignRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM automated_campaign_runs WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

var _ AutomationRepositoryInterface = (*AutomationRepository)(nil)
