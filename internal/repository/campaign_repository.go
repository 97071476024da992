package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(ownerID, id int) (*model.Campaign, error)
	ListCampaigns(ownerID, offset, limit int, status string) ([]*model.Campaign, int, error)
	Delete(ownerID, id int) error

	// Status transitions. UpdateStatusFrom is the atomic conditional flip the
	// state machine and scheduler claims rely on: it reports whether this
	// caller won the transition.
	UpdateStatusFrom(campaignID int, to string, from []string) (bool, error)
	MarkFailed(campaignID int, reason string) error
	MarkCompleted(campaignID int) error

	// Recipient materialization and ledger bookkeeping
	Materialize(campaignID int, from []string, recipients []model.Recipient) (bool, error)
	CountActiveRecipients(campaignID int) (int, error)
	AddCounters(campaignID, sentDelta, failedDelta int) error
	GetCampaignStats(campaignID int) (map[string]int, error)

	// Scheduler queries
	ListDueScheduled(now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner_id, name, audience_id, template_id, message, status, scheduled_at, settings,
        total_recipients, sent_count, failed_count, failure_reason, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	var settings []byte
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.AudienceID, &c.TemplateID, &c.Message, &c.Status,
		&c.ScheduledAt, &settings, &c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&c.FailureReason, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Settings = model.DefaultCampaignSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (owner_id, name, audience_id, template_id, message, status, scheduled_at, settings, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.OwnerID, c.Name, c.AudienceID, c.TemplateID, c.Message, c.Status, c.ScheduledAt, settings, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ownerID, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	args := []interface{}{id}
	if ownerID > 0 {
		query += ` AND owner_id=$2`
		args = append(args, ownerID)
	}
	c, err := scanCampaign(r.DB.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE owner_id=$1`
	args := []interface{}{ownerID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE owner_id=$1`
	argsCount := []interface{}{ownerID}
	if status != "" {
		countQuery += ` AND status=$2`
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) Delete(ownerID, id int) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE owner_id=$1 AND id=$2`, ownerID, id)
	return err
}

// ====================== Status transitions ======================

func (r *CampaignRepository) UpdateStatusFrom(campaignID int, to string, from []string) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
	res, err := r.DB.Exec(query, to, campaignID, pq.Array(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed only flips non-terminal campaigns: a cancel that lands while a
// start is mid-resolution must not be clobbered to failed.
func (r *CampaignRepository) MarkFailed(campaignID int, reason string) error {
	from := []string{
		model.CampaignStatusDraft,
		model.CampaignStatusScheduled,
		model.CampaignStatusRunning,
		model.CampaignStatusPaused,
	}
	query := `UPDATE campaigns SET status=$1, failure_reason=$2, updated_at=NOW() WHERE id=$3 AND status = ANY($4)`
	_, err := r.DB.Exec(query, model.CampaignStatusFailed, reason, campaignID, pq.Array(from))
	return err
}

func (r *CampaignRepository) MarkCompleted(campaignID int) error {
	query := `
        UPDATE campaigns SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status = ANY($3)
    `
	running := []string{model.CampaignStatusRunning, model.CampaignStatusPaused}
	_, err := r.DB.Exec(query, model.CampaignStatusCompleted, campaignID, pq.Array(running))
	return err
}

// ====================== Recipient materialization ======================

// Materialize performs the short atomic unit of a campaign start: flip the
// status to running (conditionally, from one of the legal source statuses),
// purge prior pending rows, insert one snapshot row per resolved contact
// (ignore-on-conflict keeps double starts idempotent) and freeze
// total_recipients. Audience resolution happens before this call so no lock is
// held across that latency. Returns false without mutating anything when a
// concurrent starter already claimed the flip.
func (r *CampaignRepository) Materialize(campaignID int, from []string, recipients []model.Recipient) (bool, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        UPDATE campaigns
        SET status=$1, total_recipients=$2, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
        WHERE id=$3 AND status = ANY($4)
    `, model.CampaignStatusRunning, len(recipients), campaignID, pq.Array(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil // lost the claim
	}

	if _, err := tx.Exec(`DELETE FROM recipients WHERE campaign_id=$1 AND status=$2`,
		campaignID, model.RecipientStatusPending); err != nil {
		return false, err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO recipients (campaign_id, contact_id, phone, display_name, status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	for _, rec := range recipients {
		if _, err := stmt.Exec(campaignID, rec.ContactID, rec.Phone, rec.DisplayName, model.RecipientStatusPending); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CountActiveRecipients counts rows still in a non-terminal status.
func (r *CampaignRepository) CountActiveRecipients(campaignID int) (int, error) {
	var count int
	err := r.DB.QueryRow(`
        SELECT COUNT(*) FROM recipients
        WHERE campaign_id=$1 AND status = ANY($2)
    `, campaignID, pq.Array([]string{model.RecipientStatusPending, model.RecipientStatusSending})).Scan(&count)
	return count, err
}

func (r *CampaignRepository) AddCounters(campaignID, sentDelta, failedDelta int) error {
	query := `
        UPDATE campaigns
        SET sent_count = sent_count + $1, failed_count = failed_count + $2, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.Exec(query, sentDelta, failedDelta, campaignID)
	return err
}

func (r *CampaignRepository) GetCampaignStats(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"pending": 0, "sending": 0, "sent": 0, "delivered": 0, "read": 0, "failed": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, nil
}

// ====================== Scheduler queries ======================

func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2`
	rows, err := r.DB.Query(query, model.CampaignStatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
