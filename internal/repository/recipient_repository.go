package repository

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	ListPending(campaignID, limit int) ([]model.Recipient, error)
	ListByCampaign(campaignID, offset, limit int) ([]model.Recipient, int, error)
	ClaimSending(id int) (bool, error)
	UpdateStatus(id int, status, errorMessage string) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, contact_id, phone, display_name, status, error_message,
        sent_at, delivered_at, read_at, created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Phone, &rec.DisplayName,
		&rec.Status, &rec.ErrorMessage, &rec.SentAt, &rec.DeliveredAt, &rec.ReadAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListPending returns the oldest still-pending rows for a campaign. Dispatch
// resumes from here after a pause, so sent rows are never re-enqueued.
func (r *RecipientRepository) ListPending(campaignID, limit int) ([]model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE campaign_id=$1 AND status=$2 ORDER BY id LIMIT $3`
	rows, err := r.DB.Query(query, campaignID, model.RecipientStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) ListByCampaign(campaignID, offset, limit int) ([]model.Recipient, int, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE campaign_id=$1 ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		recipients = append(recipients, *rec)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM recipients WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return recipients, total, nil
}

// ClaimSending flips pending -> sending as a single conditional write, so two
// dispatchers never pick up the same row.
func (r *RecipientRepository) ClaimSending(id int) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE recipients SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `, model.RecipientStatusSending, id, model.RecipientStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStatus records a dispatch outcome. Recipient status never regresses:
// a terminal row is only allowed to progress along sent -> delivered -> read.
func (r *RecipientRepository) UpdateStatus(id int, status, errorMessage string) error {
	var allowedFrom []string
	switch status {
	case model.RecipientStatusSent, model.RecipientStatusFailed:
		allowedFrom = []string{model.RecipientStatusPending, model.RecipientStatusSending}
	case model.RecipientStatusDelivered:
		allowedFrom = []string{model.RecipientStatusSending, model.RecipientStatusSent}
	case model.RecipientStatusRead:
		allowedFrom = []string{model.RecipientStatusSending, model.RecipientStatusSent, model.RecipientStatusDelivered}
	default:
		allowedFrom = []string{model.RecipientStatusPending, model.RecipientStatusSending}
	}

	query := `
        UPDATE recipients
        SET status=$1, error_message=$2,
            sent_at = CASE WHEN $1='sent' THEN NOW() ELSE sent_at END,
            delivered_at = CASE WHEN $1='delivered' THEN NOW() ELSE delivered_at END,
            read_at = CASE WHEN $1='read' THEN NOW() ELSE read_at END,
            updated_at=NOW()
        WHERE id=$3 AND status = ANY($4)
    `
	_, err := r.DB.Exec(query, status, errorMessage, id, pq.Array(allowedFrom))
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
