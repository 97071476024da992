package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

// ContactRepositoryInterface defines methods used by services
type ContactRepositoryInterface interface {
	GetByID(ownerID, id int) (*model.Contact, error)
	ListByOwner(ownerID int, excludeBlocked bool) ([]model.Contact, error)
	ListByIDs(ownerID int, ids []int) ([]model.Contact, error)
	Create(c *model.Contact) error
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, owner_id, phone, display_name, is_blocked, is_bot_active, has_whatsapp, tags, attributes, created_at, last_activity_at`

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	var attrs []byte
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Phone, &c.DisplayName,
		&c.IsBlocked, &c.IsBotActive, &c.HasWhatsapp,
		pq.Array(&c.Tags), &attrs, &c.CreatedAt, &c.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	c.Attributes = map[string]string{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *ContactRepository) GetByID(ownerID, id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id=$1 AND id=$2`
	c, err := scanContact(r.DB.QueryRow(query, ownerID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return c, nil
}

// ListByOwner fetches every contact belonging to the owner, optionally
// pre-filtering blocked ones in SQL. Dynamic audience resolution narrows the
// candidate set here and applies the filter expression in memory.
func (r *ContactRepository) ListByOwner(ownerID int, excludeBlocked bool) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id=$1`
	if excludeBlocked {
		query += ` AND is_blocked = FALSE`
	}

	rows, err := r.DB.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) ListByIDs(ownerID int, ids []int) ([]model.Contact, error) {
	if len(ids) == 0 {
		return []model.Contact{}, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id=$1 AND id = ANY($2)`
	rows, err := r.DB.Query(query, ownerID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) Create(c *model.Contact) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO contacts (owner_id, phone, display_name, is_blocked, is_bot_active, has_whatsapp, tags, attributes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (owner_id, phone) DO NOTHING
        RETURNING id, created_at
    `
	err = r.DB.QueryRow(query,
		c.OwnerID, c.Phone, c.DisplayName, c.IsBlocked, c.IsBotActive, c.HasWhatsapp,
		pq.Array(c.Tags), attrs,
	).Scan(&c.ID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil // already seeded
	}
	return err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
