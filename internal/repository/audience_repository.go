package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

type AudienceRepositoryInterface interface {
	Create(a *model.Audience) error
	Update(a *model.Audience) error
	Delete(ownerID, id int) error
	GetByID(ownerID, id int) (*model.Audience, error)
	List(ownerID, offset, limit int) ([]*model.Audience, int, error)

	// Static membership
	ListMembers(audienceID int, excludeBlocked bool) ([]model.Contact, error)
	AddMembers(audienceID int, contactIDs []int) error
	RemoveMembers(audienceID int, contactIDs []int) error
}

type AudienceRepository struct {
	DB *sql.DB
}

func (r *AudienceRepository) Create(a *model.Audience) error {
	a.CreatedAt = time.Now()
	var expr []byte
	if a.Filter != nil {
		b, err := json.Marshal(a.Filter)
		if err != nil {
			return err
		}
		expr = b
	}
	query := `
        INSERT INTO audiences (owner_id, name, is_static, filter_expression, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query, a.OwnerID, a.Name, a.IsStatic, expr, a.CreatedAt).Scan(&a.ID)
}

func (r *AudienceRepository) Update(a *model.Audience) error {
	var expr []byte
	if a.Filter != nil {
		b, err := json.Marshal(a.Filter)
		if err != nil {
			return err
		}
		expr = b
	}
	query := `
        UPDATE audiences
        SET name=$1, is_static=$2, filter_expression=$3, updated_at=NOW()
        WHERE owner_id=$4 AND id=$5
    `
	_, err := r.DB.Exec(query, a.Name, a.IsStatic, expr, a.OwnerID, a.ID)
	return err
}

func (r *AudienceRepository) Delete(ownerID, id int) error {
	_, err := r.DB.Exec(`DELETE FROM audiences WHERE owner_id=$1 AND id=$2`, ownerID, id)
	return err
}

func (r *AudienceRepository) GetByID(ownerID, id int) (*model.Audience, error) {
	query := `
        SELECT id, owner_id, name, is_static, filter_expression, created_at, updated_at
        FROM audiences WHERE owner_id=$1 AND id=$2
    `
	var a model.Audience
	var expr []byte
	err := r.DB.QueryRow(query, ownerID, id).Scan(&a.ID, &a.OwnerID, &a.Name, &a.IsStatic, &expr, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewAudienceNotFound(id)
		}
		return nil, err
	}
	if len(expr) > 0 {
		if err := json.Unmarshal(expr, &a.Filter); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *AudienceRepository) List(ownerID, offset, limit int) ([]*model.Audience, int, error) {
	audiences := []*model.Audience{}
	query := `
        SELECT id, owner_id, name, is_static, filter_expression, created_at, updated_at
        FROM audiences WHERE owner_id=$1
        ORDER BY id DESC LIMIT $2 OFFSET $3
    `
	rows, err := r.DB.Query(query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		a := &model.Audience{}
		var expr []byte
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.IsStatic, &expr, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if len(expr) > 0 {
			if err := json.Unmarshal(expr, &a.Filter); err != nil {
				return nil, 0, err
			}
		}
		audiences = append(audiences, a)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM audiences WHERE owner_id=$1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return audiences, total, nil
}

// ListMembers returns the stored membership set of a static audience joined
// with the contact rows, optionally excluding blocked contacts.
func (r *AudienceRepository) ListMembers(audienceID int, excludeBlocked bool) ([]model.Contact, error) {
	query := `
        SELECT c.id, c.owner_id, c.phone, c.display_name, c.is_blocked, c.is_bot_active, c.has_whatsapp,
               c.tags, c.attributes, c.created_at, c.last_activity_at
        FROM audience_members m
        JOIN contacts c ON c.id = m.contact_id
        WHERE m.audience_id = $1
    `
	if excludeBlocked {
		query += ` AND c.is_blocked = FALSE`
	}

	rows, err := r.DB.Query(query, audienceID)
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

func (r *AudienceRepository) AddMembers(audienceID int, contactIDs []int) error {
	query := `
        INSERT INTO audience_members (audience_id, contact_id)
        SELECT $1, unnest($2::int[])
        ON CONFLICT DO NOTHING
    `
	_, err := r.DB.Exec(query, audienceID, pq.Array(contactIDs))
	return err
}

func (r *AudienceRepository) RemoveMembers(audienceID int, contactIDs []int) error {
	query := `DELETE FROM audience_members WHERE audience_id=$1 AND contact_id = ANY($2)`
	_, err := r.DB.Exec(query, audienceID, pq.Array(contactIDs))
	return err
}

var _ AudienceRepositoryInterface = (*AudienceRepository)(nil)
