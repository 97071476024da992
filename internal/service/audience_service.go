package service

import (
	"github.com/unclebandit/wabroadcast-backend/internal/filter"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// AudienceResolverInterface is the resolver contract the campaign state
// machine consumes.
type AudienceResolverInterface interface {
	Resolve(ownerID, audienceID int) ([]model.Contact, error)
	CalculateCount(ownerID int, expr *filter.Expression) (int, error)
}

// AudienceService turns an audience definition into a concrete, deduplicated
// list of contacts. Blocked contacts are always excluded; a static audience
// is its stored membership set, a dynamic one is recomputed from its filter
// expression on every resolution.
type AudienceService struct {
	AudienceRepo repository.AudienceRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
}

func (s *AudienceService) Resolve(ownerID, audienceID int) ([]model.Contact, error) {
	audience, err := s.AudienceRepo.GetByID(ownerID, audienceID)
	if err != nil {
		return nil, err
	}

	var contacts []model.Contact
	if audience.IsStatic {
		contacts, err = s.AudienceRepo.ListMembers(audience.ID, true)
		if err != nil {
			return nil, err
		}
	} else {
		contacts, err = s.resolveFilter(ownerID, audience.Filter)
		if err != nil {
			return nil, err
		}
	}

	return dedupeContacts(contacts), nil
}

// CalculateCount runs the exact same evaluation path as Resolve so the count
// shown before sending always matches the count actually sent.
func (s *AudienceService) CalculateCount(ownerID int, expr *filter.Expression) (int, error) {
	contacts, err := s.resolveFilter(ownerID, expr)
	if err != nil {
		return 0, err
	}
	return len(dedupeContacts(contacts)), nil
}

// resolveFilter narrows to the owner's non-blocked contacts in SQL, then
// interprets the expression tree in memory.
func (s *AudienceService) resolveFilter(ownerID int, expr *filter.Expression) ([]model.Contact, error) {
	candidates, err := s.ContactRepo.ListByOwner(ownerID, true)
	if err != nil {
		return nil, err
	}

	matched := []model.Contact{}
	for _, c := range candidates {
		if expr.Matches(subjectFromContact(c)) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func subjectFromContact(c model.Contact) filter.Subject {
	return filter.Subject{
		Phone:          c.Phone,
		DisplayName:    c.DisplayName,
		IsBlocked:      c.IsBlocked,
		IsBotActive:    c.IsBotActive,
		HasWhatsapp:    c.HasWhatsapp,
		Tags:           c.Tags,
		Attributes:     c.Attributes,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
}

func dedupeContacts(contacts []model.Contact) []model.Contact {
	seen := map[int]bool{}
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

var _ AudienceResolverInterface = (*AudienceService)(nil)
