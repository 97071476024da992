// internal/controller/audience_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"

    appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
    "github.com/unclebandit/wabroadcast-backend/internal/filter"
    "github.com/unclebandit/wabroadcast-backend/internal/model"
    "github.com/unclebandit/wabroadcast-backend/internal/repository"
    "github.com/unclebandit/wabroadcast-backend/internal/service"
)

type AudienceController struct {
    AudienceRepo    repository.AudienceRepositoryInterface
    ContactRepo     repository.ContactRepositoryInterface
    AudienceService *service.AudienceService
}

func writeAudienceError(w http.ResponseWriter, err error) {
    var notFound *appErrors.ErrAudienceNotFound
    if errors.As(err, &notFound) {
        http.Error(w, err.Error(), http.StatusNotFound)
        return
    }
    http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (c *AudienceController) CreateAudience(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Name     string             `json:"name"`
        IsStatic bool               `json:"is_static"`
        Filter   *filter.Expression `json:"filter_expression"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    audience := &model.Audience{
        OwnerID:  ownerID(r),
        Name:     body.Name,
        IsStatic: body.IsStatic,
        Filter:   body.Filter,
    }
    if err := c.AudienceRepo.Create(audience); err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(audience)
}

func (c *AudienceController) ListAudiences(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }

    audiences, total, err := c.AudienceRepo.List(ownerID(r), (page-1)*pageSize, pageSize)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "data": audiences,
        "pagination": map[string]int{
            "page":        page,
            "page_size":   pageSize,
            "total_count": total,
            "total_pages": (total + pageSize - 1) / pageSize,
        },
    })
}

// GetAudience returns the audience plus its current resolved size, computed
// through the same path a campaign start would use.
func (c *AudienceController) GetAudience(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)
    owner := ownerID(r)

    audience, err := c.AudienceRepo.GetByID(owner, id)
    if err != nil {
        writeAudienceError(w, err)
        return
    }

    contacts, err := c.AudienceService.Resolve(owner, id)
    if err != nil {
        writeAudienceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "audience":       audience,
        "resolved_count": len(contacts),
    })
}

// UpdateAudience renames an audience or swaps its filter expression. The
// static/dynamic flavor is fixed at creation.
func (c *AudienceController) UpdateAudience(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)
    owner := ownerID(r)

    var body struct {
        Name   *string            `json:"name"`
        Filter *filter.Expression `json:"filter_expression"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    audience, err := c.AudienceRepo.GetByID(owner, id)
    if err != nil {
        writeAudienceError(w, err)
        return
    }
    if body.Name != nil {
        audience.Name = *body.Name
    }
    if body.Filter != nil {
        if audience.IsStatic {
            http.Error(w, "a static audience has no filter expression", http.StatusBadRequest)
            return
        }
        audience.Filter = body.Filter
    }

    if err := c.AudienceRepo.Update(audience); err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(audience)
}

// AddMembers verifies every contact belongs to the calling owner before
// touching the membership table.
func (c *AudienceController) AddMembers(w http.ResponseWriter, r *http.Request) {
    c.updateMembers(w, r, func(audienceID int, contactIDs []int) error {
        owned, err := c.ContactRepo.ListByIDs(ownerID(r), contactIDs)
        if err != nil {
            return err
        }
        ids := make([]int, 0, len(owned))
        for _, contact := range owned {
            ids = append(ids, contact.ID)
        }
        return c.AudienceRepo.AddMembers(audienceID, ids)
    })
}

func (c *AudienceController) RemoveMembers(w http.ResponseWriter, r *http.Request) {
    c.updateMembers(w, r, c.AudienceRepo.RemoveMembers)
}

func (c *AudienceController) updateMembers(w http.ResponseWriter, r *http.Request, apply func(int, []int) error) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)
    owner := ownerID(r)

    var body struct {
        ContactIDs []int `json:"contact_ids"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    audience, err := c.AudienceRepo.GetByID(owner, id)
    if err != nil {
        writeAudienceError(w, err)
        return
    }
    if !audience.IsStatic {
        http.Error(w, "membership is only stored for static audiences", http.StatusBadRequest)
        return
    }

    if err := apply(id, body.ContactIDs); err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "audience_id": id,
        "contacts":    len(body.ContactIDs),
    })
}

// PreviewCount evaluates an inline filter expression without saving it, so
// the UI can show a recipient count before the audience exists.
func (c *AudienceController) PreviewCount(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Filter *filter.Expression `json:"filter_expression"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    count, err := c.AudienceService.CalculateCount(ownerID(r), body.Filter)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]int{"count": count})
}

func (c *AudienceController) DeleteAudience(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)
    owner := ownerID(r)

    if _, err := c.AudienceRepo.GetByID(owner, id); err != nil {
        writeAudienceError(w, err)
        return
    }
    if err := c.AudienceRepo.Delete(owner, id); err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}
