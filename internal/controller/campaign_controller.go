// internal/controller/campaign_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
    "github.com/unclebandit/wabroadcast-backend/internal/model"
    "github.com/unclebandit/wabroadcast-backend/internal/service"
)

type CampaignController struct {
    CampaignService *service.CampaignService
}

// ownerID reads the authenticated account id from the X-Owner-ID header.
// Authentication itself happens upstream; this service only scopes by it.
func ownerID(r *http.Request) int {
    id, _ := strconv.Atoi(r.Header.Get("X-Owner-ID"))
    return id
}

func writeTransitionError(w http.ResponseWriter, err error) {
    var illegal *appErrors.ErrIllegalTransition
    var notFound *appErrors.ErrCampaignNotFound
    switch {
    case errors.As(err, &illegal):
        http.Error(w, err.Error(), http.StatusConflict)
    case errors.As(err, &notFound):
        http.Error(w, err.Error(), http.StatusNotFound)
    default:
        http.Error(w, err.Error(), http.StatusInternalServerError)
    }
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Name        string                  `json:"name"`
        AudienceID  int                     `json:"audience_id"`
        TemplateID  *int                    `json:"template_id"`
        Message     string                  `json:"message"`
        ScheduledAt *string                 `json:"scheduled_at"`
        Settings    *model.CampaignSettings `json:"settings"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    campaign := &model.Campaign{
        OwnerID:    ownerID(r),
        Name:       body.Name,
        AudienceID: body.AudienceID,
        TemplateID: body.TemplateID,
        Message:    body.Message,
    }
    if body.Settings != nil {
        campaign.Settings = *body.Settings
    }
    if body.ScheduledAt != nil {
        t, err := time.Parse(time.RFC3339, *body.ScheduledAt)
        if err != nil {
            http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
            return
        }
        campaign.ScheduledAt = &t
    }

    created, err := c.CampaignService.CreateCampaign(campaign)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(created)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
    status := r.URL.Query().Get("status")

    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }

    campaigns, pagination, err := c.CampaignService.ListCampaigns(ownerID(r), page, pageSize, status)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "data":       campaigns,
        "pagination": pagination,
    })
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    details, err := c.CampaignService.GetCampaignDetailsWithStats(ownerID(r), id)
    if err != nil {
        writeTransitionError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(details)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    if err := c.CampaignService.Start(ownerID(r), id); err != nil {
        var empty *appErrors.ErrEmptyAudience
        if errors.As(err, &empty) {
            // the campaign is now failed with a stored reason
            http.Error(w, err.Error(), http.StatusUnprocessableEntity)
            return
        }
        writeTransitionError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "campaign_id": id,
        "status":      model.CampaignStatusRunning,
    })
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    if err := c.CampaignService.Pause(ownerID(r), id); err != nil {
        writeTransitionError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "campaign_id": id,
        "status":      model.CampaignStatusPaused,
    })
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    if err := c.CampaignService.Resume(ownerID(r), id); err != nil {
        writeTransitionError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "campaign_id": id,
        "status":      model.CampaignStatusRunning,
    })
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    if err := c.CampaignService.Cancel(ownerID(r), id); err != nil {
        writeTransitionError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "campaign_id": id,
        "status":      model.CampaignStatusCancelled,
    })
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    if err := c.CampaignService.Delete(ownerID(r), id); err != nil {
        writeTransitionError(w, err)
        return
    }

    w.WriteHeader(http.StatusNoContent)
}
