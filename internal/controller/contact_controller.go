// internal/controller/contact_controller.go
package controller

import (
    "encoding/json"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"

    "github.com/unclebandit/wabroadcast-backend/internal/model"
    "github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// ContactController exposes the ingestion hook for the externally managed
// contact store. Full contact lifecycle (sync, bot state, block lists) lives
// upstream; this surface only lets that system push rows in and read them
// back.
type ContactController struct {
    ContactRepo repository.ContactRepositoryInterface
}

func (c *ContactController) CreateContact(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Phone       string            `json:"phone"`
        DisplayName string            `json:"display_name"`
        IsBlocked   bool              `json:"is_blocked"`
        IsBotActive bool              `json:"is_bot_active"`
        HasWhatsapp bool              `json:"has_whatsapp"`
        Tags        []string          `json:"tags"`
        Attributes  map[string]string `json:"attributes"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }
    if body.Phone == "" {
        http.Error(w, "phone is required", http.StatusBadRequest)
        return
    }

    contact := &model.Contact{
        OwnerID:     ownerID(r),
        Phone:       body.Phone,
        DisplayName: body.DisplayName,
        IsBlocked:   body.IsBlocked,
        IsBotActive: body.IsBotActive,
        HasWhatsapp: body.HasWhatsapp,
        Tags:        body.Tags,
        Attributes:  body.Attributes,
    }
    if err := c.ContactRepo.Create(contact); err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(contact)
}

func (c *ContactController) GetContact(w http.ResponseWriter, r *http.Request) {
    idStr := chi.URLParam(r, "id")
    id, _ := strconv.Atoi(idStr)

    contact, err := c.ContactRepo.GetByID(ownerID(r), id)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    if contact == nil {
        http.Error(w, "contact not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(contact)
}
