// internal/handler/automation_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/service"
)

// AutomationHandler holds the dependencies for automated-campaign HTTP handlers
type AutomationHandler struct {
	Service *service.AutomationService
}

func ownerID(r *http.Request) int {
	id, _ := strconv.Atoi(r.Header.Get("X-Owner-ID"))
	return id
}

func writeAutomationError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrAutomationNotFound
	var campaignNotFound *appErrors.ErrCampaignNotFound
	var corrupt *appErrors.ErrStepSequenceCorrupt
	switch {
	case errors.As(err, &notFound), errors.As(err, &campaignNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &corrupt):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *AutomationHandler) CreateAutomationHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name         string                  `json:"name"`
		AudienceID   *int                    `json:"audience_id"`
		ScheduleType string                  `json:"schedule_type"`
		Schedule     model.ScheduleConfig    `json:"schedule_config"`
		SendTime     string                  `json:"send_time"`
		Settings     *model.CampaignSettings `json:"settings"`
		IsActive     bool                    `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	auto := &model.AutomatedCampaign{
		OwnerID:      ownerID(r),
		Name:         payload.Name,
		AudienceID:   payload.AudienceID,
		ScheduleType: payload.ScheduleType,
		Schedule:     payload.Schedule,
		SendTime:     payload.SendTime,
		IsActive:     payload.IsActive,
	}
	if payload.Settings != nil {
		auto.Settings = *payload.Settings
	}

	created, err := h.Service.CreateAutomation(auto)
	if err != nil {
		http.Error(w, "failed to create automated campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(created)
}

func (h *AutomationHandler) ListAutomationsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	automations, total, err := h.Service.ListAutomations(ownerID(r), page, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":        automations,
		"total_count": total,
	})
}

func (h *AutomationHandler) GetAutomationHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	auto, steps, err := h.Service.GetAutomation(ownerID(r), id)
	if err != nil {
		writeAutomationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"automation": auto,
		"steps":      steps,
	})
}

// ReplaceStepsHandler swaps the full step sequence atomically.
func (h *AutomationHandler) ReplaceStepsHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	var payload struct {
		Steps []model.AutomatedCampaignStep `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.ReplaceSteps(ownerID(r), id, payload.Steps); err != nil {
		writeAutomationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"automation_id": id,
		"steps":         len(payload.Steps),
	})
}

func (h *AutomationHandler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	h.toggleActive(w, r, true)
}

func (h *AutomationHandler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	h.toggleActive(w, r, false)
}

func (h *AutomationHandler) toggleActive(w http.ResponseWriter, r *http.Request, active bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	if active {
		err = h.Service.Activate(ownerID(r), id)
	} else {
		err = h.Service.Deactivate(ownerID(r), id)
	}
	if err != nil {
		writeAutomationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"automation_id": id,
		"is_active":     active,
	})
}

func (h *AutomationHandler) RunNowHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	if err := h.Service.RunNow(ownerID(r), id); err != nil {
		writeAutomationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"automation_id": id,
		"triggered":     true,
	})
}

func (h *AutomationHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	runs, total, err := h.Service.ListRuns(ownerID(r), id, page, pageSize)
	if err != nil {
		writeAutomationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":        runs,
		"total_count": total,
	})
}
