package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/controller"
	"github.com/unclebandit/wabroadcast-backend/internal/filter"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/service"
)

// --- Mock Repositories ---

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	seq       int
}

func newMockCampaignRepo() *MockCampaignRepo {
	return &MockCampaignRepo{campaigns: map[int]*model.Campaign{}}
}

func (m *MockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = m.seq
	stored := *c
	m.campaigns[c.ID] = &stored
	return nil
}

func (m *MockCampaignRepo) GetByID(ownerID, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || (ownerID != 0 && c.OwnerID != ownerID) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (m *MockCampaignRepo) UpdateStatusFrom(campaignID int, to string, from []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

// Stub implementations to satisfy the interface
func (m *MockCampaignRepo) ListCampaigns(ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return []*model.Campaign{}, 0, nil
}
func (m *MockCampaignRepo) Delete(ownerID, id int) error                   { return nil }
func (m *MockCampaignRepo) MarkFailed(campaignID int, reason string) error { return nil }
func (m *MockCampaignRepo) MarkCompleted(campaignID int) error             { return nil }
func (m *MockCampaignRepo) Materialize(campaignID int, from []string, recipients []model.Recipient) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = model.CampaignStatusRunning
		c.TotalRecipients = len(recipients)
	}
	return true, nil
}
func (m *MockCampaignRepo) CountActiveRecipients(campaignID int) (int, error) { return 0, nil }
func (m *MockCampaignRepo) AddCounters(campaignID, sentDelta, failedDelta int) error {
	return nil
}
func (m *MockCampaignRepo) GetCampaignStats(campaignID int) (map[string]int, error) {
	return map[string]int{"pending": 1}, nil
}
func (m *MockCampaignRepo) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	return nil, nil
}

type MockRecipientRepo struct{}

func (m *MockRecipientRepo) GetByID(id int) (*model.Recipient, error) { return nil, nil }
func (m *MockRecipientRepo) ListPending(campaignID, limit int) ([]model.Recipient, error) {
	return nil, nil
}
func (m *MockRecipientRepo) ListByCampaign(campaignID, offset, limit int) ([]model.Recipient, int, error) {
	return nil, 0, nil
}
func (m *MockRecipientRepo) ClaimSending(id int) (bool, error)                 { return false, nil }
func (m *MockRecipientRepo) UpdateStatus(id int, status, errorMsg string) error { return nil }

type MockResolver struct {
	contacts []model.Contact
}

func (m *MockResolver) Resolve(ownerID, audienceID int) ([]model.Contact, error) {
	return m.contacts, nil
}
func (m *MockResolver) CalculateCount(ownerID int, expr *filter.Expression) (int, error) {
	return len(m.contacts), nil
}

type MockSender struct{}

func (m *MockSender) StartDispatch(campaignID int) error { return nil }
func (m *MockSender) Pause(campaignID int)               {}
func (m *MockSender) Cancel(campaignID int)              {}

// --- Helpers ---

func newController(repo *MockCampaignRepo, contacts []model.Contact) *controller.CampaignController {
	svc := &service.CampaignService{
		CampaignRepo:  repo,
		RecipientRepo: &MockRecipientRepo{},
		Resolver:      &MockResolver{contacts: contacts},
		Sender:        &MockSender{},
	}
	return &controller.CampaignController{CampaignService: svc}
}

func requestWithID(method, target string, body []byte, id string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "1")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// --- Tests ---

func TestCreateCampaignHandler(t *testing.T) {
	ctrl := newController(newMockCampaignRepo(), nil)

	body, _ := json.Marshal(map[string]interface{}{
		"name":        "Promo",
		"audience_id": 10,
		"message":     "Hello {display_name}",
	})
	req := httptest.NewRequest("POST", "/campaigns", bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "1")
	w := httptest.NewRecorder()

	ctrl.CreateCampaign(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var created model.Campaign
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Status != model.CampaignStatusDraft {
		t.Errorf("expected draft, got %s", created.Status)
	}
	if created.OwnerID != 1 {
		t.Errorf("owner should come from the header, got %d", created.OwnerID)
	}
	if created.Settings.BatchSize == 0 {
		t.Error("expected default settings to be applied")
	}
}

func TestCreateCampaignHandlerRejectsBadSchedule(t *testing.T) {
	ctrl := newController(newMockCampaignRepo(), nil)

	body, _ := json.Marshal(map[string]interface{}{
		"name":         "Promo",
		"audience_id":  10,
		"scheduled_at": "tomorrow-ish",
	})
	req := httptest.NewRequest("POST", "/campaigns", bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "1")
	w := httptest.NewRecorder()

	ctrl.CreateCampaign(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Result().StatusCode)
	}
}

func TestStartCampaignHandler(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 1, Status: model.CampaignStatusDraft, AudienceID: 10})
	ctrl := newController(repo, []model.Contact{{ID: 1, Phone: "+1"}})

	req := requestWithID("POST", "/campaigns/1/start", nil, "1")
	w := httptest.NewRecorder()

	ctrl.StartCampaign(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}
	got, _ := repo.GetByID(1, 1)
	if got.Status != model.CampaignStatusRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
}

func TestStartCampaignHandlerConflictWhenRunning(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 1, Status: model.CampaignStatusRunning, AudienceID: 10})
	ctrl := newController(repo, []model.Contact{{ID: 1, Phone: "+1"}})

	req := requestWithID("POST", "/campaigns/1/start", nil, "1")
	w := httptest.NewRecorder()

	ctrl.StartCampaign(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Result().StatusCode)
	}
}

func TestStartCampaignHandlerEmptyAudience(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 1, Status: model.CampaignStatusDraft, AudienceID: 10})
	ctrl := newController(repo, nil) // resolver yields nobody

	req := requestWithID("POST", "/campaigns/1/start", nil, "1")
	w := httptest.NewRecorder()

	ctrl.StartCampaign(w, req)

	if w.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Result().StatusCode)
	}
}

func TestStartCampaignHandlerNotFound(t *testing.T) {
	ctrl := newController(newMockCampaignRepo(), nil)

	req := requestWithID("POST", "/campaigns/99/start", nil, "99")
	w := httptest.NewRecorder()

	ctrl.StartCampaign(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Result().StatusCode)
	}
}

func TestPauseCampaignHandlerConflictFromDraft(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 1, Status: model.CampaignStatusDraft, AudienceID: 10})
	ctrl := newController(repo, nil)

	req := requestWithID("POST", "/campaigns/1/pause", nil, "1")
	w := httptest.NewRecorder()

	ctrl.PauseCampaign(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Result().StatusCode)
	}
}

func TestGetCampaignDetailsHandler(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 1, Name: "Promo", Status: model.CampaignStatusDraft})
	ctrl := newController(repo, nil)

	req := requestWithID("GET", "/campaigns/1", nil, "1")
	w := httptest.NewRecorder()

	ctrl.GetCampaignDetails(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var details map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		t.Fatal(err)
	}
	if details["name"] != "Promo" {
		t.Errorf("expected campaign payload, got %v", details)
	}
	if _, ok := details["stats"]; !ok {
		t.Error("expected recipient stats in the payload")
	}
}

func TestOwnerScopingHidesForeignCampaigns(t *testing.T) {
	repo := newMockCampaignRepo()
	repo.Create(&model.Campaign{OwnerID: 2, Status: model.CampaignStatusDraft})
	ctrl := newController(repo, nil)

	req := requestWithID("GET", "/campaigns/1", nil, "1") // owner header is 1
	w := httptest.NewRecorder()

	ctrl.GetCampaignDetails(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("another owner's campaign must read as missing, got %d", w.Result().StatusCode)
	}
}
