package service_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	appErrors "github.com/unclebandit/wabroadcast-backend/internal/errors"
	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/service"
)

func newCampaignFixture(contacts map[int][]model.Contact) (*service.CampaignService, *memState, *mockSender) {
	state := newMemState()
	sender := &mockSender{}
	svc := &service.CampaignService{
		CampaignRepo:  &memCampaignRepo{s: state},
		RecipientRepo: &memRecipientRepo{s: state},
		Resolver:      &stubResolver{contacts: contacts},
		Sender:        sender,
	}
	return svc, state, sender
}

func seedCampaign(svc *service.CampaignService, audienceID int, scheduledAt *time.Time) *model.Campaign {
	c, err := svc.CreateCampaign(&model.Campaign{
		OwnerID:     1,
		Name:        "Promo",
		AudienceID:  audienceID,
		Message:     "Hello {display_name}",
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func TestStartMaterializesAndDispatches(t *testing.T) {
	contacts := map[int][]model.Contact{
		10: {
			{ID: 1, Phone: "+254700000001", DisplayName: "Alice"},
			{ID: 2, Phone: "+254700000002", DisplayName: "Brian"},
			{ID: 3, Phone: "+254700000003", DisplayName: "Blocked", IsBlocked: true},
			{ID: 4, Phone: "   ", DisplayName: "No Phone"},
		},
	}
	svc, state, sender := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)

	if err := svc.Start(1, c.ID); err != nil {
		t.Fatal("start failed:", err)
	}

	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
	if got.TotalRecipients != 2 {
		t.Errorf("expected 2 recipients after skip rules, got %d", got.TotalRecipients)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	if len(sender.started) != 1 || sender.started[0] != c.ID {
		t.Errorf("expected one dispatch for campaign %d, got %v", c.ID, sender.started)
	}

	pending := 0
	for _, rec := range state.recipients {
		if rec.CampaignID == c.ID && rec.Status == model.RecipientStatusPending {
			pending++
			if rec.Phone == "" || rec.DisplayName == "" {
				t.Error("recipient snapshot missing contact fields")
			}
		}
	}
	if pending != 2 {
		t.Errorf("expected 2 pending rows, got %d", pending)
	}
}

func TestStartWithEmptyAudienceFailsCampaign(t *testing.T) {
	contacts := map[int][]model.Contact{
		10: {{ID: 3, Phone: "+254700000003", IsBlocked: true}},
	}
	svc, _, sender := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)

	err := svc.Start(1, c.ID)
	var empty *appErrors.ErrEmptyAudience
	if !errors.As(err, &empty) {
		t.Fatalf("expected empty audience error, got %v", err)
	}

	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.FailureReason == "" {
		t.Error("expected a stored failure reason")
	}
	if got.TotalRecipients != 0 {
		t.Errorf("expected total_recipients 0, got %d", got.TotalRecipients)
	}
	if len(sender.started) != 0 {
		t.Error("nothing should have been dispatched")
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	contacts := map[int][]model.Contact{10: {{ID: 1, Phone: "+1"}}}
	svc, _, sender := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)

	if err := svc.Start(1, c.ID); err != nil {
		t.Fatal(err)
	}
	err := svc.Start(1, c.ID)
	var illegal *appErrors.ErrIllegalTransition
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if len(sender.started) != 1 {
		t.Errorf("expected exactly one dispatch, got %d", len(sender.started))
	}
}

func TestResolveFailureMarksCampaignFailed(t *testing.T) {
	state := newMemState()
	svc := &service.CampaignService{
		CampaignRepo:  &memCampaignRepo{s: state},
		RecipientRepo: &memRecipientRepo{s: state},
		Resolver:      &stubResolver{err: fmt.Errorf("audience store down")},
		Sender:        &mockSender{},
	}
	c := seedCampaign(svc, 10, nil)

	if err := svc.Start(1, c.ID); err == nil {
		t.Fatal("expected error")
	}
	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.FailureReason != "audience store down" {
		t.Errorf("unexpected failure reason %q", got.FailureReason)
	}
}

func TestCancelDuringStartResolutionStaysCancelled(t *testing.T) {
	state := newMemState()
	sender := &mockSender{}
	resolver := &stubResolver{contacts: map[int][]model.Contact{}}
	svc := &service.CampaignService{
		CampaignRepo:  &memCampaignRepo{s: state},
		RecipientRepo: &memRecipientRepo{s: state},
		Resolver:      resolver,
		Sender:        sender,
	}
	at := time.Now().Add(time.Hour)
	c := seedCampaign(svc, 10, &at)

	// Cancel lands while Start is resolving the audience. The empty result
	// then tries to fail the campaign, which must lose to the terminal status.
	resolver.onResolve = func() {
		if err := svc.Cancel(1, c.ID); err != nil {
			t.Fatal("cancel failed:", err)
		}
	}

	if err := svc.Start(1, c.ID); err == nil {
		t.Fatal("expected the empty-audience error")
	}

	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusCancelled {
		t.Errorf("cancelled campaign must not be clobbered, got %s", got.Status)
	}
	if got.FailureReason != "" {
		t.Errorf("no failure reason should be stored, got %q", got.FailureReason)
	}
}

func TestPauseAndResumeKeepLedger(t *testing.T) {
	contacts := map[int][]model.Contact{10: {
		{ID: 1, Phone: "+1"}, {ID: 2, Phone: "+2"},
	}}
	svc, _, sender := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)
	if err := svc.Start(1, c.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.Pause(1, c.ID); err != nil {
		t.Fatal("pause failed:", err)
	}
	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusPaused {
		t.Errorf("expected paused, got %s", got.Status)
	}
	if len(sender.paused) != 1 {
		t.Error("expected the sender to see the pause signal")
	}

	if err := svc.Resume(1, c.ID); err != nil {
		t.Fatal("resume failed:", err)
	}
	got, _ = svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
	if got.TotalRecipients != 2 {
		t.Errorf("resume must not re-materialize: got %d recipients", got.TotalRecipients)
	}
	if len(sender.started) != 2 {
		t.Errorf("resume should re-dispatch, got %d starts", len(sender.started))
	}
}

func TestPauseFromDraftIsIllegal(t *testing.T) {
	svc, _, _ := newCampaignFixture(nil)
	c := seedCampaign(svc, 10, nil)

	err := svc.Pause(1, c.ID)
	var illegal *appErrors.ErrIllegalTransition
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestCancelScheduledCampaign(t *testing.T) {
	svc, _, sender := newCampaignFixture(nil)
	future := time.Now().Add(time.Hour)
	c := seedCampaign(svc, 10, &future)
	if c.Status != model.CampaignStatusScheduled {
		t.Fatalf("expected scheduled, got %s", c.Status)
	}

	if err := svc.Cancel(1, c.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if len(sender.cancelled) != 1 {
		t.Error("expected the sender to see the cancel signal")
	}
}

func TestDeleteRunningIsRejected(t *testing.T) {
	contacts := map[int][]model.Contact{10: {{ID: 1, Phone: "+1"}}}
	svc, _, _ := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)
	if err := svc.Start(1, c.ID); err != nil {
		t.Fatal(err)
	}

	err := svc.Delete(1, c.ID)
	var illegal *appErrors.ErrIllegalTransition
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	if err := svc.Cancel(1, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(1, c.ID); err != nil {
		t.Fatal("delete after cancel should succeed:", err)
	}
}

func TestDispatchReportsCompleteCampaign(t *testing.T) {
	contacts := map[int][]model.Contact{10: {
		{ID: 1, Phone: "+1"}, {ID: 2, Phone: "+2"},
	}}
	svc, state, _ := newCampaignFixture(contacts)
	c := seedCampaign(svc, 10, nil)
	if err := svc.Start(1, c.ID); err != nil {
		t.Fatal(err)
	}

	var ids []int
	for id, rec := range state.recipients {
		if rec.CampaignID == c.ID {
			ids = append(ids, id)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(ids))
	}

	if err := svc.HandleDispatchReport(ids[0], model.RecipientStatusSent, ""); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusRunning {
		t.Errorf("campaign should still be running, got %s", got.Status)
	}

	if err := svc.HandleDispatchReport(ids[1], model.RecipientStatusFailed, "number unreachable"); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.CampaignRepo.GetByID(1, c.ID)
	if got.Status != model.CampaignStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.SentCount != 1 || got.FailedCount != 1 {
		t.Errorf("expected counters 1/1, got %d/%d", got.SentCount, got.FailedCount)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestDispatchReportForUnknownRecipientIsIgnored(t *testing.T) {
	svc, _, _ := newCampaignFixture(nil)
	if err := svc.HandleDispatchReport(999, model.RecipientStatusSent, ""); err != nil {
		t.Fatal("unknown recipient should not error:", err)
	}
}

func TestListCampaignsPagination(t *testing.T) {
	svc, _, _ := newCampaignFixture(nil)
	for i := 0; i < 5; i++ {
		seedCampaign(svc, 10, nil)
	}

	campaigns, pagination, err := svc.ListCampaigns(1, 2, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 2 {
		t.Errorf("expected 2 campaigns on page 2, got %d", len(campaigns))
	}
	if pagination["total_count"] != 5 || pagination["total_pages"] != 3 {
		t.Errorf("unexpected pagination: %v", pagination)
	}
}
