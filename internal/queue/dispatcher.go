package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/wabroadcast-backend/internal/model"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
)

// DispatchTopic is the queue topic dispatch jobs ride on.
const DispatchTopic = "campaign_dispatch"

// DispatchJob asks the subscriber to walk a campaign's pending recipients.
type DispatchJob struct {
	JobID      string `json:"job_id"`
	CampaignID int    `json:"campaign_id"`
}

// Reporter consumes per-recipient dispatch outcomes. Implemented by the
// campaign service, which owns the recipient ledger and campaign completion.
type Reporter interface {
	HandleDispatchReport(recipientID int, status, errorMessage string) error
}

// Transport delivers one message. The real WhatsApp gateway lives behind
// this signature; MockTransport stands in for it.
type Transport func(phone, message string) error

// Dispatcher is the in-process Sender: StartDispatch publishes a job on the
// queue, Pause/Cancel raise a cooperative stop signal keyed by campaign id.
// A stop is a request, not a kill: a message already mid-send may still land
// as sent after the signal (at-least-once semantics).
type Dispatcher struct {
	Queue Queue

	mu      sync.Mutex
	stopped map[int]bool
}

func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{
		Queue:   q,
		stopped: make(map[int]bool),
	}
}

// StartDispatch is idempotent: the subscriber only ever walks still-pending
// rows, so re-publishing for an already-running campaign resumes instead of
// duplicating sends.
func (d *Dispatcher) StartDispatch(campaignID int) error {
	d.mu.Lock()
	delete(d.stopped, campaignID)
	d.mu.Unlock()

	job := DispatchJob{JobID: uuid.NewString(), CampaignID: campaignID}
	return d.Queue.Publish(DispatchTopic, job)
}

func (d *Dispatcher) Pause(campaignID int) {
	d.setStopped(campaignID)
}

func (d *Dispatcher) Cancel(campaignID int) {
	d.setStopped(campaignID)
}

func (d *Dispatcher) setStopped(campaignID int) {
	d.mu.Lock()
	d.stopped[campaignID] = true
	d.mu.Unlock()
}

func (d *Dispatcher) isStopped(campaignID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped[campaignID]
}

// StartDispatchSubscriber wires the dispatch loop onto the queue. The loop
// re-reads campaign status between batches so pause/cancel issued from
// another process (status row) or this one (stop signal) both take effect at
// message granularity.
func StartDispatchSubscriber(
	q Queue,
	d *Dispatcher,
	campaignRepo repository.CampaignRepositoryInterface,
	recipientRepo repository.RecipientRepositoryInterface,
	reporter Reporter,
	transport Transport,
) {
	go func() {
		err := q.Subscribe(DispatchTopic, func(payload any) error {
			job, err := DecodeDispatchJob(payload)
			if err != nil {
				log.Println("⚠️ Invalid dispatch payload:", err)
				return nil // no retry
			}

			log.Println("📩 Dispatching campaign ID:", job.CampaignID, "job:", job.JobID)
			return dispatchCampaign(job.CampaignID, d, campaignRepo, recipientRepo, reporter, transport)
		})
		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", DispatchTopic, ":", err)
		}
	}()
}

// DecodeDispatchJob accepts both payload shapes a subscriber can see: the
// struct itself from InMemoryQueue, or the JSON body an AmqpQueue delivers.
func DecodeDispatchJob(payload any) (DispatchJob, error) {
	switch p := payload.(type) {
	case DispatchJob:
		return p, nil
	case []byte:
		var job DispatchJob
		if err := json.Unmarshal(p, &job); err != nil {
			return DispatchJob{}, err
		}
		return job, nil
	default:
		return DispatchJob{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}

// RunDispatch walks a campaign's pending recipients synchronously. The AMQP
// worker calls this directly; the in-process subscriber goes through the
// queue. Out-of-process runs see pause/cancel via the campaign status row.
func RunDispatch(
	campaignID int,
	d *Dispatcher,
	campaignRepo repository.CampaignRepositoryInterface,
	recipientRepo repository.RecipientRepositoryInterface,
	reporter Reporter,
	transport Transport,
) error {
	return dispatchCampaign(campaignID, d, campaignRepo, recipientRepo, reporter, transport)
}

func dispatchCampaign(
	campaignID int,
	d *Dispatcher,
	campaignRepo repository.CampaignRepositoryInterface,
	recipientRepo repository.RecipientRepositoryInterface,
	reporter Reporter,
	transport Transport,
) error {
	for {
		campaign, err := campaignRepo.GetByID(0, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != model.CampaignStatusRunning || d.isStopped(campaignID) {
			log.Println("⏸ Dispatch stopped for campaign", campaignID, "status:", campaign.Status)
			return nil
		}

		batchSize := campaign.Settings.BatchSize
		if batchSize <= 0 {
			batchSize = 50
		}

		batch, err := recipientRepo.ListPending(campaignID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil // ledger drained; completion lands via the last report
		}

		for _, rec := range batch {
			if d.isStopped(campaignID) {
				return nil
			}

			claimed, err := recipientRepo.ClaimSending(rec.ID)
			if err != nil {
				log.Println("⚠️ Failed to claim recipient", rec.ID, ":", err)
				continue
			}
			if !claimed {
				continue // another dispatcher got there first
			}

			if campaign.Settings.SkipInvalid && strings.TrimSpace(rec.Phone) == "" {
				_ = reporter.HandleDispatchReport(rec.ID, model.RecipientStatusFailed, "invalid phone number")
				continue
			}

			if err := transport(rec.Phone, RenderMessage(campaign, rec)); err != nil {
				if rerr := reporter.HandleDispatchReport(rec.ID, model.RecipientStatusFailed, err.Error()); rerr != nil {
					log.Println("⚠️ Failed to report dispatch failure:", rerr)
				}
			} else {
				if rerr := reporter.HandleDispatchReport(rec.ID, model.RecipientStatusSent, ""); rerr != nil {
					log.Println("⚠️ Failed to report dispatch success:", rerr)
				}
			}

			if campaign.Settings.DelayBetweenMessages > 0 {
				time.Sleep(time.Duration(campaign.Settings.DelayBetweenMessages) * time.Millisecond)
			}
		}

		if campaign.Settings.DelayBetweenBatches > 0 {
			time.Sleep(time.Duration(campaign.Settings.DelayBetweenBatches) * time.Millisecond)
		}
	}
}

// RenderMessage substitutes the snapshot fields into the campaign's inline
// message. Full template rendering is an external concern; only the
// materialized snapshot is available here.
func RenderMessage(campaign *model.Campaign, rec model.Recipient) string {
	msg := campaign.Message
	name := rec.DisplayName
	if name == "" {
		name = "<unknown>"
	}
	msg = strings.ReplaceAll(msg, "{display_name}", name)
	msg = strings.ReplaceAll(msg, "{phone}", rec.Phone)
	return msg
}

// MockTransport simulates sending messages with 90% success
func MockTransport(phone, message string) error {
	r := rand.Float64()
	if r < 0.9 {
		return nil // success
	}
	return fmt.Errorf("mock sending failed")
}
