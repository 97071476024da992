// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/unclebandit/wabroadcast-backend/internal/controller"
	"github.com/unclebandit/wabroadcast-backend/internal/db"
	"github.com/unclebandit/wabroadcast-backend/internal/handler"
	"github.com/unclebandit/wabroadcast-backend/internal/queue"
	"github.com/unclebandit/wabroadcast-backend/internal/repository"
	"github.com/unclebandit/wabroadcast-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()
	if err := db.Migrate(db.DB); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// With AMQP_URL set, dispatch jobs go to RabbitMQ and cmd/worker consumes
	// them; otherwise the in-memory queue plus an in-process subscriber does
	// both sides.
	var q queue.Queue
	amqpMode := false
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		aq, err := queue.DialAmqp(amqpURL)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer aq.Close()
		q = aq
		amqpMode = true
		log.Println("✅ Connected to RabbitMQ, dispatch jobs handled by worker")
	} else {
		q = queue.NewInMemoryQueue()
	}
	dispatcher := queue.NewDispatcher(q)

	contactRepo := &repository.ContactRepository{DB: db.DB}
	audienceRepo := &repository.AudienceRepository{DB: db.DB}
	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}
	automationRepo := &repository.AutomationRepository{DB: db.DB}

	audienceService := &service.AudienceService{
		AudienceRepo: audienceRepo,
		ContactRepo:  contactRepo,
	}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		Resolver:      audienceService,
		Sender:        dispatcher,
	}

	var validator service.RuleEvaluator
	if base := os.Getenv("VALIDATION_SERVICE_URL"); base != "" {
		validator = service.NewValidationClient(base)
	}

	automationService := &service.AutomationService{
		AutomationRepo: automationRepo,
		CampaignRepo:   campaignRepo,
		Campaigns:      campaignService,
		Validator:      validator,
	}

	if !amqpMode {
		queue.StartDispatchSubscriber(q, dispatcher, campaignRepo, recipientRepo, campaignService, queue.MockTransport)
	}

	scheduler := &service.SchedulerService{
		CampaignRepo:   campaignRepo,
		AutomationRepo: automationRepo,
		Campaigns:      campaignService,
		Automations:    automationService,
	}
	if err := scheduler.Start(os.Getenv("SCHEDULER_PERIOD")); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}
	audienceController := &controller.AudienceController{
		AudienceRepo:    audienceRepo,
		ContactRepo:     contactRepo,
		AudienceService: audienceService,
	}
	contactController := &controller.ContactController{
		ContactRepo: contactRepo,
	}
	automationHandler := &handler.AutomationHandler{
		Service: automationService,
	}

	r := chi.NewRouter()

	// Contact ingestion (contacts are managed upstream; this is the push hook)
	r.Post("/contacts", contactController.CreateContact)
	r.Get("/contacts/{id}", contactController.GetContact)

	// Audience routes
	r.Post("/audiences", audienceController.CreateAudience)
	r.Get("/audiences", audienceController.ListAudiences)
	r.Get("/audiences/{id}", audienceController.GetAudience)
	r.Put("/audiences/{id}", audienceController.UpdateAudience)
	r.Delete("/audiences/{id}", audienceController.DeleteAudience)
	r.Post("/audiences/{id}/contacts", audienceController.AddMembers)
	r.Delete("/audiences/{id}/contacts", audienceController.RemoveMembers)
	r.Post("/audiences/preview-count", audienceController.PreviewCount)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaignDetails)
	r.Delete("/campaigns/{id}", campaignController.DeleteCampaign)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)

	// Automated campaign routes
	r.Post("/automations", automationHandler.CreateAutomationHandler)
	r.Get("/automations", automationHandler.ListAutomationsHandler)
	r.Get("/automations/{id}", automationHandler.GetAutomationHandler)
	r.Put("/automations/{id}/steps", automationHandler.ReplaceStepsHandler)
	r.Post("/automations/{id}/activate", automationHandler.ActivateHandler)
	r.Post("/automations/{id}/deactivate", automationHandler.DeactivateHandler)
	r.Post("/automations/{id}/run", automationHandler.RunNowHandler)
	r.Get("/automations/{id}/runs", automationHandler.ListRunsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("🚀 Server running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
