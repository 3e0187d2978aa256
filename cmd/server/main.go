package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/pressroom/approvals-backend/internal/cache"
	"github.com/pressroom/approvals-backend/internal/controller"
	"github.com/pressroom/approvals-backend/internal/db"
	"github.com/pressroom/approvals-backend/internal/notify"
	"github.com/pressroom/approvals-backend/internal/queue"
	"github.com/pressroom/approvals-backend/internal/render"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/service"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	conn := db.Init()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	versionRepo := &repository.VersionRepository{DB: conn}
	approvalRepo := &repository.ApprovalRepository{DB: conn}

	// Share-token cache is optional; the engine runs without Redis.
	var shareCache *cache.ShareCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
		c, err := cache.Connect(addr, os.Getenv("REDIS_PASS"), redisDB)
		if err != nil {
			log.Println("⚠️ Redis unavailable, share cache disabled:", err)
		} else {
			shareCache = c
			log.Println("✅ Connected to Redis")
		}
	}

	// Notifications flow through the in-process queue into AMQP when a
	// broker is configured, or into the log otherwise.
	q := queue.NewInMemoryQueue()
	var sink notify.Dispatcher = notify.LogDispatcher{}
	if url := os.Getenv("AMQP_URL"); url != "" {
		amqpDispatcher, err := notify.NewAMQPDispatcher(url)
		if err != nil {
			log.Println("⚠️ AMQP unavailable, notifications go to the log:", err)
		} else {
			sink = amqpDispatcher
			log.Println("✅ Connected to AMQP")
		}
	}
	notify.StartNotificationSubscriber(q, sink)

	lockService := &service.LockService{Campaigns: campaignRepo}
	versionService := &service.VersionService{
		Versions:  versionRepo,
		Approvals: approvalRepo,
		Locks:     lockService,
	}
	approvalService := &service.ApprovalService{
		Approvals:  approvalRepo,
		Versions:   versionService,
		Dispatcher: &notify.QueueDispatcher{Queue: q},
		Cache:      shareCache,
		Links:      render.NewLinkBuilderFromEnv(),
	}
	guard := &tenancy.Guard{Versions: versionRepo}

	versionController := &controller.VersionController{
		VersionService: versionService,
		Guard:          guard,
	}
	approvalController := &controller.ApprovalController{
		ApprovalService: approvalService,
	}
	reviewController := &controller.ReviewController{
		ApprovalService: approvalService,
	}
	campaignController := &controller.CampaignController{
		Campaigns:   campaignRepo,
		LockService: lockService,
	}

	r := chi.NewRouter()

	// Version routes
	r.Post("/campaigns/{id}/versions", versionController.CreateVersion)
	r.Get("/campaigns/{id}/versions", versionController.GetVersionHistory)
	r.Get("/campaigns/{id}/versions/current", versionController.GetCurrentVersion)
	r.Post("/campaigns/{id}/versions/cleanup", versionController.CleanupDrafts)
	r.Post("/versions/{id}/status", versionController.UpdateVersionStatus)
	r.Get("/versions/{id}/artifact", versionController.GetArtifact)
	r.Post("/versions/{id}/link-approval", versionController.LinkVersionToApproval)
	r.Post("/versions/resolve", versionController.ResolveVersions)

	// Approval routes
	r.Post("/approvals", approvalController.CreateApproval)
	r.Post("/approvals/{id}/send", approvalController.SendApproval)
	r.Get("/approvals/search", approvalController.SearchApprovals)

	// Public share-link routes
	r.Get("/review/{shareId}", reviewController.GetReview)
	r.Post("/review/{shareId}/decision", reviewController.SubmitDecision)
	r.Post("/review/{shareId}/request-changes", reviewController.RequestChanges)

	// Edit lock routes
	r.Get("/campaigns/{id}/lock", campaignController.GetLock)
	r.Post("/campaigns/{id}/unlock-request", campaignController.RequestUnlock)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = ":8080"
	}
	log.Println("🚀 Server running on", port)
	log.Fatal(http.ListenAndServe(port, r))
}
