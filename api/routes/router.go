package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osoriodev/vendelo-backend/api/controllers"
	"github.com/osoriodev/vendelo-backend/api/middleware"
	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/internal/notifications"
	"github.com/osoriodev/vendelo-backend/pkg/config"
	"github.com/osoriodev/vendelo-backend/pkg/db"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	pkgredis "github.com/osoriodev/vendelo-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	distributionService distribution.Service,
	assignmentService assignment.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var cache db.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		cache = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, cache, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Get("/assignments", controllers.ListAssignments(assignmentService, logg))
		r.Get("/vendors/{vendorId}/assignments", controllers.ListVendorAssignments(assignmentService, logg))
		r.Get("/leads/{leadId}/assignments", controllers.ListLeadAssignments(assignmentService, logg))

		// Lifecycle writes and distribution controls stay with managers;
		// salespeople only read their own slices.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin, enums.MemberRoleManager))
			r.Post("/assignments", controllers.ManualAssign(distributionService, logg))
			r.Post("/assignments/transfer", controllers.TransferAssignment(distributionService, logg))
			r.Post("/assignments/conclude", controllers.ConcludeAssignment(distributionService, logg))
			r.Post("/distribution/leads", controllers.DistributeLead(distributionService, logg))
			r.Post("/distribution/queue/process", controllers.ProcessQueue(distributionService, logg))
			r.Get("/distribution/queue", controllers.PendingQueue(distributionService, logg))
			r.Get("/distribution/dashboard", controllers.DistributionDashboard(distributionService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
