package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/api/handler"
	apimw "github.com/ricirt/pigeonpost/internal/api/middleware"
	"github.com/ricirt/pigeonpost/internal/news"
	"github.com/ricirt/pigeonpost/internal/service"
)

// Deps are the collaborators the HTTP surface needs. DB may be nil.
type Deps struct {
	Notifications *service.NotificationService
	News          *news.Service
	Deployer      handler.Deployer
	Pending       handler.PendingCounter
	Undelivered   handler.UndeliveredCounter
	MaxRetries    int
	DB            handler.Pinger
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(d.Logger))

	nh := handler.NewNotificationHandler(d.Notifications, d.Logger)
	oh := handler.NewOutboxHandler(d.Notifications, d.Logger)
	dh := handler.NewDeployHandler(d.Deployer, d.Logger)
	rh := handler.NewRecipientHandler(d.Notifications)
	sh := handler.NewStatsHandler(d.Pending, d.Undelivered, d.MaxRetries)
	hh := handler.NewHealthHandler(d.DB)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// cancel-all is registered before /{id} so it is never read as an ID
		r.Post("/notifications/cancel-all", nh.CancelAll)
		r.Post("/notifications", nh.Enqueue)
		r.Get("/notifications", nh.List)
		r.Get("/notifications/{id}", nh.GetByID)

		r.Get("/outbox", oh.List)
		r.Post("/outbox", oh.SendNow)

		r.Post("/deploy", dh.Deploy)
		r.Post("/recipients", rh.Create)
		r.Get("/stats", sh.GetStats)

		if d.News != nil {
			wh := handler.NewNewsHandler(d.News, d.Logger)
			r.Post("/news", wh.Save)
			r.Put("/news/subscriptions/{recipientID}", wh.Subscribe)
		}
	})

	return r
}
