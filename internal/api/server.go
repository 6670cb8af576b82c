// Package api provides the HTTP surface of the service: the payment webhook,
// manual fulfillment triggers, the notification audit listing, and health.
// It builds a chi router with request-id, logging, and panic-recovery
// middleware in front of every handler.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guestflow/internal/external"
	"guestflow/internal/types"
)

// ReservationReader is the reservation access the HTTP layer needs.
type ReservationReader interface {
	GetByID(ctx context.Context, id int64) (*types.Reservation, error)
	MarkPaid(ctx context.Context, id int64, at time.Time) error
	AdvanceStatus(ctx context.Context, id int64, status types.ReservationStatus) error
}

// NotificationReader lists the audit log for a reservation.
type NotificationReader interface {
	ListByReservation(ctx context.Context, reservationID int64) ([]types.NotificationLogEntry, error)
}

// JobEnqueuer pushes background jobs. Satisfied by queue.Queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload types.JobPayload) error
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// DBPinger is the liveness probe for the database pool.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Server wires handlers to their dependencies and owns the router.
type Server struct {
	reservations  ReservationReader
	notifications NotificationReader
	queue         JobEnqueuer
	verifier      external.WebhookVerifier
	webhookSecret types.SecretString
	db            DBPinger
	queueHealth   HealthChecker
	logger        types.Logger

	router *chi.Mux
}

// Deps carries the server's constructor dependencies.
type Deps struct {
	Reservations  ReservationReader
	Notifications NotificationReader
	Queue         JobEnqueuer
	Verifier      external.WebhookVerifier
	WebhookSecret types.SecretString
	DB            DBPinger
	QueueHealth   HealthChecker
	Logger        types.Logger
}

// NewServer builds the server and mounts all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		reservations:  deps.Reservations,
		notifications: deps.Notifications,
		queue:         deps.Queue,
		verifier:      deps.Verifier,
		webhookSecret: deps.WebhookSecret,
		db:            deps.DB,
		queueHealth:   deps.QueueHealth,
		logger:        deps.Logger,
		router:        chi.NewRouter(),
	}
	s.mountRoutes()
	return s
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	s.router.Use(RequestID)
	s.router.Use(s.Recoverer)
	s.router.Use(RequestLogger(s.logger))

	s.router.Post("/webhook", s.handlePaymentWebhook)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/reservations/{id}", func(r chi.Router) {
		r.Post("/fulfill", s.handleFulfill)
		r.Post("/contact", s.handleUpdateContact)
		r.Post("/checkin", s.handleCheckIn)
		r.Get("/notifications", s.handleListNotifications)
	})
}
