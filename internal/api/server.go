// Package api exposes the admin HTTP surface: scheduler control, event
// reporting and history, ad preferences, segment inspection, health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/adserving/internal/auth"
	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/preferences"
	"github.com/ignite/adserving/internal/serving"
)

// Scheduler is the control surface of serving.Scheduler.
type Scheduler interface {
	MaybeServe(ctx context.Context) error
	StopServing()
	ServeNow(ctx context.Context) (serving.Result, error)
	Status() serving.Status
}

// EventLog appends reported ad events and reads the history back.
type EventLog interface {
	RecordEvent(ctx context.Context, event domain.AdEvent) error
	GetAllEvents(ctx context.Context, adType domain.AdType) ([]domain.AdEvent, error)
}

// Preferences is the ad feedback surface of preferences.Manager.
type Preferences interface {
	ToggleOptOut(ctx context.Context, segment string) (preferences.Action, error)
	ToggleOptIn(ctx context.Context, segment string) (preferences.Action, error)
	ToggleFlagged(ctx context.Context, creativeSetID string) (bool, error)
	Snapshot() preferences.Preferences
}

// Options wires the handlers.
type Options struct {
	Scheduler Scheduler
	Events    EventLog
	Profile   serving.ProfileSource
	// Preferences mounts /v1/preferences when set.
	Preferences Preferences
	// Auth guards /v1 and mounts /auth when set.
	Auth                   *auth.AuthManager
	AdType                 domain.AdType
	MaxSegmentsPerCategory int
	// Metrics is mounted at /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
	// OnEvent is called after an event is recorded.
	OnEvent func(domain.AdEventType)
	Now     func() time.Time
	NewID   func() string
}

// Server represents the API server
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	return &Server{handler: SetupRoutes(NewHandlers(opts), opts)}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// ServeNow runs a full cycle inside the request.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
