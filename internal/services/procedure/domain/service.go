// Package domain implements the procedure engine use-cases: catalog
// management, run instantiation, status transitions, task feeds and team
// status aggregation.
package domain

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/firmdesk/firmdesk/internal/platform/id"
	"github.com/firmdesk/firmdesk/internal/platform/metrics"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// RecipientNotification is the post-commit fan-out payload for one team
// member of a freshly instantiated run.
type RecipientNotification struct {
	RecipientUserID string
	RunID           string
	TenantID        string
	ProcedureName   string
	TargetEntityID  string
	DueDate         *time.Time
	TeamMembers     []string
	ActionNames     []string
}

// Notifier receives post-commit run notifications. Enqueue failures stay on
// the dispatch side; instantiation never fails because of them.
type Notifier interface {
	NotifyRunCreated(notification RecipientNotification) error
}

// Service orchestrates procedure engine behavior over the storage boundary.
type Service struct {
	catalog  storage.CatalogStore
	runs     storage.RunStore
	statuses storage.StatusStore
	tasks    storage.TaskStore
	users    storage.UserStore
	notifier Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time
	newID    func() (string, error)
}

// Config wires the service dependencies.
type Config struct {
	Catalog  storage.CatalogStore
	Runs     storage.RunStore
	Statuses storage.StatusStore
	Tasks    storage.TaskStore
	Users    storage.UserStore
	Notifier Notifier
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	NewID    func() (string, error)
}

// NewService constructs the procedure domain service.
func NewService(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		catalog:  cfg.Catalog,
		runs:     cfg.Runs,
		statuses: cfg.Statuses,
		tasks:    cfg.Tasks,
		users:    cfg.Users,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("procedure"),
		clock:    clock,
		newID:    newID,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}
