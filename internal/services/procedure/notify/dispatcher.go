// Package notify fans run-creation notifications out to team members
// through a bounded worker pool with retry and backoff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/firmdesk/firmdesk/internal/platform/metrics"
	"github.com/firmdesk/firmdesk/internal/platform/timeouts"
	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// ErrQueueFull indicates the dispatch queue rejected an enqueue.
var ErrQueueFull = errors.New("notification queue is full")

// ErrDispatcherClosed indicates the dispatcher no longer accepts jobs.
var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

// Message is one rendered notification ready for delivery.
type Message struct {
	RecipientUserID string
	Address         string
	Subject         string
	Body            string
}

// Messenger delivers one rendered message to its recipient.
type Messenger interface {
	Send(ctx context.Context, message Message) error
}

// LogMessenger writes deliveries to the process log. It is the fallback
// when no outbound transport is configured.
type LogMessenger struct{}

// Send logs the message instead of delivering it.
func (LogMessenger) Send(_ context.Context, message Message) error {
	log.Printf("notify %s <%s>: %s", message.RecipientUserID, message.Address, message.Subject)
	return nil
}

// UserDirectory resolves recipient addresses and display names.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (storage.UserRecord, error)
}

// Config tunes the dispatcher pool.
type Config struct {
	Workers         int
	QueueSize       int
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryMaxDelay   time.Duration
	DeliveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = timeouts.NotificationDelivery
	}
	return c
}

// Dispatcher queues run notifications and delivers them asynchronously.
type Dispatcher struct {
	cfg       Config
	messenger Messenger
	users     UserDirectory
	renderer  *Renderer
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	jobs   chan domain.RecipientNotification
	group  *errgroup.Group
	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	closed bool
}

// NewDispatcher constructs a dispatcher. Call Start before enqueuing and
// Close to drain.
func NewDispatcher(cfg Config, messenger Messenger, users UserDirectory, m *metrics.Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if messenger == nil {
		messenger = LogMessenger{}
	}
	return &Dispatcher{
		cfg:       cfg,
		messenger: messenger,
		users:     users,
		renderer:  NewRenderer(),
		metrics:   m,
		tracer:    otel.Tracer("procedure"),
		jobs:      make(chan domain.RecipientNotification, cfg.QueueSize),
		sleep:     sleepContext,
	}
}

// Start launches the worker pool. Workers exit when the context is
// cancelled or the queue is closed and drained.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	d.group = group
	for i := 0; i < d.cfg.Workers; i++ {
		group.Go(func() error {
			return d.work(ctx)
		})
	}
}

// NotifyRunCreated appends one job to the queue without blocking the
// caller. A full queue rejects the job.
func (d *Dispatcher) NotifyRunCreated(notification domain.RecipientNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- notification:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs, drains the queue, and waits for workers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	var err error
	if d.group != nil {
		err = d.group.Wait()
	}
	if d.cancel != nil {
		d.cancel()
	}
	return err
}

func (d *Dispatcher) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-d.jobs:
			if !ok {
				return nil
			}
			d.deliver(ctx, job)
		}
	}
}

// deliver renders and sends one notification with bounded retries.
// Failures never propagate past the worker.
func (d *Dispatcher) deliver(ctx context.Context, job domain.RecipientNotification) {
	ctx, span := d.tracer.Start(ctx, "procedure.notify.deliver", trace.WithAttributes(
		attribute.String("run.id", job.RunID),
		attribute.String("recipient.id", job.RecipientUserID),
	))
	defer span.End()

	message, err := d.render(ctx, job)
	if err != nil {
		log.Printf("render notification for %s: %v", job.RecipientUserID, err)
		d.countDelivery(metrics.OutcomeFailed)
		return
	}

	delay := d.cfg.RetryBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		err = d.messenger.Send(sendCtx, message)
		cancel()
		if err == nil {
			d.countDelivery(metrics.OutcomeDelivered)
			return
		}
		log.Printf("deliver notification to %s (attempt %d/%d): %v", job.RecipientUserID, attempt, d.cfg.MaxAttempts, err)
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			break
		}
		delay *= 2
		if delay > d.cfg.RetryMaxDelay {
			delay = d.cfg.RetryMaxDelay
		}
	}
	d.countDelivery(metrics.OutcomeFailed)
}

func (d *Dispatcher) render(ctx context.Context, job domain.RecipientNotification) (Message, error) {
	message := Message{RecipientUserID: job.RecipientUserID}
	if d.users != nil {
		user, err := d.users.GetUser(ctx, job.RecipientUserID)
		if err != nil {
			return Message{}, fmt.Errorf("resolve recipient: %w", err)
		}
		message.Address = user.Email
	}
	message.Subject, message.Body = d.renderer.RunCreated(job)
	return message, nil
}

func (d *Dispatcher) countDelivery(outcome string) {
	if d.metrics != nil {
		d.metrics.NotificationDelivered.WithLabelValues(outcome).Inc()
	}
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
