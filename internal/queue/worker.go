package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/donorsync/donorsync/internal/clock"
	appconfig "github.com/donorsync/donorsync/internal/config"
	"github.com/donorsync/donorsync/internal/observability/metrics"
	"github.com/donorsync/donorsync/internal/organization"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dequeueTimeout = 5 * time.Second

type WorkerParams struct {
	fx.In

	Log      *zap.Logger
	Config   appconfig.Config
	DB       *gorm.DB
	Broker   Broker
	Registry *organization.Registry
	Service  *reconcile.Service
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

// Worker drains the per-org queues and runs each task through the
// reconciliation service. Failed tasks are re-enqueued with backoff when the
// error is transient, dead-lettered when it is not.
type Worker struct {
	log        *zap.Logger
	db         *gorm.DB
	broker     Broker
	registry   *organization.Registry
	service    *reconcile.Service
	metrics    *metrics.Metrics
	clock      clock.Clock
	maxRetries int
	backoff    time.Duration
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		log:        p.Log.Named("worker"),
		db:         p.DB,
		broker:     p.Broker,
		registry:   p.Registry,
		service:    p.Service,
		metrics:    p.Metrics,
		clock:      p.Clock,
		maxRetries: p.Config.WorkerMaxRetries,
		backoff:    p.Config.WorkerRetryBackoff,
	}
}

// Run drains tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slugs := make([]string, 0)
	for _, org := range w.registry.All() {
		slugs = append(slugs, org.Slug)
	}
	w.log.Info("worker started", zap.Strings("queues", slugs))

	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopping")
			return
		}
		task, err := w.broker.Dequeue(ctx, slugs, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("dequeue failed", zap.Error(err))
			w.sleep(ctx, dequeueTimeout)
			continue
		}
		if task == nil {
			continue
		}
		w.Process(ctx, task)
	}
}

// Process runs one task, handling retry bookkeeping.
func (w *Worker) Process(ctx context.Context, task *Task) {
	log := w.log.With(
		zap.String("task_id", task.ID),
		zap.String("org", task.OrgSlug),
		zap.String("kind", task.Kind),
		zap.Int("attempt", task.Attempt),
	)

	err := w.handle(ctx, task)
	w.metrics.RecordQueueTask(ctx, task.OrgSlug, task.Kind, err == nil)
	if err == nil {
		return
	}

	if !reconcile.IsRetryable(err) {
		log.Error("task failed permanently", zap.Error(err))
		w.deadLetter(ctx, task, err)
		return
	}
	if task.Attempt >= w.maxRetries {
		log.Error("task failed, retries exhausted", zap.Error(err))
		w.deadLetter(ctx, task, err)
		return
	}

	delay := w.backoff << task.Attempt
	log.Warn("task failed, retrying", zap.Error(err), zap.Duration("delay", delay))
	w.sleep(ctx, delay)

	task.Attempt++
	w.metrics.RecordQueueRetry(ctx, task.OrgSlug, task.Kind)
	if err := w.broker.Enqueue(ctx, task); err != nil {
		log.Error("re-enqueue failed", zap.Error(err))
	}
}

func (w *Worker) handle(ctx context.Context, task *Task) error {
	org := w.registry.Get(task.OrgSlug)
	if org == nil {
		return fmt.Errorf("task %s: %w", task.ID, reconcile.ErrUnknownOrganization)
	}

	switch task.Kind {
	case KindPaypalTransaction:
		_, err := w.service.ReconcileTransaction(ctx, org, task.Payload)
		return err

	case KindAttendeeUpdated:
		var payload AttendeePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return &reconcile.MalformedPayloadError{Err: err}
		}
		_, err := w.service.ProcessAttendeeUpdate(ctx, org, payload.AttendeeID, payload.EventID)
		return err

	case KindCheckIn:
		var payload AttendeePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return &reconcile.MalformedPayloadError{Err: err}
		}
		_, err := w.service.ProcessCheckIn(ctx, org, payload.AttendeeID, payload.EventID)
		return err

	case KindEventUpdated:
		var payload EventPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return &reconcile.MalformedPayloadError{Err: err}
		}
		_, err := w.service.ProcessEventUpdate(ctx, org, payload.EventID)
		return err

	case KindWebhook:
		var payload WebhookPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return &reconcile.MalformedPayloadError{Err: err}
		}
		return w.handleWebhook(ctx, org, &payload)

	default:
		return &reconcile.MalformedPayloadError{Err: fmt.Errorf("unknown task kind %q", task.Kind)}
	}
}

// webhookObject is the slice of any Eventbrite object a webhook can point at
// that dispatch needs.
type webhookObject struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
}

// handleWebhook resolves the notification's object and fans it out to the
// matching handler. Orders expand into one attendee task per attendee.
func (w *Worker) handleWebhook(ctx context.Context, org *orgdomain.Organization, payload *WebhookPayload) error {
	log := w.log.With(zap.String("org", org.Slug), zap.String("action", payload.Action))

	raw, err := w.service.FetchWebhookObject(ctx, org, payload.APIURL)
	if err != nil {
		return fmt.Errorf("resolve webhook object: %w", err)
	}
	var object webhookObject
	if err := json.Unmarshal(raw, &object); err != nil {
		return &reconcile.MalformedPayloadError{Err: err}
	}
	log.Info("webhook object resolved", zap.String("object_id", object.ID))

	switch payload.Action {
	case "attendee.updated":
		_, err := w.service.ProcessAttendeeUpdate(ctx, org, object.ID, object.EventID)
		return err
	case "event.updated", "event.created":
		_, err := w.service.ProcessEventUpdate(ctx, org, object.ID)
		return err
	case "barcode.checked_in":
		_, err := w.service.ProcessCheckIn(ctx, org, object.ID, object.EventID)
		return err
	case "order.placed", "order.updated", "order.refunded":
		attendees, err := w.service.ExpandOrder(ctx, org, object.ID)
		if err != nil {
			return err
		}
		if len(attendees) == 0 {
			log.Info("no attendees listed on order", zap.String("order_id", object.ID))
			return nil
		}
		for _, attendee := range attendees {
			next, err := NewTask(w.clock.Now(), org.Slug, KindAttendeeUpdated, AttendeePayload{
				AttendeeID: attendee.ID,
				EventID:    attendee.EventID,
			})
			if err != nil {
				return err
			}
			if err := w.broker.Enqueue(ctx, next); err != nil {
				return err
			}
		}
		return nil
	default:
		log.Info("webhook action not supported")
		return nil
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
