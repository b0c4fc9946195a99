// Package importer periodically pulls recent history from the vendors and
// feeds it through the per-org queues, catching anything webhooks missed.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/donorsync/donorsync/internal/clock"
	appconfig "github.com/donorsync/donorsync/internal/config"
	"github.com/donorsync/donorsync/internal/observability/logger"
	"github.com/donorsync/donorsync/internal/observability/metrics"
	"github.com/donorsync/donorsync/internal/organization"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/queue"
	"github.com/donorsync/donorsync/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   appconfig.Config
	Registry *organization.Registry
	Vendors  reconcile.VendorClients
	Broker   queue.Broker
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

// Importer walks each configured org and enqueues a task per recent vendor
// record. Dedup happens downstream: replaying already-processed records is
// safe, so the trailing windows overlap on purpose.
type Importer struct {
	log        *zap.Logger
	registry   *organization.Registry
	vendors    reconcile.VendorClients
	broker     queue.Broker
	metrics    *metrics.Metrics
	clock      clock.Clock
	interval   time.Duration
	paypalDays int
	maxAgeDays int
}

func New(p Params) *Importer {
	return &Importer{
		log:        p.Log.Named("importer"),
		registry:   p.Registry,
		vendors:    p.Vendors,
		broker:     p.Broker,
		metrics:    p.Metrics,
		clock:      p.Clock,
		interval:   p.Config.ImportInterval,
		paypalDays: p.Config.PaypalImportDays,
		maxAgeDays: p.Config.EventbriteMaxAgeDays,
	}
}

// Run imports on start and then once per interval until ctx is cancelled.
func (i *Importer) Run(ctx context.Context) {
	i.log.Info("importer started", zap.Duration("interval", i.interval))
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			i.log.Info("importer stopping")
			return
		case <-ticker.C:
			i.RunOnce(ctx)
		}
	}
}

// RunOnce imports every org's recent history.
func (i *Importer) RunOnce(ctx context.Context) {
	for _, org := range i.registry.All() {
		log := logger.WithOrg(i.log, org.Slug)
		if org.HasPaypal() {
			if err := i.importPaypal(ctx, org); err != nil {
				log.Error("paypal import failed", zap.Error(err))
				i.metrics.RecordImportRun(ctx, org.Slug, "paypal", false)
			} else {
				i.metrics.RecordImportRun(ctx, org.Slug, "paypal", true)
			}
		}
		if org.HasEventbrite() {
			if err := i.importEventbrite(ctx, org); err != nil {
				log.Error("eventbrite import failed", zap.Error(err))
				i.metrics.RecordImportRun(ctx, org.Slug, "eventbrite", false)
			} else {
				i.metrics.RecordImportRun(ctx, org.Slug, "eventbrite", true)
			}
		}
	}
}

// paypalWindow is the trailing import window: whole days, from midnight at
// the start to the last second of today.
func paypalWindow(now time.Time, days int) (time.Time, time.Time) {
	now = now.UTC()
	y, m, d := now.AddDate(0, 0, -days).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = now.Date()
	end := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	return start, end
}

func (i *Importer) importPaypal(ctx context.Context, org *orgdomain.Organization) error {
	log := logger.WithOrg(i.log, org.Slug)
	start, end := paypalWindow(i.clock.Now(), i.paypalDays)
	log.Info("importing paypal transactions", zap.Time("start", start), zap.Time("end", end))

	transactions, err := i.vendors.Paypal(org).ListTransactions(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	log.Info("found transactions to process", zap.Int("count", len(transactions)))

	for _, raw := range transactions {
		task := &queue.Task{
			ID:         queue.NewTaskID(i.clock.Now()),
			OrgSlug:    org.Slug,
			Kind:       queue.KindPaypalTransaction,
			Payload:    raw,
			EnqueuedAt: i.clock.Now(),
		}
		if err := i.broker.Enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (i *Importer) importEventbrite(ctx context.Context, org *orgdomain.Organization) error {
	log := logger.WithOrg(i.log, org.Slug)
	api := i.vendors.Eventbrite(org)

	ebOrgID, err := i.resolveEventbriteOrg(ctx, org)
	if err != nil {
		return err
	}

	events, err := api.ListEvents(ctx, ebOrgID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	log.Info("found events", zap.Int("count", len(events)))

	cutoff := i.clock.Now().AddDate(0, 0, -i.maxAgeDays)
	for _, event := range events {
		if end := event.EndUTC(); !end.IsZero() && end.Before(cutoff) {
			log.Debug("event too old, skipping", zap.String("event_id", event.ID))
			continue
		}

		task, err := queue.NewTask(i.clock.Now(), org.Slug, queue.KindEventUpdated, queue.EventPayload{EventID: event.ID})
		if err != nil {
			return err
		}
		if err := i.broker.Enqueue(ctx, task); err != nil {
			return err
		}

		attendees, err := api.ListAttendees(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("list attendees for event %s: %w", event.ID, err)
		}
		log.Info("found attendees", zap.String("event_id", event.ID), zap.Int("count", len(attendees)))
		for _, attendee := range attendees {
			task, err := queue.NewTask(i.clock.Now(), org.Slug, queue.KindAttendeeUpdated, queue.AttendeePayload{
				AttendeeID: attendee.ID,
				EventID:    event.ID,
			})
			if err != nil {
				return err
			}
			if err := i.broker.Enqueue(ctx, task); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveEventbriteOrg picks the Eventbrite organization the token acts for,
// honoring an explicit org id when one is configured.
func (i *Importer) resolveEventbriteOrg(ctx context.Context, org *orgdomain.Organization) (string, error) {
	organizations, err := i.vendors.Eventbrite(org).ListOrganizations(ctx)
	if err != nil {
		return "", fmt.Errorf("list organizations: %w", err)
	}
	if org.EventbriteOrgID != "" {
		for _, candidate := range organizations {
			if candidate.ID == org.EventbriteOrgID {
				return candidate.ID, nil
			}
		}
		return "", fmt.Errorf("eventbrite organization %s not visible to token", org.EventbriteOrgID)
	}
	if len(organizations) == 0 {
		return "", fmt.Errorf("no eventbrite organizations visible to token")
	}
	return organizations[0].ID, nil
}
