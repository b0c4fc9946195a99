// Package reconcile turns classified payment and registration events into
// idempotent writes against the CRM record graph.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/donorsync/donorsync/internal/clock"
	"github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/observability/logger"
	"github.com/donorsync/donorsync/internal/observability/metrics"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/paypal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MalformedPayloadError wraps a payload that cannot be decoded. Not
// retryable; the bytes will not improve.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string { return "malformed payload: " + e.Err.Error() }
func (e *MalformedPayloadError) Unwrap() error { return e.Err }

type Params struct {
	fx.In

	Log     *zap.Logger
	DB      *gorm.DB
	Store   domain.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Vendors VendorClients
}

// Service reconciles vendor events into CRM records for every configured
// organization.
type Service struct {
	log     *zap.Logger
	db      *gorm.DB
	store   domain.Store
	clock   clock.Clock
	metrics *metrics.Metrics
	vendors VendorClients
}

func New(p Params) *Service {
	return &Service{
		log:     p.Log.Named("reconcile"),
		db:      p.DB,
		store:   p.Store,
		clock:   p.Clock,
		metrics: p.Metrics,
		vendors: p.Vendors,
	}
}

// ReconcileTransaction classifies one raw PayPal transaction and applies it.
// The same payload can be processed any number of times; replays settle on
// the records the first run produced.
func (s *Service) ReconcileTransaction(ctx context.Context, org *orgdomain.Organization, raw json.RawMessage) (*Outcome, error) {
	txn, err := paypal.ParseTransaction(raw)
	if err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}

	log := logger.WithOrg(s.log, org.Slug).With(
		zap.String("transaction_id", txn.ID),
		zap.String("event_code", txn.EventCode),
	)
	log.Info("processing transaction",
		zap.String("email", txn.Email),
		zap.Time("date", txn.Date),
	)

	action, err := paypal.Classify(txn)
	if err != nil {
		s.metrics.RecordTransaction(ctx, org.Slug, action.String(), "error")
		return nil, fmt.Errorf("classify transaction %s: %w", txn.ID, err)
	}

	var out *Outcome
	switch action {
	case paypal.ActionIgnore:
		log.Info("skipping transaction")
		out = ignored("event code " + txn.EventCode)
	case paypal.ActionSingleOpportunity:
		out, err = s.processSingle(ctx, org, txn, nil)
	case paypal.ActionRefund:
		log.Info("processing refund", zap.String("reference_id", txn.ReferenceID))
		out, err = s.processRefund(ctx, org, txn)
	case paypal.ActionSubscriptionPayment:
		out, err = s.processSubscriptionPayment(ctx, org, txn)
	default:
		err = fmt.Errorf("unhandled action %s", action)
	}
	if err != nil {
		s.metrics.RecordTransaction(ctx, org.Slug, action.String(), "error")
		return nil, err
	}
	s.metrics.RecordTransaction(ctx, org.Slug, action.String(), string(out.Disposition))
	return out, nil
}

// findEmail prefers the transaction's payer email and falls back to the
// subscription's subscriber email.
func findEmail(txn *paypal.Transaction, sub *paypal.Subscription) string {
	if txn.Email != "" {
		return txn.Email
	}
	if sub != nil {
		return sub.Email
	}
	return ""
}
