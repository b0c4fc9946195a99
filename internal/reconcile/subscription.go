package reconcile

import (
	"context"
	"fmt"

	"github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/observability/logger"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/paypal"
	"go.uber.org/zap"
)

// applyTransaction stamps the matched or new installment with the payment's
// facts.
func applyTransaction(opp *domain.Opportunity, txn *paypal.Transaction) {
	txnID := txn.ID
	opp.CloseDate = txn.Date
	opp.StageName = domain.StageClosedWon
	opp.PaypalTransactionID = &txnID
	opp.PaypalAccountID = txn.AccountID
	opp.Amount = txn.GrossAmount
	opp.DonorSelectedAmount = txn.GrossAmount
	opp.NetAmount = txn.GrossAmount - txn.FeeAmount
	opp.EncouragedBy = txn.Note
}

func recurringDonationFromSubscription(org *orgdomain.Organization, sub *paypal.Subscription, txn *paypal.Transaction, contact *domain.Contact) *domain.RecurringDonation {
	return &domain.RecurringDonation{
		OrgSlug:              org.Slug,
		ContactID:            contact.ID,
		Name:                 fmt.Sprintf("%s for %s (PayPal)", txn.Date.Format("2006-01-02"), sub.Email),
		Amount:               sub.Amount,
		DateEstablished:      txn.Date,
		InstallmentPeriod:    sub.InstallmentPeriod,
		OpenEndedStatus:      domain.OpenEndedOpen,
		LeadSource:           leadSourcePaypal,
		OrgProperty:          org.PaypalProperty,
		PaypalSubscriptionID: sub.ID,
		PaypalAccountID:      sub.PayerID,
	}
}

// processSubscriptionPayment handles a settled T0002. Payments carrying a
// subscription reference resolve or establish the recurring donation and then
// land on the installment closest in time; payments without one fall back to
// the donation series known for the payer's account, and failing that are
// recorded as one-off opportunities.
func (s *Service) processSubscriptionPayment(ctx context.Context, org *orgdomain.Organization, txn *paypal.Transaction) (*Outcome, error) {
	log := logger.WithOrg(s.log, org.Slug).With(zap.String("transaction_id", txn.ID))

	if txn.ReferenceIDType != "SUB" {
		log.Warn("subscription transaction has no associated subscription id")
		return s.processByAccountID(ctx, org, txn, log)
	}

	sub, err := s.vendors.Paypal(org).GetSubscription(ctx, txn.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", txn.ReferenceID, err)
	}
	log.Info("found subscription", zap.String("subscription_id", sub.ID), zap.String("status", sub.Status))

	switch sub.Status {
	case paypal.SubscriptionActive, paypal.SubscriptionCancelled, paypal.SubscriptionSuspended:
	default:
		return nil, &UnknownSubscriptionStatusError{SubscriptionID: sub.ID, Status: sub.Status}
	}

	rd, err := s.store.RecurringDonationBySubscriptionID(ctx, s.db, org.Slug, txn.ReferenceID)
	if err != nil {
		return nil, err
	}

	// a series is only established on first sighting if the subscription is
	// collecting and has a supported cadence; otherwise the payment is
	// recorded standalone
	if rd == nil {
		switch {
		case sub.Status == paypal.SubscriptionCancelled:
			log.Info("first contact with cancelled subscription, creating single opportunity",
				zap.String("subscription_id", sub.ID))
			return s.processSingle(ctx, org, txn, sub)
		case sub.Status == paypal.SubscriptionSuspended:
			log.Info("first contact with suspended subscription, creating single opportunity",
				zap.String("subscription_id", sub.ID))
			return s.processSingle(ctx, org, txn, sub)
		case sub.InstallmentPeriod == domain.PeriodNone:
			log.Info("unsupported subscription interval, creating single opportunity",
				zap.String("subscription_id", sub.ID))
			return s.processSingle(ctx, org, txn, sub)
		}

		log.Info("recurring donation not found, creating")
		email := findEmail(txn, sub)
		contact, _, err := s.store.UpsertContact(ctx, s.db, contactFromTransaction(org, txn, email), contactOverwrite)
		if err != nil {
			return nil, fmt.Errorf("upsert contact for subscription %s: %w", sub.ID, err)
		}
		rd, _, err = s.store.UpsertRecurringDonation(ctx, s.db, recurringDonationFromSubscription(org, sub, txn, contact))
		if err != nil {
			return nil, fmt.Errorf("create recurring donation for subscription %s: %w", sub.ID, err)
		}
	}

	if sub.Status == paypal.SubscriptionCancelled && !rd.Closed() {
		log.Info("subscription cancelled, closing recurring donation", zap.String("subscription_id", sub.ID))
		rd.OpenEndedStatus = domain.OpenEndedClosed
		if err := s.store.SaveRecurringDonation(ctx, s.db, rd); err != nil {
			return nil, err
		}
	}

	return s.settleInstallment(ctx, org, txn, sub, rd, log)
}

// settleInstallment lands the payment on the series: the temporally closest
// existing opportunity when one is near enough, a fresh linked installment
// otherwise.
func (s *Service) settleInstallment(ctx context.Context, org *orgdomain.Organization, txn *paypal.Transaction, sub *paypal.Subscription, rd *domain.RecurringDonation, log *zap.Logger) (*Outcome, error) {
	opps, err := s.store.OpportunitiesByRecurringDonation(ctx, s.db, org.Slug, rd.ID)
	if err != nil {
		return nil, err
	}

	match := ClosestOpportunity(opps, txn.Date)
	if match.Opportunity != nil && match.WithinTolerance {
		log.Info("found closest opportunity, updating",
			zap.Int64("opportunity_id", int64(match.Opportunity.ID)),
			zap.Int("days_delta", match.DaysDelta),
		)
		applyTransaction(match.Opportunity, txn)
		if err := s.store.SaveOpportunity(ctx, s.db, match.Opportunity); err != nil {
			return nil, err
		}
		return &Outcome{
			Disposition:         DispositionUpdated,
			ContactID:           match.Opportunity.ContactID,
			OpportunityID:       match.Opportunity.ID,
			RecurringDonationID: rd.ID,
		}, nil
	}

	if match.Opportunity != nil {
		log.Warn("closest opportunity too far, creating new installment",
			zap.Int("days_delta", match.DaysDelta))
	}

	email := findEmail(txn, sub)
	contact, _, err := s.store.UpsertContact(ctx, s.db, contactFromTransaction(org, txn, email), contactOverwrite)
	if err != nil {
		return nil, fmt.Errorf("upsert contact for transaction %s: %w", txn.ID, err)
	}

	opp := opportunityFromTransaction(org, txn, contact)
	opp.RecurringDonationID = &rd.ID
	opp.Type = domain.OpportunityTypeRecurring
	if sub != nil {
		opp.InstallmentPeriod = sub.InstallmentPeriod
	}
	opp, created, err := s.store.UpsertOpportunity(ctx, s.db, opp, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert installment for transaction %s: %w", txn.ID, err)
	}

	disposition := DispositionUpdated
	if created {
		disposition = DispositionCreated
	}
	return &Outcome{
		Disposition:         disposition,
		ContactID:           contact.ID,
		OpportunityID:       opp.ID,
		RecurringDonationID: rd.ID,
	}, nil
}

// processByAccountID resolves a subscription payment that PayPal delivered
// without a subscription reference. The payer's account id locates the
// series; without one the payment is recorded standalone.
func (s *Service) processByAccountID(ctx context.Context, org *orgdomain.Organization, txn *paypal.Transaction, log *zap.Logger) (*Outcome, error) {
	rd, err := s.store.RecurringDonationByAccountID(ctx, s.db, org.Slug, txn.AccountID)
	if err != nil {
		return nil, err
	}
	if rd == nil {
		return s.processSingle(ctx, org, txn, nil)
	}
	return s.settleInstallment(ctx, org, txn, nil, rd, log)
}
