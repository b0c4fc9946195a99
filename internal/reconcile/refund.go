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

// processRefund moves the referenced opportunity to Refunded. A refund often
// means the underlying subscription was cancelled, so when the opportunity
// belongs to a recurring donation the vendor is asked and the series closed
// if it no longer collects.
func (s *Service) processRefund(ctx context.Context, org *orgdomain.Organization, txn *paypal.Transaction) (*Outcome, error) {
	log := logger.WithOrg(s.log, org.Slug).With(
		zap.String("transaction_id", txn.ID),
		zap.String("reference_id", txn.ReferenceID),
	)

	opp, err := s.store.OpportunityByPaypalTransactionID(ctx, s.db, org.Slug, txn.ReferenceID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, fmt.Errorf("refund %s references transaction %s: %w", txn.ID, txn.ReferenceID, ErrMissingReferencedOpportunity)
	}

	opp.StageName = domain.StageRefunded
	if err := s.store.SaveOpportunity(ctx, s.db, opp); err != nil {
		return nil, err
	}
	log.Info("opportunity refunded", zap.Int64("opportunity_id", int64(opp.ID)))

	out := &Outcome{
		Disposition:   DispositionUpdated,
		ContactID:     opp.ContactID,
		OpportunityID: opp.ID,
	}
	if opp.RecurringDonationID == nil {
		return out, nil
	}
	out.RecurringDonationID = *opp.RecurringDonationID

	rd, err := s.store.RecurringDonationByID(ctx, s.db, org.Slug, *opp.RecurringDonationID)
	if err != nil {
		return nil, err
	}
	if rd == nil {
		log.Warn("refunded opportunity references missing recurring donation")
		return out, nil
	}
	if rd.Closed() {
		return out, nil
	}

	sub, err := s.vendors.Paypal(org).GetSubscription(ctx, rd.PaypalSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", rd.PaypalSubscriptionID, err)
	}
	if sub.Status == paypal.SubscriptionCancelled {
		log.Info("subscription cancelled, closing recurring donation",
			zap.String("subscription_id", rd.PaypalSubscriptionID))
		rd.OpenEndedStatus = domain.OpenEndedClosed
		if err := s.store.SaveRecurringDonation(ctx, s.db, rd); err != nil {
			return nil, err
		}
	}
	return out, nil
}
