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

const leadSourcePaypal = "PayPal"

// contactOverwrite is applied when a contact is sighted again: profile and
// address fields track the latest event, the identity key never moves.
var contactOverwrite = []string{
	"first_name", "last_name", "lead_source", "company",
	"mailing_street", "mailing_city", "mailing_state", "mailing_postal_code", "mailing_country",
}

func contactFromTransaction(org *orgdomain.Organization, txn *paypal.Transaction, email string) *domain.Contact {
	contact := &domain.Contact{
		OrgSlug:    org.Slug,
		Email:      email,
		LeadSource: leadSourcePaypal,
	}
	if txn.Name != nil {
		contact.FirstName = txn.Name.First
		contact.LastName = txn.Name.Last
	}
	if txn.Address != nil {
		contact.MailingStreet = txn.Address.Street
		contact.MailingCity = txn.Address.City
		contact.MailingState = txn.Address.State
		contact.MailingPostalCode = txn.Address.PostalCode
		contact.MailingCountry = txn.Address.Country
	}
	return contact
}

func opportunityFromTransaction(org *orgdomain.Organization, txn *paypal.Transaction, contact *domain.Contact) *domain.Opportunity {
	name := "PayPal: " + txn.Email
	if txn.Subject != "" {
		name = fmt.Sprintf("PayPal: %s (%s)", txn.Subject, txn.Email)
	}
	txnID := txn.ID
	return &domain.Opportunity{
		OrgSlug:             org.Slug,
		ContactID:           contact.ID,
		Name:                name,
		StageName:           domain.StageClosedWon,
		Amount:              txn.GrossAmount,
		DonorSelectedAmount: txn.GrossAmount,
		NetAmount:           txn.GrossAmount - txn.FeeAmount,
		CloseDate:           txn.Date,
		LeadSource:          leadSourcePaypal,
		EncouragedBy:        txn.Note,
		OrgProperty:         org.PaypalProperty,
		PaypalTransactionID: &txnID,
		PaypalAccountID:     txn.AccountID,
	}
}

// processSingle records a one-off donation: contact plus standalone
// opportunity keyed by the transaction id.
func (s *Service) processSingle(ctx context.Context, org *orgdomain.Organization, txn *paypal.Transaction, sub *paypal.Subscription) (*Outcome, error) {
	log := logger.WithOrg(s.log, org.Slug)

	email := findEmail(txn, sub)
	contact, contactCreated, err := s.store.UpsertContact(ctx, s.db, contactFromTransaction(org, txn, email), contactOverwrite)
	if err != nil {
		return nil, fmt.Errorf("upsert contact for transaction %s: %w", txn.ID, err)
	}
	if contactCreated {
		log.Info("contact created", zap.String("email", email))
	}

	opp, oppCreated, err := s.store.UpsertOpportunity(ctx, s.db, opportunityFromTransaction(org, txn, contact), nil)
	if err != nil {
		return nil, fmt.Errorf("upsert opportunity for transaction %s: %w", txn.ID, err)
	}
	if oppCreated {
		log.Info("opportunity created", zap.Int64("opportunity_id", int64(opp.ID)))
	}

	disposition := DispositionUpdated
	if oppCreated {
		disposition = DispositionCreated
	}
	return &Outcome{
		Disposition:   disposition,
		ContactID:     contact.ID,
		OpportunityID: opp.ID,
	}, nil
}
