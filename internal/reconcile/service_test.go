package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/donorsync/donorsync/internal/clock"
	"github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/crm/repository"
	"github.com/donorsync/donorsync/internal/eventbrite"
	"github.com/donorsync/donorsync/internal/observability/metrics"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/paypal"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func snowflakeID(n int64) snowflake.ID { return snowflake.ID(n) }

type fakePaypal struct {
	subs map[string]*paypal.Subscription
}

func (f *fakePaypal) GetSubscription(_ context.Context, id string) (*paypal.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	return sub, nil
}

func (f *fakePaypal) ListTransactions(context.Context, time.Time, time.Time) ([]json.RawMessage, error) {
	return nil, nil
}

type fakeEventbrite struct {
	events    map[string]*eventbrite.Event
	attendees map[string]*eventbrite.Attendee
	orders    map[string]*eventbrite.Order
}

func (f *fakeEventbrite) GetEvent(_ context.Context, eventID, _ string) (*eventbrite.Event, error) {
	event, ok := f.events[eventID]
	if !ok {
		return nil, eventbrite.ErrNotFound
	}
	return event, nil
}

func (f *fakeEventbrite) GetEventAttendee(_ context.Context, _, attendeeID, _ string) (*eventbrite.Attendee, error) {
	attendee, ok := f.attendees[attendeeID]
	if !ok {
		return nil, eventbrite.ErrNotFound
	}
	return attendee, nil
}

func (f *fakeEventbrite) GetOrder(_ context.Context, orderID, _ string) (*eventbrite.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, eventbrite.ErrNotFound
	}
	return order, nil
}

func (f *fakeEventbrite) FetchResource(context.Context, string) (json.RawMessage, error) {
	return nil, eventbrite.ErrNotFound
}

func (f *fakeEventbrite) ListOrganizations(context.Context) ([]eventbrite.Organization, error) {
	return nil, nil
}

func (f *fakeEventbrite) ListEvents(context.Context, string) ([]eventbrite.Event, error) {
	return nil, nil
}

func (f *fakeEventbrite) ListAttendees(context.Context, string) ([]eventbrite.Attendee, error) {
	return nil, nil
}

type fakeVendors struct {
	pp *fakePaypal
	eb *fakeEventbrite
}

func (f *fakeVendors) Paypal(*orgdomain.Organization) PaypalAPI       { return f.pp }
func (f *fakeVendors) Eventbrite(*orgdomain.Organization) EventbriteAPI { return f.eb }

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeVendors) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Contact{},
		&domain.Campaign{},
		&domain.CampaignMemberStatus{},
		&domain.CampaignMember{},
		&domain.Opportunity{},
		&domain.RecurringDonation{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	vendors := &fakeVendors{
		pp: &fakePaypal{subs: map[string]*paypal.Subscription{}},
		eb: &fakeEventbrite{
			events:    map[string]*eventbrite.Event{},
			attendees: map[string]*eventbrite.Attendee{},
			orders:    map[string]*eventbrite.Order{},
		},
	}

	svc := New(Params{
		Log:     zap.NewNop(),
		DB:      db,
		Store:   repository.Provide(node, clk),
		Clock:   clk,
		Metrics: (*metrics.Metrics)(nil),
		Vendors: vendors,
	})
	return svc, db, vendors
}

func testOrg() *orgdomain.Organization {
	return &orgdomain.Organization{
		Slug:           "texas",
		PaypalProperty: "Property1",
		TypeMap: map[string]string{
			"ticket":   "Event Ticket",
			"donation": "Donation",
			"merch":    "Ignore",
		},
	}
}

func txnJSON(id, code, status string, gross float64, opts ...func(map[string]any)) json.RawMessage {
	info := map[string]any{
		"transaction_id":              id,
		"transaction_event_code":      code,
		"transaction_initiation_date": "2025-03-15T10:00:00+0000",
		"transaction_amount":          map[string]any{"value": fmt.Sprintf("%.2f", gross)},
		"fee_amount":                  map[string]any{"value": fmt.Sprintf("%.2f", -gross/10)},
		"transaction_status":          status,
	}
	payload := map[string]any{
		"transaction_info": info,
		"payer_info": map[string]any{
			"email_address": "donor@example.com",
			"payer_name":    map[string]any{"given_name": "Ada", "surname": "Lovelace"},
		},
		"shipping_info": map[string]any{},
	}
	for _, opt := range opts {
		opt(payload)
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func withInfo(key string, value any) func(map[string]any) {
	return func(payload map[string]any) {
		payload["transaction_info"].(map[string]any)[key] = value
	}
}

func withDate(date string) func(map[string]any) {
	return withInfo("transaction_initiation_date", date)
}

func TestReconcileTransactionIgnored(t *testing.T) {
	svc, db, _ := newTestService(t)
	org := testOrg()

	out, err := svc.ReconcileTransaction(context.Background(), org, txnJSON("TX1", "T0400", "S", 50))
	require.NoError(t, err)
	assert.Equal(t, DispositionIgnored, out.Disposition)

	var count int64
	require.NoError(t, db.Model(&domain.Opportunity{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileTransactionSingleIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	raw := txnJSON("TX1", "T0013", "S", 25, withInfo("paypal_account_id", "ACCT1"))

	out, err := svc.ReconcileTransaction(ctx, org, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, out.Disposition)
	require.NotZero(t, out.OpportunityID)

	// replaying the exact payload settles on the same records
	again, err := svc.ReconcileTransaction(ctx, org, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionUpdated, again.Disposition)
	assert.Equal(t, out.OpportunityID, again.OpportunityID)
	assert.Equal(t, out.ContactID, again.ContactID)

	var count int64
	require.NoError(t, db.Model(&domain.Opportunity{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var opp domain.Opportunity
	require.NoError(t, db.First(&opp, "id = ?", out.OpportunityID).Error)
	assert.Equal(t, 25.0, opp.Amount)
	assert.Equal(t, 25.0-2.5, opp.NetAmount)
	assert.Equal(t, domain.StageClosedWon, opp.StageName)
	assert.Equal(t, "Property1", opp.OrgProperty)
}

func TestReconcileTransactionUnrecognizedCodeFatal(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReconcileTransaction(context.Background(), testOrg(), txnJSON("TX1", "T9999", "S", 25))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestReconcileRefund(t *testing.T) {
	svc, db, _ := newTestService(t)
	org := testOrg()
	ctx := context.Background()

	out, err := svc.ReconcileTransaction(ctx, org, txnJSON("TX1", "T0013", "S", 25))
	require.NoError(t, err)

	_, err = svc.ReconcileTransaction(ctx, org, txnJSON("RF1", "T1107", "S", -25,
		withInfo("paypal_reference_id", "TX1")))
	require.NoError(t, err)

	var opp domain.Opportunity
	require.NoError(t, db.First(&opp, "id = ?", out.OpportunityID).Error)
	assert.Equal(t, domain.StageRefunded, opp.StageName)
}

func TestReconcileRefundMissingReference(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReconcileTransaction(context.Background(), testOrg(),
		txnJSON("RF1", "T1107", "S", -25, withInfo("paypal_reference_id", "GHOST")))
	require.ErrorIs(t, err, ErrMissingReferencedOpportunity)
	assert.False(t, IsRetryable(err))
}

func subPayment(id, subID, date string, gross float64) json.RawMessage {
	return txnJSON(id, "T0002", "S", gross,
		withInfo("paypal_reference_id", subID),
		withInfo("paypal_reference_id_type", "SUB"),
		withInfo("paypal_account_id", "ACCT1"),
		withDate(date),
	)
}

func activeMonthly(id string) *paypal.Subscription {
	return &paypal.Subscription{
		ID:                id,
		Status:            paypal.SubscriptionActive,
		Email:             "donor@example.com",
		Amount:            10,
		PayerID:           "ACCT1",
		LastPaymentDate:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		InstallmentPeriod: domain.PeriodMonthly,
	}
}

func TestReconcileSubscriptionLifecycle(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.pp.subs["I-SUB1"] = activeMonthly("I-SUB1")

	// first payment establishes the series and its first installment
	out, err := svc.ReconcileTransaction(ctx, org, subPayment("TX1", "I-SUB1", "2025-03-15T10:00:00+0000", 10))
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, out.Disposition)
	require.NotZero(t, out.RecurringDonationID)

	var rd domain.RecurringDonation
	require.NoError(t, db.First(&rd, "id = ?", out.RecurringDonationID).Error)
	assert.Equal(t, domain.PeriodMonthly, rd.InstallmentPeriod)
	assert.Equal(t, domain.OpenEndedOpen, rd.OpenEndedStatus)

	// a delayed re-sighting of the same payment lands on the installment
	replay, err := svc.ReconcileTransaction(ctx, org, subPayment("TX1B", "I-SUB1", "2025-03-18T10:00:00+0000", 10))
	require.NoError(t, err)
	assert.Equal(t, DispositionUpdated, replay.Disposition)
	assert.Equal(t, out.OpportunityID, replay.OpportunityID)

	// next month's payment is outside tolerance and becomes a new linked
	// installment
	next, err := svc.ReconcileTransaction(ctx, org, subPayment("TX2", "I-SUB1", "2025-04-15T10:00:00+0000", 10))
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, next.Disposition)
	assert.NotEqual(t, out.OpportunityID, next.OpportunityID)

	var opps []domain.Opportunity
	require.NoError(t, db.Where("recurring_donation_id = ?", rd.ID).Find(&opps).Error)
	require.Len(t, opps, 2)
	for _, opp := range opps {
		assert.Equal(t, domain.OpportunityTypeRecurring, opp.Type)
		assert.Equal(t, domain.PeriodMonthly, opp.InstallmentPeriod)
	}
}

func TestReconcileSubscriptionFirstSightingCancelled(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	sub := activeMonthly("I-SUB1")
	sub.Status = paypal.SubscriptionCancelled
	sub.InstallmentPeriod = domain.PeriodNone
	vendors.pp.subs["I-SUB1"] = sub

	out, err := svc.ReconcileTransaction(context.Background(), org,
		subPayment("TX1", "I-SUB1", "2025-03-15T10:00:00+0000", 10))
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, out.Disposition)
	assert.Zero(t, out.RecurringDonationID)

	var count int64
	require.NoError(t, db.Model(&domain.RecurringDonation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileSubscriptionCancelledAfterEstablished(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.pp.subs["I-SUB1"] = activeMonthly("I-SUB1")

	out, err := svc.ReconcileTransaction(ctx, org, subPayment("TX1", "I-SUB1", "2025-03-15T10:00:00+0000", 10))
	require.NoError(t, err)

	vendors.pp.subs["I-SUB1"].Status = paypal.SubscriptionCancelled
	_, err = svc.ReconcileTransaction(ctx, org, subPayment("TX2", "I-SUB1", "2025-04-15T10:00:00+0000", 10))
	require.NoError(t, err)

	var rd domain.RecurringDonation
	require.NoError(t, db.First(&rd, "id = ?", out.RecurringDonationID).Error)
	assert.Equal(t, domain.OpenEndedClosed, rd.OpenEndedStatus)
}

func TestReconcileRefundClosesCancelledSeries(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.pp.subs["I-SUB1"] = activeMonthly("I-SUB1")

	out, err := svc.ReconcileTransaction(ctx, org, subPayment("TX1", "I-SUB1", "2025-03-15T10:00:00+0000", 10))
	require.NoError(t, err)

	vendors.pp.subs["I-SUB1"].Status = paypal.SubscriptionCancelled
	_, err = svc.ReconcileTransaction(ctx, org, txnJSON("RF1", "T1107", "S", -10,
		withInfo("paypal_reference_id", "TX1")))
	require.NoError(t, err)

	var opp domain.Opportunity
	require.NoError(t, db.First(&opp, "id = ?", out.OpportunityID).Error)
	assert.Equal(t, domain.StageRefunded, opp.StageName)

	var rd domain.RecurringDonation
	require.NoError(t, db.First(&rd, "id = ?", out.RecurringDonationID).Error)
	assert.Equal(t, domain.OpenEndedClosed, rd.OpenEndedStatus)
}

func TestReconcileSubscriptionWithoutReferenceFallsBack(t *testing.T) {
	svc, _, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.pp.subs["I-SUB1"] = activeMonthly("I-SUB1")

	// establish the series so the account id lookup can find it
	out, err := svc.ReconcileTransaction(ctx, org, subPayment("TX1", "I-SUB1", "2025-03-15T10:00:00+0000", 10))
	require.NoError(t, err)

	// same payer, no subscription reference: lands on the nearby installment
	noRef := txnJSON("TX2", "T0002", "S", 10,
		withInfo("paypal_account_id", "ACCT1"),
		withDate("2025-03-17T10:00:00+0000"))
	matched, err := svc.ReconcileTransaction(ctx, org, noRef)
	require.NoError(t, err)
	assert.Equal(t, DispositionUpdated, matched.Disposition)
	assert.Equal(t, out.OpportunityID, matched.OpportunityID)

	// unknown payer: recorded standalone
	stranger := txnJSON("TX3", "T0002", "S", 10,
		withInfo("paypal_account_id", "NOBODY"),
		withDate("2025-03-17T10:00:00+0000"))
	single, err := svc.ReconcileTransaction(ctx, org, stranger)
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, single.Disposition)
	assert.Zero(t, single.RecurringDonationID)
}

func testEvent() *eventbrite.Event {
	return &eventbrite.Event{
		ID:     "ev1",
		Name:   eventbrite.EventName{Text: "Spring Gala"},
		Status: "live",
		Start:  eventbrite.EventDate{Local: "2025-04-01T18:00:00"},
		TicketClasses: []eventbrite.TicketClass{
			{ID: "tc1", Name: "GA", Category: "ticket", IncludeFee: true},
			{ID: "tc2", Name: "Add-on", Category: "add_on"},
			{ID: "tc3", Name: "Merch", Category: "merch"},
		},
	}
}

func testAttendee(id, ticketClassID string, grossCents int) *eventbrite.Attendee {
	a := &eventbrite.Attendee{
		ID:            id,
		EventID:       "ev1",
		TicketClassID: ticketClassID,
		Status:        eventbrite.AttendeeAttending,
		Created:       "2025-03-20T15:00:00Z",
	}
	a.Profile.FirstName = "Ada"
	a.Profile.LastName = "Lovelace"
	a.Profile.Email = "Ada@Example.com"
	a.Costs.Gross.Value = grossCents
	a.Costs.BasePrice.Value = grossCents * 9 / 10
	return a
}

func TestProcessAttendeeUpdate(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.eb.events["ev1"] = testEvent()
	vendors.eb.attendees["att1"] = testAttendee("att1", "tc1", 2500)

	out, err := svc.ProcessAttendeeUpdate(ctx, org, "att1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, DispositionCreated, out.Disposition)
	require.NotZero(t, out.OpportunityID)

	var contact domain.Contact
	require.NoError(t, db.First(&contact, "id = ?", out.ContactID).Error)
	assert.Equal(t, "ada@example.com", contact.Email)
	assert.Equal(t, "Eventbrite", contact.LeadSource)

	var campaign domain.Campaign
	require.NoError(t, db.First(&campaign, "id = ?", out.CampaignID).Error)
	assert.Equal(t, "Spring Gala", campaign.Name)
	assert.Equal(t, "In Progress", campaign.Status)

	var statuses int64
	require.NoError(t, db.Model(&domain.CampaignMemberStatus{}).
		Where("campaign_id = ?", campaign.ID).Count(&statuses).Error)
	assert.EqualValues(t, 4, statuses)

	var member domain.CampaignMember
	require.NoError(t, db.First(&member, "campaign_id = ? AND contact_id = ?", campaign.ID, contact.ID).Error)
	assert.Equal(t, domain.MemberRegistered, member.Status)

	var opp domain.Opportunity
	require.NoError(t, db.First(&opp, "id = ?", out.OpportunityID).Error)
	assert.Equal(t, "Ada Lovelace - Spring Gala", opp.Name)
	assert.Equal(t, 25.0, opp.Amount)
	assert.Equal(t, 25.0, opp.DonorSelectedAmount) // include_fee ticket
	assert.Equal(t, 22.5, opp.NetAmount)
	assert.Equal(t, "Event Ticket", opp.RecordTypeName)
	assert.Equal(t, "GA", opp.EventbriteTicketType)

	// replay is idempotent
	again, err := svc.ProcessAttendeeUpdate(ctx, org, "att1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, DispositionUpdated, again.Disposition)
	assert.Equal(t, out.OpportunityID, again.OpportunityID)

	var count int64
	require.NoError(t, db.Model(&domain.Opportunity{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProcessAttendeeUpdateSkips(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.eb.events["ev1"] = testEvent()

	t.Run("missing attendee", func(t *testing.T) {
		out, err := svc.ProcessAttendeeUpdate(ctx, org, "ghost", "ev1")
		require.NoError(t, err)
		assert.Equal(t, DispositionSkipped, out.Disposition)
	})

	t.Run("invalid email", func(t *testing.T) {
		bad := testAttendee("att2", "tc1", 2500)
		bad.Profile.Email = "not-an-email"
		vendors.eb.attendees["att2"] = bad
		out, err := svc.ProcessAttendeeUpdate(ctx, org, "att2", "ev1")
		require.NoError(t, err)
		assert.Equal(t, DispositionSkipped, out.Disposition)
	})

	t.Run("add_on ticket has no opportunity", func(t *testing.T) {
		vendors.eb.attendees["att3"] = testAttendee("att3", "tc2", 500)
		out, err := svc.ProcessAttendeeUpdate(ctx, org, "att3", "ev1")
		require.NoError(t, err)
		assert.Zero(t, out.OpportunityID)
		assert.NotZero(t, out.ContactID) // membership still maintained
	})

	t.Run("ignored record type has no opportunity", func(t *testing.T) {
		vendors.eb.attendees["att4"] = testAttendee("att4", "tc3", 1500)
		out, err := svc.ProcessAttendeeUpdate(ctx, org, "att4", "ev1")
		require.NoError(t, err)
		assert.Zero(t, out.OpportunityID)
	})

	t.Run("zero amount has no opportunity", func(t *testing.T) {
		vendors.eb.attendees["att5"] = testAttendee("att5", "tc1", 0)
		out, err := svc.ProcessAttendeeUpdate(ctx, org, "att5", "ev1")
		require.NoError(t, err)
		assert.Zero(t, out.OpportunityID)
	})

	var count int64
	require.NoError(t, db.Model(&domain.Opportunity{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessCheckIn(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.eb.events["ev1"] = testEvent()
	attendee := testAttendee("att1", "tc1", 2500)
	attendee.Status = eventbrite.AttendeeCheckedIn
	vendors.eb.attendees["att1"] = attendee

	out, err := svc.ProcessCheckIn(ctx, org, "att1", "ev1")
	require.NoError(t, err)

	var member domain.CampaignMember
	require.NoError(t, db.First(&member, "campaign_id = ? AND contact_id = ?", out.CampaignID, out.ContactID).Error)
	assert.Equal(t, domain.MemberCheckedIn, member.Status)

	// check-in never records a purchase
	var count int64
	require.NoError(t, db.Model(&domain.Opportunity{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessEventUpdate(t *testing.T) {
	svc, db, vendors := newTestService(t)
	org := testOrg()
	ctx := context.Background()
	vendors.eb.events["ev1"] = testEvent()

	out, err := svc.ProcessEventUpdate(ctx, org, "ev1")
	require.NoError(t, err)
	require.NotZero(t, out.CampaignID)

	vendors.eb.events["ev1"].Status = "completed"
	_, err = svc.ProcessEventUpdate(ctx, org, "ev1")
	require.NoError(t, err)

	var campaign domain.Campaign
	require.NoError(t, db.First(&campaign, "id = ?", out.CampaignID).Error)
	assert.Equal(t, "Completed", campaign.Status)
}

func TestProcessEventUpdateMissing(t *testing.T) {
	svc, _, _ := newTestService(t)
	out, err := svc.ProcessEventUpdate(context.Background(), testOrg(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, out.Disposition)
}
