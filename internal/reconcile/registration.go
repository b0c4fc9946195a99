package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/eventbrite"
	"github.com/donorsync/donorsync/internal/observability/logger"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"go.uber.org/zap"
)

const leadSourceEventbrite = "Eventbrite"

const opportunityNameMaxLen = 80

// recordTypeIgnore in an org's type map suppresses opportunities for that
// ticket category.
const recordTypeIgnore = "ignore"

// UnmappedTicketCategoryError means an org's type map has no entry for a
// ticket category it sold. Configuration, not transience; not retryable.
type UnmappedTicketCategoryError struct {
	Org      string
	Category string
}

func (e *UnmappedTicketCategoryError) Error() string {
	return fmt.Sprintf("org %s has no record type mapped for ticket category %q", e.Org, e.Category)
}

// campaignStatusFor maps Eventbrite event statuses onto campaign statuses.
var campaignStatusFor = map[string]string{
	"draft":     "Planned",
	"live":      "In Progress",
	"started":   "In Progress",
	"ended":     "Completed",
	"completed": "Completed",
	"canceled":  "Aborted",
	"deleted":   "Aborted",
}

// memberStatusFor maps attendee statuses onto campaign member statuses.
var memberStatusFor = map[string]domain.MemberStatus{
	eventbrite.AttendeeAttending:    domain.MemberRegistered,
	eventbrite.AttendeeCheckedIn:    domain.MemberCheckedIn,
	eventbrite.AttendeeDeleted:      domain.MemberDeleted,
	eventbrite.AttendeeNotAttending: domain.MemberNotAttending,
}

var (
	campaignOverwrite    = []string{"name", "status"}
	memberOverwrite      = []string{"status"}
	opportunityOverwrite = []string{
		"amount", "donor_selected_amount", "eventbrite_ticket_type",
		"name", "net_amount", "record_type_name", "stage_name",
	}
)

const eventStartLayout = "2006-01-02T15:04:05"

// upsertCampaignFromEvent maintains the campaign for an event and makes sure
// every membership status label exists under it.
func (s *Service) upsertCampaignFromEvent(ctx context.Context, org *orgdomain.Organization, event *eventbrite.Event) (*domain.Campaign, error) {
	status, ok := campaignStatusFor[event.Status]
	if !ok {
		return nil, &MalformedPayloadError{Err: fmt.Errorf("unknown event status %q", event.Status)}
	}
	var startDate time.Time
	if event.Start.Local != "" {
		parsed, err := time.Parse(eventStartLayout, event.Start.Local)
		if err != nil {
			return nil, &MalformedPayloadError{Err: fmt.Errorf("parse event %s start date: %w", event.ID, err)}
		}
		startDate = parsed
	}

	campaign, created, err := s.store.UpsertCampaign(ctx, s.db, &domain.Campaign{
		OrgSlug:      org.Slug,
		EventbriteID: event.ID,
		Name:         event.Name.Text,
		Status:       status,
		StartDate:    startDate,
	}, campaignOverwrite)
	if err != nil {
		return nil, fmt.Errorf("upsert campaign for event %s: %w", event.ID, err)
	}
	if created {
		logger.WithOrg(s.log, org.Slug).Info("campaign created",
			zap.String("event_id", event.ID), zap.String("name", event.Name.Text))
	}

	for _, label := range []domain.MemberStatus{
		domain.MemberCheckedIn, domain.MemberRegistered, domain.MemberDeleted, domain.MemberNotAttending,
	} {
		_, err := s.store.EnsureCampaignMemberStatus(ctx, s.db, &domain.CampaignMemberStatus{
			OrgSlug:    org.Slug,
			CampaignID: campaign.ID,
			Label:      string(label),
		})
		if err != nil {
			return nil, err
		}
	}
	return campaign, nil
}

func contactFromAttendee(org *orgdomain.Organization, attendee *eventbrite.Attendee) *domain.Contact {
	profile := attendee.Profile
	contact := &domain.Contact{
		OrgSlug:    org.Slug,
		Email:      strings.ToLower(profile.Email),
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Company:    profile.Company,
		LeadSource: leadSourceEventbrite,
	}

	// a postal code collected through a custom question survives even when
	// the billing address is incomplete
	contact.MailingPostalCode = attendee.PostalCodeAnswer()
	if bill := profile.Addresses.Bill; bill != nil {
		street := bill.Address1
		if bill.Address2 != "" {
			street = bill.Address1 + ", " + bill.Address2
		}
		contact.MailingStreet = street
		contact.MailingCity = bill.City
		contact.MailingState = bill.Region
		contact.MailingPostalCode = bill.PostalCode
		contact.MailingCountry = bill.Country
	}
	return contact
}

func opportunityFromAttendee(org *orgdomain.Organization, attendee *eventbrite.Attendee, event *eventbrite.Event, ticketClass eventbrite.TicketClass, campaign *domain.Campaign, contact *domain.Contact, recordTypeName string) *domain.Opportunity {
	name := fmt.Sprintf("%s %s - %s", attendee.Profile.FirstName, attendee.Profile.LastName, event.Name.Text)
	if len(name) > opportunityNameMaxLen {
		name = name[:opportunityNameMaxLen]
	}

	gross := attendee.Costs.GrossAmount()
	base := attendee.Costs.BaseAmount()
	donorSelected := base
	if ticketClass.IncludeFee {
		donorSelected = gross
	}
	stage := domain.StageClosedWon
	if attendee.Refunded {
		stage = domain.StageRefunded
	}

	attendeeID := attendee.ID
	return &domain.Opportunity{
		OrgSlug:              org.Slug,
		ContactID:            contact.ID,
		CampaignID:           &campaign.ID,
		Name:                 name,
		StageName:            stage,
		Amount:               gross,
		DonorSelectedAmount:  donorSelected,
		NetAmount:            base,
		CloseDate:            attendee.CreatedDate(),
		LeadSource:           leadSourceEventbrite,
		RecordTypeName:       recordTypeName,
		EventbriteID:         &attendeeID,
		EventbriteTicketType: ticketClass.Name,
	}
}

// ProcessAttendeeUpdate reconciles one attendee notification end to end:
// campaign, contact, campaign membership, and (for paid, mapped, non-add-on
// tickets) the ticket purchase opportunity. The attendee is re-fetched from
// the API first; notification payloads go stale.
func (s *Service) ProcessAttendeeUpdate(ctx context.Context, org *orgdomain.Organization, attendeeID, eventID string) (*Outcome, error) {
	log := logger.WithOrg(s.log, org.Slug).With(
		zap.String("attendee_id", attendeeID),
		zap.String("event_id", eventID),
	)
	api := s.vendors.Eventbrite(org)

	attendee, err := api.GetEventAttendee(ctx, eventID, attendeeID, "")
	if errors.Is(err, eventbrite.ErrNotFound) {
		log.Info("attendee no longer exists, skipping")
		return skipped("attendee not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch attendee %s: %w", attendeeID, err)
	}

	if _, err := mail.ParseAddress(attendee.Profile.Email); err != nil {
		log.Info("attendee email invalid, discarding", zap.String("email", attendee.Profile.Email))
		return skipped("invalid email"), nil
	}

	event, err := api.GetEvent(ctx, eventID, "ticket_classes")
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}

	campaign, err := s.upsertCampaignFromEvent(ctx, org, event)
	if err != nil {
		return nil, err
	}
	contact, _, err := s.upsertRegistration(ctx, org, attendee, campaign)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Disposition: DispositionUpdated,
		ContactID:   contact.ID,
		CampaignID:  campaign.ID,
	}

	ticketClass, ok := event.TicketClassByID(attendee.TicketClassID)
	if !ok {
		return nil, &MalformedPayloadError{Err: fmt.Errorf("event %s has no ticket class %s", eventID, attendee.TicketClassID)}
	}
	if ticketClass.Category == eventbrite.TicketCategoryAddOn {
		log.Info("ticket category add_on not supported, skipping opportunity")
		out.Reason = "add_on ticket"
		return out, nil
	}

	recordTypeName, ok := org.RecordTypeFor(ticketClass.Category)
	if !ok {
		return nil, &UnmappedTicketCategoryError{Org: org.Slug, Category: ticketClass.Category}
	}
	if strings.ToLower(recordTypeName) == recordTypeIgnore {
		log.Info("record type configured to ignore, skipping opportunity",
			zap.String("category", ticketClass.Category))
		out.Reason = "ignored record type"
		return out, nil
	}

	if attendee.Costs.GrossAmount() <= 0 {
		log.Debug("zero amount, no opportunity created")
		out.Reason = "zero amount"
		return out, nil
	}

	opp, created, err := s.store.UpsertOpportunity(ctx, s.db,
		opportunityFromAttendee(org, attendee, event, ticketClass, campaign, contact, recordTypeName),
		opportunityOverwrite)
	if err != nil {
		return nil, fmt.Errorf("upsert opportunity for attendee %s: %w", attendeeID, err)
	}
	if created {
		log.Info("opportunity created", zap.Int64("opportunity_id", int64(opp.ID)))
		out.Disposition = DispositionCreated
	}
	out.OpportunityID = opp.ID
	s.metrics.RecordRegistration(ctx, org.Slug, string(out.Disposition))
	return out, nil
}

// ProcessCheckIn updates campaign membership when a badge is scanned. No
// opportunity work; the purchase was recorded when the attendee registered.
func (s *Service) ProcessCheckIn(ctx context.Context, org *orgdomain.Organization, attendeeID, eventID string) (*Outcome, error) {
	log := logger.WithOrg(s.log, org.Slug).With(
		zap.String("attendee_id", attendeeID),
		zap.String("event_id", eventID),
	)
	api := s.vendors.Eventbrite(org)

	attendee, err := api.GetEventAttendee(ctx, eventID, attendeeID, "")
	if errors.Is(err, eventbrite.ErrNotFound) {
		log.Info("attendee no longer exists, skipping")
		return skipped("attendee not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch attendee %s: %w", attendeeID, err)
	}
	event, err := api.GetEvent(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}

	campaign, err := s.upsertCampaignFromEvent(ctx, org, event)
	if err != nil {
		return nil, err
	}
	contact, member, err := s.upsertRegistration(ctx, org, attendee, campaign)
	if err != nil {
		return nil, err
	}
	log.Info("attendee checked in", zap.String("status", string(member.Status)))

	return &Outcome{
		Disposition: DispositionUpdated,
		ContactID:   contact.ID,
		CampaignID:  campaign.ID,
	}, nil
}

// ProcessEventUpdate refreshes the campaign for an event.
func (s *Service) ProcessEventUpdate(ctx context.Context, org *orgdomain.Organization, eventID string) (*Outcome, error) {
	event, err := s.vendors.Eventbrite(org).GetEvent(ctx, eventID, "")
	if errors.Is(err, eventbrite.ErrNotFound) {
		return skipped("event not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}
	campaign, err := s.upsertCampaignFromEvent(ctx, org, event)
	if err != nil {
		return nil, err
	}
	return &Outcome{Disposition: DispositionUpdated, CampaignID: campaign.ID}, nil
}

// upsertRegistration maintains the contact and their campaign membership.
func (s *Service) upsertRegistration(ctx context.Context, org *orgdomain.Organization, attendee *eventbrite.Attendee, campaign *domain.Campaign) (*domain.Contact, *domain.CampaignMember, error) {
	contact, created, err := s.store.UpsertContact(ctx, s.db, contactFromAttendee(org, attendee), contactOverwrite)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert contact for attendee %s: %w", attendee.ID, err)
	}
	if created {
		logger.WithOrg(s.log, org.Slug).Info("contact created", zap.String("email", contact.Email))
	}

	status, ok := memberStatusFor[attendee.Status]
	if !ok {
		return nil, nil, &MalformedPayloadError{Err: fmt.Errorf("unknown attendee status %q", attendee.Status)}
	}
	member, memberCreated, err := s.store.UpsertCampaignMember(ctx, s.db, &domain.CampaignMember{
		OrgSlug:      org.Slug,
		CampaignID:   campaign.ID,
		ContactID:    contact.ID,
		EventbriteID: attendee.ID,
		Status:       status,
	}, memberOverwrite)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert campaign member for attendee %s: %w", attendee.ID, err)
	}
	if memberCreated {
		logger.WithOrg(s.log, org.Slug).Info("campaign member created",
			zap.Int64("campaign_id", int64(campaign.ID)), zap.String("attendee_id", attendee.ID))
	}
	return contact, member, nil
}

// FetchWebhookObject resolves a webhook's api_url into the raw object it
// points at.
func (s *Service) FetchWebhookObject(ctx context.Context, org *orgdomain.Organization, apiURL string) (json.RawMessage, error) {
	return s.vendors.Eventbrite(org).FetchResource(ctx, apiURL)
}

// ExpandOrder lists the attendees on an order so each can be reprocessed.
func (s *Service) ExpandOrder(ctx context.Context, org *orgdomain.Organization, orderID string) ([]eventbrite.Attendee, error) {
	order, err := s.vendors.Eventbrite(org).GetOrder(ctx, orderID, "attendees")
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return order.Attendees, nil
}
