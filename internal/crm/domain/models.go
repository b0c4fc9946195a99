// Package domain contains the CRM record graph the reconciliation engine
// maintains: contacts, campaigns, campaign membership, opportunities and
// recurring donations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InstallmentPeriod is the inferred billing cadence of a recurring series.
type InstallmentPeriod string

const (
	PeriodMonthly InstallmentPeriod = "monthly"
	PeriodYearly  InstallmentPeriod = "yearly"
	PeriodNone    InstallmentPeriod = ""
)

// StageName is the opportunity pipeline stage.
type StageName string

const (
	StageClosedWon StageName = "Closed Won"
	StageRefunded  StageName = "Refunded"
)

// OpenEndedStatus tracks whether a recurring donation is still collecting.
// Closed is a one-way transition.
type OpenEndedStatus string

const (
	OpenEndedOpen   OpenEndedStatus = "Open"
	OpenEndedClosed OpenEndedStatus = "Closed"
)

// MemberStatus is the campaign membership state of an attendee.
type MemberStatus string

const (
	MemberRegistered   MemberStatus = "Registered"
	MemberCheckedIn    MemberStatus = "Checked In"
	MemberDeleted      MemberStatus = "Deleted"
	MemberNotAttending MemberStatus = "Not Attending"
)

// OpportunityTypeRecurring marks installment opportunities created for a
// recurring donation series.
const OpportunityTypeRecurring = "Recurring Donation"

// Contact identity key: (org, email).
type Contact struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgSlug    string       `gorm:"type:text;not null;uniqueIndex:ux_contacts_org_email,priority:1"`
	Email      string       `gorm:"type:text;not null;uniqueIndex:ux_contacts_org_email,priority:2"`
	FirstName  string       `gorm:"type:text"`
	LastName   string       `gorm:"type:text"`
	LeadSource string       `gorm:"type:text"`
	Company    string       `gorm:"type:text"`

	MailingStreet     string `gorm:"type:text"`
	MailingCity       string `gorm:"type:text"`
	MailingState      string `gorm:"type:text"`
	MailingPostalCode string `gorm:"type:text"`
	MailingCountry    string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Contact) TableName() string { return "contacts" }

// Campaign identity key: (org, external event id). One per ticketed event.
type Campaign struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OrgSlug      string       `gorm:"type:text;not null;uniqueIndex:ux_campaigns_org_event,priority:1"`
	EventbriteID string       `gorm:"type:text;not null;uniqueIndex:ux_campaigns_org_event,priority:2"`
	Name         string       `gorm:"type:text;not null"`
	Status       string       `gorm:"type:text;not null"`
	StartDate    time.Time    `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignMemberStatus is a per-campaign membership status label, ensured to
// exist before members reference it.
type CampaignMemberStatus struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgSlug    string       `gorm:"type:text;not null;uniqueIndex:ux_member_statuses,priority:1"`
	CampaignID snowflake.ID `gorm:"not null;uniqueIndex:ux_member_statuses,priority:2"`
	Label      string       `gorm:"type:text;not null;uniqueIndex:ux_member_statuses,priority:3"`

	CreatedAt time.Time `gorm:"not null"`
}

func (CampaignMemberStatus) TableName() string { return "campaign_member_statuses" }

// CampaignMember identity key: (contact, campaign, external attendee id).
type CampaignMember struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OrgSlug      string       `gorm:"type:text;not null;uniqueIndex:ux_campaign_members,priority:1"`
	CampaignID   snowflake.ID `gorm:"not null;uniqueIndex:ux_campaign_members,priority:2"`
	ContactID    snowflake.ID `gorm:"not null;uniqueIndex:ux_campaign_members,priority:3"`
	EventbriteID string       `gorm:"type:text;not null;uniqueIndex:ux_campaign_members,priority:4"`
	Status       MemberStatus `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CampaignMember) TableName() string { return "campaign_members" }

// Opportunity is a single donation or ticket purchase. Standalone
// opportunities are keyed by the external transaction id; installments of a
// recurring donation are located by temporal proximity instead (individual
// installment transactions are not deterministically addressable ahead of
// time).
type Opportunity struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	OrgSlug    string        `gorm:"type:text;not null;index"`
	ContactID  snowflake.ID  `gorm:"not null;index"`
	CampaignID *snowflake.ID `gorm:"index"`

	Name                string            `gorm:"type:text;not null"`
	StageName           StageName         `gorm:"type:text;not null"`
	Amount              float64           `gorm:"not null"`
	DonorSelectedAmount float64           `gorm:""`
	NetAmount           float64           `gorm:""`
	CloseDate           time.Time         `gorm:"not null"`
	LeadSource          string            `gorm:"type:text"`
	Type                string            `gorm:"type:text"`
	InstallmentPeriod   InstallmentPeriod `gorm:"type:text"`
	RecordTypeName      string            `gorm:"type:text"`
	EncouragedBy        string            `gorm:"type:text"`
	OrgProperty         string            `gorm:"type:text"`

	EventbriteID         *string `gorm:"type:text"`
	EventbriteTicketType string  `gorm:"type:text"`

	PaypalTransactionID *string `gorm:"type:text"`
	PaypalAccountID     string  `gorm:"type:text"`

	RecurringDonationID *snowflake.ID `gorm:"index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Opportunity) TableName() string { return "opportunities" }

// RecurringDonation identity key: (org, subscription id).
type RecurringDonation struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgSlug   string       `gorm:"type:text;not null;uniqueIndex:ux_recurring_org_sub,priority:1"`
	ContactID snowflake.ID `gorm:"not null;index"`

	Name              string            `gorm:"type:text;not null"`
	Amount            float64           `gorm:"not null"`
	DateEstablished   time.Time         `gorm:"not null"`
	InstallmentPeriod InstallmentPeriod `gorm:"type:text;not null"`
	OpenEndedStatus   OpenEndedStatus   `gorm:"type:text;not null"`
	LeadSource        string            `gorm:"type:text"`
	OrgProperty       string            `gorm:"type:text"`

	PaypalSubscriptionID string `gorm:"type:text;not null;uniqueIndex:ux_recurring_org_sub,priority:2"`
	PaypalAccountID      string `gorm:"type:text;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RecurringDonation) TableName() string { return "recurring_donations" }

// Closed reports whether the series has been closed.
func (r *RecurringDonation) Closed() bool { return r.OpenEndedStatus == OpenEndedClosed }
