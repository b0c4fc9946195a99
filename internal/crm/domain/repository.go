package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Store is the storage capability the reconciliation engine consumes. Every
// upsert either creates exactly one record or updates exactly one existing
// record matched by its natural key, and reports which happened. Only the
// columns named in overwrite are applied to an existing record; everything
// else survives later sightings untouched.
//
// Implementations must make duplicate create attempts under the same natural
// key resolve to the existing record, not fail, so calls are safe under
// at-least-once delivery and racing workers.
type Store interface {
	UpsertContact(ctx context.Context, db *gorm.DB, contact *Contact, overwrite []string) (*Contact, bool, error)

	UpsertCampaign(ctx context.Context, db *gorm.DB, campaign *Campaign, overwrite []string) (*Campaign, bool, error)
	EnsureCampaignMemberStatus(ctx context.Context, db *gorm.DB, status *CampaignMemberStatus) (bool, error)
	UpsertCampaignMember(ctx context.Context, db *gorm.DB, member *CampaignMember, overwrite []string) (*CampaignMember, bool, error)

	UpsertOpportunity(ctx context.Context, db *gorm.DB, opp *Opportunity, overwrite []string) (*Opportunity, bool, error)
	SaveOpportunity(ctx context.Context, db *gorm.DB, opp *Opportunity) error
	OpportunityByPaypalTransactionID(ctx context.Context, db *gorm.DB, orgSlug, transactionID string) (*Opportunity, error)
	OpportunitiesByRecurringDonation(ctx context.Context, db *gorm.DB, orgSlug string, recurringDonationID snowflake.ID) ([]*Opportunity, error)

	UpsertRecurringDonation(ctx context.Context, db *gorm.DB, donation *RecurringDonation) (*RecurringDonation, bool, error)
	SaveRecurringDonation(ctx context.Context, db *gorm.DB, donation *RecurringDonation) error
	RecurringDonationByID(ctx context.Context, db *gorm.DB, orgSlug string, id snowflake.ID) (*RecurringDonation, error)
	RecurringDonationBySubscriptionID(ctx context.Context, db *gorm.DB, orgSlug, subscriptionID string) (*RecurringDonation, error)
	RecurringDonationByAccountID(ctx context.Context, db *gorm.DB, orgSlug, accountID string) (*RecurringDonation, error)
}
