package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/donorsync/donorsync/internal/clock"
	"github.com/donorsync/donorsync/internal/crm/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	genID *snowflake.Node
	clock clock.Clock
}

func Provide(genID *snowflake.Node, clk clock.Clock) domain.Store {
	return &repo{genID: genID, clock: clk}
}

// upsert flow shared by all entities: look up by natural key, insert with
// ON CONFLICT DO NOTHING when absent, reselect when the insert lost a race,
// then apply the overwrite allow-list to the existing row. A lost race is
// indistinguishable from a plain update, which is exactly the at-least-once
// semantics the engine needs.

func (r *repo) UpsertContact(ctx context.Context, db *gorm.DB, contact *domain.Contact, overwrite []string) (*domain.Contact, bool, error) {
	if contact == nil || contact.OrgSlug == "" || contact.Email == "" {
		return nil, false, domain.ErrInvalidRecord
	}

	find := func() (*domain.Contact, error) {
		var out domain.Contact
		err := db.WithContext(ctx).
			Where("org_slug = ? AND email = ?", contact.OrgSlug, contact.Email).
			Limit(1).Find(&out).Error
		if err != nil {
			return nil, err
		}
		if out.ID == 0 {
			return nil, nil
		}
		return &out, nil
	}

	existing, err := find()
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		r.stamp(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(contact)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected > 0 {
			return contact, true, nil
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
	}

	if len(overwrite) > 0 {
		err = db.WithContext(ctx).Model(&domain.Contact{}).
			Where("id = ?", existing.ID).
			Select(overwrite).Updates(contact).Error
		if err != nil {
			return nil, false, err
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

func (r *repo) UpsertCampaign(ctx context.Context, db *gorm.DB, campaign *domain.Campaign, overwrite []string) (*domain.Campaign, bool, error) {
	if campaign == nil || campaign.OrgSlug == "" || campaign.EventbriteID == "" {
		return nil, false, domain.ErrInvalidRecord
	}

	find := func() (*domain.Campaign, error) {
		var out domain.Campaign
		err := db.WithContext(ctx).
			Where("org_slug = ? AND eventbrite_id = ?", campaign.OrgSlug, campaign.EventbriteID).
			Limit(1).Find(&out).Error
		if err != nil {
			return nil, err
		}
		if out.ID == 0 {
			return nil, nil
		}
		return &out, nil
	}

	existing, err := find()
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		r.stamp(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(campaign)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected > 0 {
			return campaign, true, nil
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
	}

	if len(overwrite) > 0 {
		err = db.WithContext(ctx).Model(&domain.Campaign{}).
			Where("id = ?", existing.ID).
			Select(overwrite).Updates(campaign).Error
		if err != nil {
			return nil, false, err
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

func (r *repo) EnsureCampaignMemberStatus(ctx context.Context, db *gorm.DB, status *domain.CampaignMemberStatus) (bool, error) {
	if status == nil || status.OrgSlug == "" || status.CampaignID == 0 || status.Label == "" {
		return false, domain.ErrInvalidRecord
	}

	var existing domain.CampaignMemberStatus
	err := db.WithContext(ctx).
		Where("org_slug = ? AND campaign_id = ? AND label = ?", status.OrgSlug, status.CampaignID, status.Label).
		Limit(1).Find(&existing).Error
	if err != nil {
		return false, err
	}
	if existing.ID != 0 {
		return false, nil
	}

	status.ID = r.genID.Generate()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = r.clock.Now()
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpsertCampaignMember(ctx context.Context, db *gorm.DB, member *domain.CampaignMember, overwrite []string) (*domain.CampaignMember, bool, error) {
	if member == nil || member.OrgSlug == "" || member.CampaignID == 0 || member.ContactID == 0 || member.EventbriteID == "" {
		return nil, false, domain.ErrInvalidRecord
	}

	find := func() (*domain.CampaignMember, error) {
		var out domain.CampaignMember
		err := db.WithContext(ctx).
			Where("org_slug = ? AND campaign_id = ? AND contact_id = ? AND eventbrite_id = ?",
				member.OrgSlug, member.CampaignID, member.ContactID, member.EventbriteID).
			Limit(1).Find(&out).Error
		if err != nil {
			return nil, err
		}
		if out.ID == 0 {
			return nil, nil
		}
		return &out, nil
	}

	existing, err := find()
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		r.stamp(&member.ID, &member.CreatedAt, &member.UpdatedAt)
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(member)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected > 0 {
			return member, true, nil
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
	}

	if len(overwrite) > 0 {
		err = db.WithContext(ctx).Model(&domain.CampaignMember{}).
			Where("id = ?", existing.ID).
			Select(overwrite).Updates(member).Error
		if err != nil {
			return nil, false, err
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

func (r *repo) UpsertOpportunity(ctx context.Context, db *gorm.DB, opp *domain.Opportunity, overwrite []string) (*domain.Opportunity, bool, error) {
	if opp == nil || opp.OrgSlug == "" {
		return nil, false, domain.ErrInvalidRecord
	}

	var find func() (*domain.Opportunity, error)
	switch {
	case opp.PaypalTransactionID != nil && *opp.PaypalTransactionID != "":
		find = func() (*domain.Opportunity, error) {
			return r.findOpportunity(ctx, db, "org_slug = ? AND paypal_transaction_id = ?", opp.OrgSlug, *opp.PaypalTransactionID)
		}
	case opp.EventbriteID != nil && *opp.EventbriteID != "":
		find = func() (*domain.Opportunity, error) {
			return r.findOpportunity(ctx, db, "org_slug = ? AND eventbrite_id = ?", opp.OrgSlug, *opp.EventbriteID)
		}
	default:
		return nil, false, domain.ErrInvalidRecord
	}

	existing, err := find()
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		r.stamp(&opp.ID, &opp.CreatedAt, &opp.UpdatedAt)
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(opp)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected > 0 {
			return opp, true, nil
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
	}

	if len(overwrite) > 0 {
		err = db.WithContext(ctx).Model(&domain.Opportunity{}).
			Where("id = ?", existing.ID).
			Select(overwrite).Updates(opp).Error
		if err != nil {
			return nil, false, err
		}
		if existing, err = find(); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

func (r *repo) SaveOpportunity(ctx context.Context, db *gorm.DB, opp *domain.Opportunity) error {
	if opp == nil || opp.ID == 0 {
		return domain.ErrInvalidRecord
	}
	opp.UpdatedAt = r.clock.Now()
	return db.WithContext(ctx).Save(opp).Error
}

func (r *repo) OpportunityByPaypalTransactionID(ctx context.Context, db *gorm.DB, orgSlug, transactionID string) (*domain.Opportunity, error) {
	return r.findOpportunity(ctx, db, "org_slug = ? AND paypal_transaction_id = ?", orgSlug, transactionID)
}

func (r *repo) OpportunitiesByRecurringDonation(ctx context.Context, db *gorm.DB, orgSlug string, recurringDonationID snowflake.ID) ([]*domain.Opportunity, error) {
	var out []*domain.Opportunity
	err := db.WithContext(ctx).
		Where("org_slug = ? AND recurring_donation_id = ?", orgSlug, recurringDonationID).
		Order("close_date asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) UpsertRecurringDonation(ctx context.Context, db *gorm.DB, donation *domain.RecurringDonation) (*domain.RecurringDonation, bool, error) {
	if donation == nil || donation.OrgSlug == "" || donation.PaypalSubscriptionID == "" {
		return nil, false, domain.ErrInvalidRecord
	}

	find := func() (*domain.RecurringDonation, error) {
		return r.RecurringDonationBySubscriptionID(ctx, db, donation.OrgSlug, donation.PaypalSubscriptionID)
	}

	existing, err := find()
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	r.stamp(&donation.ID, &donation.CreatedAt, &donation.UpdatedAt)
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(donation)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return donation, true, nil
	}
	if existing, err = find(); err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, domain.ErrNotFound
	}
	return existing, false, nil
}

func (r *repo) SaveRecurringDonation(ctx context.Context, db *gorm.DB, donation *domain.RecurringDonation) error {
	if donation == nil || donation.ID == 0 {
		return domain.ErrInvalidRecord
	}
	donation.UpdatedAt = r.clock.Now()
	return db.WithContext(ctx).Save(donation).Error
}

func (r *repo) RecurringDonationByID(ctx context.Context, db *gorm.DB, orgSlug string, id snowflake.ID) (*domain.RecurringDonation, error) {
	return r.findRecurringDonation(ctx, db, "org_slug = ? AND id = ?", orgSlug, id)
}

func (r *repo) RecurringDonationBySubscriptionID(ctx context.Context, db *gorm.DB, orgSlug, subscriptionID string) (*domain.RecurringDonation, error) {
	return r.findRecurringDonation(ctx, db, "org_slug = ? AND paypal_subscription_id = ?", orgSlug, subscriptionID)
}

func (r *repo) RecurringDonationByAccountID(ctx context.Context, db *gorm.DB, orgSlug, accountID string) (*domain.RecurringDonation, error) {
	if accountID == "" {
		return nil, nil
	}
	return r.findRecurringDonation(ctx, db, "org_slug = ? AND paypal_account_id = ?", orgSlug, accountID)
}

func (r *repo) findOpportunity(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Opportunity, error) {
	var out domain.Opportunity
	err := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *repo) findRecurringDonation(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.RecurringDonation, error) {
	var out domain.RecurringDonation
	err := db.WithContext(ctx).Where(query, args...).Order("created_at desc, id desc").Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *repo) stamp(id *snowflake.ID, createdAt, updatedAt *time.Time) {
	if *id == 0 {
		*id = r.genID.Generate()
	}
	now := r.clock.Now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}
