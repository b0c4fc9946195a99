package migration

import (
	"github.com/donorsync/donorsync/internal/config"
	crmdomain "github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/queue"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations target postgres. Other dialects are
		// for local and test setups where gorm's schema sync is enough.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&crmdomain.Contact{},
				&crmdomain.Campaign{},
				&crmdomain.CampaignMemberStatus{},
				&crmdomain.CampaignMember{},
				&crmdomain.Opportunity{},
				&crmdomain.RecurringDonation{},
				&queue.FailedTask{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
