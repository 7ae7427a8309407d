package infra

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"finmodel/internal/models/db_models"
)

// InitPostgresql opens the pool on the lib/pq driver.
func InitPostgresql(dsn string) (*gorm.DB, error) {
	connectionPool, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        dsn,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return connectionPool, nil
}

func ClosePostgresql(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Error getting database instance")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	} else {
		log.Info().Msg("PostgreSQL database connection closed successfully")
	}
}

// Migrate creates the schema and seeds the plan catalog.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&db_models.Plan{},
		&db_models.User{},
		&db_models.SocialAccount{},
		&db_models.Company{},
		&db_models.CompanyMember{},
		&db_models.Subscription{},
		&db_models.ProductInstance{},
		&db_models.ProductSection{},
		&db_models.ProductVersion{},
		&db_models.EditSession{},
		&db_models.ShareInvitation{},
		&db_models.WebhookEvent{},
		&db_models.AccountCredit{},
		&db_models.CustomOrder{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return SeedPlans(db)
}

func SeedPlans(db *gorm.DB) error {
	for _, plan := range db_models.DefaultPlans() {
		p := plan
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"max_models", "included_seats", "has_export",
				"has_advanced_analytics", "has_api_access", "allows_view_sharing",
			}),
		}).Create(&p).Error
		if err != nil {
			return fmt.Errorf("seed plan %q: %w", p.Name, err)
		}
	}
	return nil
}
