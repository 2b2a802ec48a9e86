package models

import (
	"fmt"

	"gorm.io/gorm"
)

// enumTypes must exist before AutoMigrate touches the columns that use them
var enumTypes = []string{
	`DO $$ BEGIN
		CREATE TYPE campaign_status AS ENUM
			('draft', 'scheduled', 'queued', 'sending', 'completed', 'failed', 'cancelled');
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$;`,
	`DO $$ BEGIN
		CREATE TYPE delivery_outcome_status AS ENUM
			('pending', 'sent', 'failed_transient', 'failed_permanent');
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$;`,
}

// Migrate creates the enum types and brings the schema up to date
func Migrate(db *gorm.DB) error {
	for _, stmt := range enumTypes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create enum type: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&Subscriber{},
		&Campaign{},
		&DeliveryOutcome{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
