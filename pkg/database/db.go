package database

import (
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// InitDB initializes the database connection and migrates the schema.
// Postgres is used when DATABASE_URL is set, sqlite otherwise.
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt:    false,
			TranslateError: true,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "scheduler.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{TranslateError: true})
	}

	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	return db
}

// Migrate creates or updates all tables the engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Employee{},
		&models.AvailabilityOverride{},
		&models.TimeOffRange{},
		&models.Task{},
		&models.Assignment{},
		&models.RotationAssignment{},
		&models.RotationException{},
		&models.Run{},
		&models.Proposal{},
		&models.APIKey{},
		&models.AdminUser{},
	)
}
