package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/domadao/event-indexer/config"
)

const tcp = "tcp"

var (
	// List entities to auto-migrate
	entities = []interface{}{
		Event{},
		Cursor{},
		Pool{},
		Contribution{},
		Vote{},
		VotingResult{},
		Distribution{},
		Claim{},
	}
)

func ConnectAndInitialize(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("ConnectAndInitialize: Connect: %w", err)
	}

	if cfg.DropTableAtStart {
		err = db.Migrator().DropTable(entities...)
		if err != nil {
			return nil, err
		}
	}

	// Initialize - auto migrate
	err = db.AutoMigrate(entities...)
	if err != nil {
		return nil, errors.Wrap(err, "ConnectAndInitialize: AutoMigrate")
	}

	// If the cursor row is not in the DB, create it
	err = seedCursor(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, "ConnectAndInitialize: seedCursor")
	}

	return db, nil
}

func seedCursor(ctx context.Context, db *gorm.DB) error {
	var cursor Cursor
	err := db.WithContext(ctx).First(&cursor, CursorID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	cursor = Cursor{ID: CursorID, LastAcknowledgedID: 0, Updated: time.Now()}
	return db.WithContext(ctx).Create(&cursor).Error
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	// Connect to the database
	dbConfig := mysql.Config{
		User:                 cfg.Username,
		Passwd:               cfg.Password,
		Net:                  tcp,
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	gormLogLevel := getGormLogLevel(cfg)
	gormConfig := gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}
	return gorm.Open(gormMysql.Open(dbConfig.FormatDSN()), &gormConfig)
}

func getGormLogLevel(cfg *config.DBConfig) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}
