package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by url, which must start with
// postgres:// or sqlite://.
func Open(url string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if url == "" {
		url = "sqlite://feedsync.db"
		log.Info("database url not set, using default", zap.String("url", url))
	}

	var dialector gorm.Dialector
	isSQLite := false
	switch {
	case strings.HasPrefix(url, "postgres://"):
		dialector = postgres.Open(url)
		log.Info("connecting to postgres")
	case strings.HasPrefix(url, "sqlite://"):
		dsn := strings.TrimPrefix(url, "sqlite://")
		dialector = sqlite.Open(dsn)
		isSQLite = true
		log.Info("connecting to sqlite", zap.String("dsn", dsn))
	default:
		return nil, fmt.Errorf("invalid database url: must start with postgres:// or sqlite://")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// One writer; also keeps :memory: databases on a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	log.Info("database connection established")
	return db, nil
}

// Migrate creates or updates every table the server uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &AuthToken{}, &Post{}, &Like{}, &Comment{})
}
