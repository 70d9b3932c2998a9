package store

import (
	"log/slog"

	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema when asked to.
func Open(cfg config.StorageConfig, logger *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sqlite pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if cfg.Migrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, errors.Wrap(err, "migrate")
		}
	}
	logger.Info("Store opened", slog.String("component", "store"), slog.String("driver", cfg.Driver), slog.Bool("migrated", cfg.Migrate))
	return NewGormStore(db), nil
}
