package main

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/store"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

func runMigrations(db *gorm.DB, dir string, logger *logger.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get database connection")
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "create postgres driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "read schema version")
	}
	logger.Info("[runMigrations] migrations completed", map[string]string{
		"dir":     dir,
		"version": strconv.FormatUint(uint64(version), 10),
		"dirty":   strconv.FormatBool(dirty),
	})
	return nil
}

func main() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	if appConfig.Database.Driver != store.DriverPostgres {
		logger.Info("[main] schema migrations only apply to postgres; sqlite is migrated on boot", map[string]string{
			"driver": appConfig.Database.Driver,
		})
		return
	}

	db, err := store.Open(appConfig.Database)
	if err != nil {
		logger.Fatal("[main][store.Open] failed to open database", map[string]string{
			"error": err.Error(),
		})
	}

	if err := runMigrations(db, filepath.Join("migrations", "schema"), logger); err != nil {
		logger.Error("[main][runMigrations] failed to run migrations", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
