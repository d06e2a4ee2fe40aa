package store

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBRepo interface {
	DB() *gorm.DB
	Close() error
}

type repo struct {
	Database *gorm.DB
}

func (r *repo) DB() *gorm.DB {
	return r.Database
}

func (r *repo) Close() error {
	sqlDB, err := r.Database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Models lists every persisted record, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.Order{},
		&model.Escrow{},
		&model.OrderEvent{},
		&model.Resolver{},
		&model.Balance{},
	}
}

// NewDBRepo opens the configured database and exits the process on failure.
func NewDBRepo(appConfig *config.AppConfig, logger *logger.Logger) DBRepo {
	db, err := Open(appConfig.Database)
	if err != nil {
		logger.Fatal("[NewDBRepo][Open] failed to open database connection", map[string]string{
			"driver": appConfig.Database.Driver,
			"error":  err.Error(),
		})
	}

	if appConfig.Database.AutoMigrate || appConfig.Database.Driver == DriverSQLite {
		if err := db.AutoMigrate(Models()...); err != nil {
			logger.Fatal("[NewDBRepo][AutoMigrate] failed to migrate schema", map[string]string{
				"error": err.Error(),
			})
		}
	}

	logger.Info("database connected", map[string]string{"driver": appConfig.Database.Driver})
	return &repo{Database: db}
}

// Open returns a gorm handle for the postgres or sqlite driver.
func Open(cfg config.DBConnection) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		ds := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.Host,
			cfg.User,
			cfg.Pass,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)
		dialector = postgres.Open(ds)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	return db, nil
}
