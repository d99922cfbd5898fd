// Package bootstrap builds the pieces shared by the api and migrate binaries.
package bootstrap

import (
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/internal/repository/postgres"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
	"github.com/jwalitptl/clinic-identity/internal/service/migration"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
	"github.com/jwalitptl/clinic-identity/pkg/validator"
)

func Logger(cfg config.LoggingConfig, service string) *logger.Logger {
	lc := &logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	}
	if cfg.File != "" {
		lc.File = &logger.FileConfig{
			Path:       cfg.File,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		}
	}
	return logger.NewLogger(lc).WithFields(map[string]interface{}{"service": service})
}

// Core holds the identity services every binary needs.
type Core struct {
	Identities *identity.Service
	Legacy     *legacy.Service
}

func NewCore(db *sqlx.DB, cfg *config.Config, log *logger.Logger) *Core {
	identities := identity.NewService(
		postgres.NewIdentityRepository(db),
		validator.New(cfg.Identity.DefaultRegion),
		cfg.Identity.MaxCreateAttempts,
		log,
	)
	return &Core{
		Identities: identities,
		Legacy:     legacy.NewService(postgres.NewLegacyRepository(db), identities, log),
	}
}

func (c *Core) Migration(db *sqlx.DB, m *metrics.Metrics, log *logger.Logger) *migration.Service {
	return migration.NewService(c.Legacy, postgres.NewAppointmentRepository(db), postgres.NewAuditRepository(db), m, log)
}
